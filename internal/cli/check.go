package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"autosync/internal/config"
)

func newCheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the settings file and list its roots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.Load(configPath(cmd))
			if err != nil {
				return err
			}
			return writeSummary(cmd.OutOrStdout(), settings)
		},
	}
}

func writeSummary(out io.Writer, settings config.Settings) error {
	fmt.Fprintf(out, "config %s is valid\n", settings.Path)
	fmt.Fprintf(out, "quiet interval %s, watch debounce %s, listen %q\n",
		settings.QuietInterval, settings.WatchDebounce, settings.Listen)
	for _, key := range settings.Unknown {
		fmt.Fprintf(out, "warning: unknown setting %q\n", key)
	}
	if len(settings.Roots) == 0 {
		fmt.Fprintln(out, "no roots configured")
		return nil
	}

	table := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(table, "ROOT\tFILES\tUPLOAD\tDELETE\tREMOTE")
	for _, root := range settings.Roots {
		files, upload, remove := "-", false, false
		if root.Watcher != nil {
			files = root.Watcher.Files.String()
			upload = root.Watcher.AutoUpload
			remove = root.Watcher.AutoDelete
		}
		fmt.Fprintf(table, "%s\t%s\t%t\t%t\t%s\n", root.Path, files, upload, remove, describeRemote(root.Remote))
	}
	return table.Flush()
}

func describeRemote(remote config.RemoteSettings) string {
	switch remote.Kind {
	case config.RemoteMirror:
		return "mirror " + remote.Target
	case config.RemoteS3, config.RemoteMinio:
		location := fmt.Sprintf("%s s3://%s", remote.Kind, remote.Bucket)
		if remote.Prefix != "" {
			location += "/" + remote.Prefix
		}
		if remote.Endpoint != "" {
			location += " via " + remote.Endpoint
		}
		return location
	default:
		return string(remote.Kind)
	}
}
