// Package cli holds the cobra commands of the autosync binary.
package cli

import (
	"io"
	"os"

	"github.com/spf13/cobra"
)

const (
	defaultConfigPath = "autosync.toml"
	configEnv         = "AUTOSYNC_CONFIG"
	tokenEnv          = "AUTOSYNC_TOKEN"
)

// NewRootCommand builds the command tree writing to stdout and stderr.
func NewRootCommand(stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "autosync",
		Short:         "autosync mirrors local changes to remote storage",
		Long:          "Watches local directories and uploads or removes changed files once they have been quiet for a moment.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringP("config", "c", defaultConfig(), "settings file (.toml or .yaml)")

	root.AddCommand(newRunCommand())
	root.AddCommand(newCheckCommand())
	root.AddCommand(newVersionCommand())
	return root
}

// Execute runs the root command against the process arguments.
func Execute() error {
	return NewRootCommand(os.Stdout, os.Stderr).Execute()
}

func defaultConfig() string {
	if path := os.Getenv(configEnv); path != "" {
		return path
	}
	return defaultConfigPath
}

func configPath(cmd *cobra.Command) string {
	path, _ := cmd.Flags().GetString("config")
	return path
}
