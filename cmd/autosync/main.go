// autosync watches local directories and mirrors their changes to a remote.
package main

import (
	"fmt"
	"os"

	"autosync/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "autosync: %v\n", err)
		os.Exit(1)
	}
}
