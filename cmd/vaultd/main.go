// Command vaultd runs the corevault plugin host and its CLI.
package main

import (
	"fmt"
	"os"

	"github.com/arkanvault/corevault/internal/clicmd"
)

func main() {
	if err := clicmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
