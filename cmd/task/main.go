// Command task is the collector's single CLI entry point, built with
// spf13/cobra per cuemby-warren's cmd/warren layout: a root command with
// persistent flags and one file per subcommand.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:   "task",
	Short: "Run and inspect pcrdb-collector crawl tasks",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "path to the .env config file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
