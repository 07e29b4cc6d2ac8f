// Command mcfctl is a small operational tool for poking at a cache backend
// through the memfront facade. Every registered driver scheme works:
//
//	mcfctl --url memcached://10.0.0.1:11211 get somekey
//	mcfctl --url ramcache:// ping
package main

import (
	"fmt"
	"os"

	"github.com/MakeNowJust/heredoc"
	"github.com/spf13/cobra"

	_ "github.com/memfront/memfront/gomem"
	_ "github.com/memfront/memfront/memcached"
	_ "github.com/memfront/memfront/ramcache"
)

const version = "v0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "mcfctl",
		Short: "A command line interface for memfront cache backends",
		Long: heredoc.Doc(`
			mcfctl talks to any cache backend registered with memfront,
			selected by the --url scheme.

			Supported schemes: memcached (godropbox client),
			gomem (gomemcache client) and ramcache (in-process).
		`),
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&cacheURL, "url",
		"memcached://localhost:11211", "cache URL, scheme selects the driver")

	rootCmd.AddCommand(newVersionCommand())
	rootCmd.AddCommand(
		newGetCommand(),
		newMGetCommand(),
		newSetCommand(),
		newAddCommand(),
		newReplaceCommand(),
		newCASCommand(),
		newAppendCommand(),
		newPrependCommand(),
		newIncrCommand(),
		newDecrCommand(),
		newRemoveCommand(),
		newFlushCommand(),
		newPingCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("mcfctl version %s\n", version)
		},
	}
}
