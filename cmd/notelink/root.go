package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var noColor bool

var rootCmd = &cobra.Command{
	Use:   "notelink",
	Short: "Semantic linking engine for hierarchical notes",
	Long: `notelink keeps a user's bullet-tree notes semantically linked: it embeds
bullets with their tree context, searches them by meaning, suggests
reorganization links, and keeps portal references in sync as notes change.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the notelink version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("notelink version %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(linksCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(configCmd)
}
