package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/ethpandaops/execution-cfg/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Prints the version of execution-cfg.",
	Long:  `Prints the version of execution-cfg.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Version: %s\nCommit: %s\nOS/Arch: %s/%s\n",
			version.GetRelease(), version.GetGitCommit(), runtime.GOOS, runtime.GOARCH)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
