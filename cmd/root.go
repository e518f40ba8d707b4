package main

import (
	goflag "flag"

	"github.com/golang/glog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// rootCmd is a base command.
var rootCmd = &cobra.Command{
	Use:   "resource-sync",
	Short: "CI dashboard resource cache: fake CI server and store watcher",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// glog reads its flags from the go flag set
		_ = goflag.CommandLine.Parse(nil)
	},
}

func main() {
	defer glog.Flush()

	pflag.CommandLine.AddGoFlagSet(goflag.CommandLine)
	if err := rootCmd.Execute(); err != nil {
		glog.Exitf("rootCmd.Execute: %v", err)
	}
}
