package main

import (
	"time"

	"github.com/golang/glog"
	"github.com/spf13/cobra"

	"github.com/itiky/resource-sync/service/server"
)

const (
	FlagFilePath  = "file-path"
	FlagAppsCnt   = "apps"
	FlagBuildsCnt = "builds"
)

// GetGenerateCmd returns the generate fixture command.
func GetGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gen",
		Short: "Generate a fake CI server fixture",
		Run: func(cmd *cobra.Command, args []string) {
			// Parse inputs
			filePath, err := cmd.Flags().GetString(FlagFilePath)
			if err != nil {
				glog.Exitf("%s flag: %v", FlagFilePath, err)
			}
			appsCnt, err := cmd.Flags().GetInt(FlagAppsCnt)
			if err != nil {
				glog.Exitf("%s flag: %v", FlagAppsCnt, err)
			}
			buildsCnt, err := cmd.Flags().GetInt(FlagBuildsCnt)
			if err != nil {
				glog.Exitf("%s flag: %v", FlagBuildsCnt, err)
			}
			seed, err := cmd.Flags().GetInt64(FlagSeed)
			if err != nil {
				glog.Exitf("%s flag: %v", FlagSeed, err)
			}

			// Work
			if err := server.GenAndSaveFixture(filePath, appsCnt, buildsCnt, seed); err != nil {
				glog.Exitf("gen failed: %v", err)
			}
		},
	}
	cmd.Flags().String(FlagFilePath, "./fixture.yaml", "(optional) output file path")
	cmd.Flags().Int(FlagAppsCnt, 3, "(optional) number of apps")
	cmd.Flags().Int(FlagBuildsCnt, 20, "(optional) number of builds per app")
	cmd.Flags().Int64(FlagSeed, time.Now().UnixNano(), "(optional) random seed")

	return cmd
}

func init() {
	rootCmd.AddCommand(GetGenerateCmd())
}
