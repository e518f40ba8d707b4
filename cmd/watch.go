package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang/glog"
	"github.com/spf13/cobra"

	"github.com/itiky/resource-sync/service/client"
)

const (
	FlagConfig     = "config"
	FlagServerUrl  = "server-url"
	FlagApp        = "app"
	FlagBranch     = "branch"
	FlagFetchMode  = "fetch-mode"
	FlagPollPeriod = "poll-period"
)

// GetWatchCmd returns the store watcher start command.
func GetWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch app builds through the client stores",
		Run: func(cmd *cobra.Command, args []string) {
			// Parse inputs: the config file first, flags on top
			cfg := client.DefaultWatchConfig()
			if configPath, _ := cmd.Flags().GetString(FlagConfig); configPath != "" {
				var err error
				if cfg, err = client.LoadWatchConfig(configPath); err != nil {
					glog.Exitf("config: %v", err)
				}
			}
			if cmd.Flags().Changed(FlagServerUrl) {
				cfg.ServerUrl, _ = cmd.Flags().GetString(FlagServerUrl)
			}
			if cmd.Flags().Changed(FlagApp) {
				cfg.App, _ = cmd.Flags().GetString(FlagApp)
			}
			if cmd.Flags().Changed(FlagBranch) {
				cfg.Branch, _ = cmd.Flags().GetString(FlagBranch)
			}
			if cmd.Flags().Changed(FlagFetchMode) {
				cfg.FetchMode, _ = cmd.Flags().GetString(FlagFetchMode)
			}
			if cmd.Flags().Changed(FlagPollPeriod) {
				cfg.PollPeriod, _ = cmd.Flags().GetDuration(FlagPollPeriod)
			}
			if err := cfg.Validate(); err != nil {
				glog.Exitf("config: %v", err)
			}

			// Init service
			c, err := client.NewClient(cfg.ServerUrl, cfg.Timeout)
			if err != nil {
				glog.Exitf("client init: %v", err)
			}
			if err := c.Ping(context.Background(), 120, 500*time.Millisecond); err != nil {
				glog.Exitf("server: %v", err)
			}
			w, err := client.NewWatcher(cfg, c.Api())
			if err != nil {
				glog.Exitf("watcher init: %v", err)
			}

			w.Start()

			// Wait for signal
			signalCh := make(chan os.Signal, 1)
			signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)
			<-signalCh

			w.Stop()
		},
	}
	cmd.Flags().String(FlagConfig, "", "(optional) YAML config file path")
	cmd.Flags().String(FlagServerUrl, "127.0.0.1:2412", "(optional) server url")
	cmd.Flags().String(FlagApp, "", "app id to watch")
	cmd.Flags().String(FlagBranch, "", "(optional) branch to watch")
	cmd.Flags().String(FlagFetchMode, "preserve-replace", "(optional) builds reconciliation mode: preserve-replace, replace, append, preserve-append")
	cmd.Flags().Duration(FlagPollPeriod, 2*time.Second, "(optional) builds poll period")

	return cmd
}

func init() {
	rootCmd.AddCommand(GetWatchCmd())
}
