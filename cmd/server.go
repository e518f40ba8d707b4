package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/golang/glog"
	"github.com/spf13/cobra"

	"github.com/itiky/resource-sync/service/server"
	"github.com/itiky/resource-sync/storage"
)

const (
	FlagPort          = "port"
	FlagAdvancePeriod = "advance-period"
	FlagFailRate      = "fail-rate"
	FlagMonitorPeriod = "monitor-period"
	FlagSeed          = "seed"
)

// GetServerCmd returns the fake CI HTTP server start command.
func GetServerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Start fake CI HTTP server",
		Run: func(cmd *cobra.Command, args []string) {
			// Parse inputs
			port, err := cmd.Flags().GetInt(FlagPort)
			if err != nil {
				glog.Exitf("%s flag: %v", FlagPort, err)
			}
			advanceDur, err := cmd.Flags().GetDuration(FlagAdvancePeriod)
			if err != nil {
				glog.Exitf("%s flag: %v", FlagAdvancePeriod, err)
			}
			failRate, err := cmd.Flags().GetFloat64(FlagFailRate)
			if err != nil {
				glog.Exitf("%s flag: %v", FlagFailRate, err)
			}
			monitorDur, err := cmd.Flags().GetDuration(FlagMonitorPeriod)
			if err != nil {
				glog.Exitf("%s flag: %v", FlagMonitorPeriod, err)
			}
			seed, err := cmd.Flags().GetInt64(FlagSeed)
			if err != nil {
				glog.Exitf("%s flag: %v", FlagSeed, err)
			}
			filePath, err := cmd.Flags().GetString(FlagFilePath)
			if err != nil {
				glog.Exitf("%s flag: %v", FlagFilePath, err)
			}

			// Init service
			fixture, err := server.LoadFixture(filePath)
			if err != nil {
				glog.Exitf("fixture: %v", err)
			}
			state, err := server.NewState(fixture)
			if err != nil {
				glog.Exitf("state init: %v", err)
			}
			monitor, err := storage.NewMonitor(monitorDur)
			if err != nil {
				glog.Exitf("monitor init: %v", err)
			}
			svc, err := server.NewCIService(state, server.Config{
				AdvancePeriod: advanceDur,
				FailRate:      failRate,
				Seed:          seed,
			}, monitor)
			if err != nil {
				glog.Exitf("service init: %v", err)
			}

			// Start server
			srv := &http.Server{
				Addr:              ":" + strconv.Itoa(port),
				Handler:           svc.Handler(),
				ReadHeaderTimeout: 5 * time.Second,
			}
			svc.Start()
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					glog.Exitf("HTTP server: listen: %v", err)
				}
			}()
			glog.Infof("HTTP server started: :%d", port)

			// Wait for signal
			signalCh := make(chan os.Signal, 1)
			signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)
			<-signalCh

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				glog.Warningf("HTTP server: shutdown: %v", err)
			}
			svc.Stop()
		},
	}
	cmd.Flags().Int(FlagPort, 2412, "(optional) server port")
	cmd.Flags().Duration(FlagAdvancePeriod, 3*time.Second, "(optional) running builds advance period")
	cmd.Flags().Float64(FlagFailRate, 0.2, "(optional) build failure probability")
	cmd.Flags().Duration(FlagMonitorPeriod, 10*time.Second, "(optional) requests report period")
	cmd.Flags().Int64(FlagSeed, time.Now().UnixNano(), "(optional) random seed")
	cmd.Flags().String(FlagFilePath, "./fixture.yaml", "(optional) path to the fixture file")

	return cmd
}

func init() {
	rootCmd.AddCommand(GetServerCmd())
}
