package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"calgrid/internal/config"
	"calgrid/internal/emit"
	appLog "calgrid/internal/log"
)

var watchJSON bool

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().BoolVar(&watchJSON, "json", false, "print the view as JSON on every change")
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Refresh the feeds on the configured schedule and print the view on every change",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		conf, err := loadConfig()
		if err != nil {
			return err
		}
		appLog.Info("calgrid starting", "version", version)

		// Root context with cancellation on SIGINT/SIGTERM.
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigCh)
		go func() {
			select {
			case sig := <-sigCh:
				appLog.Info("signal received, shutting down", "signal", sig.String())
				cancel()
			case <-ctx.Done():
			}
		}()

		e, fetcher := newEngine(conf)
		defer e.Close()

		var printMu sync.Mutex
		show := func() {
			printMu.Lock()
			defer printMu.Unlock()
			out := snapshot(e)
			var err error
			if watchJSON {
				err = writeJSON(os.Stdout, out)
			} else {
				err = writeText(os.Stdout, out)
			}
			if err != nil {
				appLog.Error("print view failed", err)
			}
		}
		unsubscribe := e.Subscribe(func(n emit.Notification) {
			switch n.Name {
			case emit.ViewChange:
				appLog.Debug("view changed", "view", n.View.ID, "title", n.View.Title)
			case emit.UpdateEvents:
				appLog.Debug("events updated", "count", len(n.Events))
			}
		})
		defer unsubscribe()

		sched := cron.New()
		var jobMu sync.Mutex
		var refreshJob cron.EntryID
		schedule := func(spec string) {
			jobMu.Lock()
			defer jobMu.Unlock()
			if refreshJob != 0 {
				sched.Remove(refreshJob)
			}
			id, err := sched.AddFunc(spec, func() {
				refresh(ctx, e, fetcher)
				show()
			})
			if err != nil {
				appLog.Error("invalid refresh schedule", err, "refresh", spec)
				return
			}
			refreshJob = id
		}
		schedule(conf.RefreshCron)
		// Keep today in view across midnight.
		if _, err := sched.AddFunc("0 0 * * *", func() {
			if e.GoToToday() {
				show()
			}
		}); err != nil {
			return err
		}

		refresh(ctx, e, fetcher)
		show()
		sched.Start()

		if err := config.Watch(ctx, configPath, func(next *config.Config) {
			applyLogLevel(next)
			e.Reconfigure(next)
			schedule(next.RefreshCron)
			refresh(ctx, e, fetcher)
			show()
		}); err != nil {
			appLog.Error("config watch disabled", err, "config_path", configPath)
		}

		<-ctx.Done()

		stopped := sched.Stop()
		select {
		case <-stopped.Done():
		case <-time.After(5 * time.Second):
			appLog.Warn("refresh job still running at shutdown")
		}
		appLog.Info("calgrid exiting")
		return nil
	},
}
