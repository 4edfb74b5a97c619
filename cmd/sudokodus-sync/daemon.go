package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/sudokodus/sudokodus/internal/config"
	"github.com/sudokodus/sudokodus/internal/daemon"
	"github.com/sudokodus/sudokodus/internal/dashboard"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the background sync daemon",
	Long: `Runs sync continuously: a full cycle on the configured interval,
plus debounced game state sync whenever another process writes to the
database file. Optionally serves a WebSocket dashboard for live
monitoring.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logFile, _ := cmd.Flags().GetString("log-file")
		logger := log.New(os.Stderr, "[sudokodus] ", log.LstdFlags)
		if logFile != "" {
			logger.SetOutput(&lumberjack.Logger{
				Filename:   logFile,
				MaxSize:    10, // megabytes
				MaxBackups: 3,
				MaxAge:     14, // days
				Compress:   true,
			})
		}

		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		orch, cm := buildEngine(s, logger)

		cfg := config.Load()
		d, err := daemon.NewWithConfig(orch, s.Path(), &daemon.Config{
			SyncInterval:     cfg.SyncInterval,
			DebounceInterval: daemon.DefaultConfig().DebounceInterval,
			Logger:           logger,
		})
		if err != nil {
			return fmt.Errorf("failed to create daemon: %w", err)
		}

		withDashboard, _ := cmd.Flags().GetBool("dashboard")
		if withDashboard {
			srv := dashboard.NewServer(&dashboard.Config{
				Port:   cfg.DashboardPort,
				Logger: logger,
			})
			h := dashboard.NewHandler(srv, orch, cm, logger)
			if err := srv.Start(); err != nil {
				return fmt.Errorf("failed to start dashboard: %w", err)
			}
			h.Start()
			defer func() {
				h.Stop()
				_ = srv.Stop()
			}()
			fmt.Printf("Dashboard: http://%s/\n", srv.GetAddr())
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return d.Start(ctx)
	},
}

func init() {
	daemonCmd.Flags().Bool("dashboard", false, "Serve the WebSocket dashboard")
	daemonCmd.Flags().String("log-file", "", "Write logs to this file with rotation (default: stderr)")
	rootCmd.AddCommand(daemonCmd)
}
