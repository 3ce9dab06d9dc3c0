package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"thoth/internal/utils"
	"thoth/simulator"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	config := simulator.DefaultConfig()
	var logLevel string

	cmd := &cobra.Command{
		Use:   "simulator",
		Short: "Drive a running engine with simulated users",
		RunE: func(cmd *cobra.Command, args []string) error {
			utils.InitLogger(logLevel, false)
			defer utils.SyncLogger()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			ctx, cancel := context.WithTimeout(ctx, config.SimulationTime)
			defer cancel()

			sim := simulator.New(config)
			go sim.LogMetrics(ctx, 10*time.Second)
			if err := sim.Run(ctx); err != nil {
				return err
			}

			m := sim.GetMetrics()
			utils.Logger.Info("simulation completed",
				zap.Int("users", m.TotalUsers),
				zap.Int("activeUsers", m.ActiveUsers),
				zap.Int("posts", m.TotalPosts),
				zap.Int("likes", m.Likes),
				zap.Int("bookmarks", m.Bookmarks),
				zap.Int("reposts", m.Reposts),
				zap.Int("inFlightRejected", m.InFlightRejected),
				zap.Int("duplicateReposts", m.DuplicateReposts),
				zap.Int("rolledBack", m.RolledBack),
				zap.Duration("averageLatency", m.AverageLatency),
				zap.Int("errors", m.ErrorCount))
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&config.EngineURL, "engine", config.EngineURL, "engine base URL")
	f.IntVar(&config.NumUsers, "users", config.NumUsers, "number of simulated users")
	f.DurationVar(&config.SimulationTime, "duration", config.SimulationTime, "how long to run")
	f.Float64Var(&config.PostFrequency, "post-rate", config.PostFrequency, "posts per user per hour")
	f.Float64Var(&config.InteractionFrequency, "interaction-rate", config.InteractionFrequency, "toggles per user per hour")
	f.Float64Var(&config.RepostPercentage, "repost-share", config.RepostPercentage, "share of interactions that are reposts")
	f.Float64Var(&config.DoubleTapRate, "double-tap", config.DoubleTapRate, "share of likes sent twice concurrently")
	f.Float64Var(&config.ZipfS, "zipf", config.ZipfS, "Zipf exponent for connection counts")
	f.StringVar(&logLevel, "log-level", "info", "log level")
	return cmd
}
