// Command thothctl runs operator tasks against the configured store.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"thoth/internal/config"
	"thoth/internal/database"
	"thoth/internal/engine"
	"thoth/internal/middleware"
	"thoth/internal/models"
	"thoth/internal/posts"
	"thoth/internal/resolve"
	"thoth/internal/utils"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// deps are the pieces commands need; tests swap them for in-memory ones.
type deps struct {
	loadConfig func() (*config.Config, error)
	openStore  func(ctx context.Context, cfg *config.DatabaseConfig) (database.Store, error)
}

func main() {
	root := newRootCmd(deps{loadConfig: config.LoadConfig, openStore: database.Open})
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(d deps) *cobra.Command {
	root := &cobra.Command{
		Use:          "thothctl",
		Short:        "Operator tools for the Thoth feed",
		SilenceUsage: true,
	}
	root.AddCommand(newRepairCmd(d), newFeedCmd(d), newTokenCmd(d))
	return root
}

// withServices loads config and the store, runs fn, then closes the store.
func withServices(ctx context.Context, d deps, fn func(cfg *config.Config, svc engine.Services) error) error {
	cfg, err := d.loadConfig()
	if err != nil {
		return err
	}
	utils.InitLogger(cfg.LogLevel, cfg.Debug)
	defer utils.SyncLogger()

	store, err := d.openStore(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(context.Background()); err != nil {
			utils.Logger.Warn("store close failed", zap.Error(err))
		}
	}()

	return fn(cfg, engine.NewServices(store, nil, nil, cfg.Feed, utils.NewMetricsCollector()))
}

func newRepairCmd(d deps) *cobra.Command {
	var timeout, minAge time.Duration
	cmd := &cobra.Command{
		Use:   "repair",
		Short: "Replay pending delete and repost intents",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			return withServices(ctx, d, func(_ *config.Config, svc engine.Services) error {
				report, err := svc.Posts.WithRepairMinAge(minAge).Repair(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), report)
			})
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "overall deadline")
	cmd.Flags().DurationVar(&minAge, "min-age", posts.DefaultRepairMinAge, "skip intents younger than this")
	return cmd
}

func newFeedCmd(d deps) *cobra.Command {
	var userID, filter string
	cmd := &cobra.Command{
		Use:   "feed",
		Short: "Print a user's resolved feed",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := models.ParseFeedFilter(filter)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			return withServices(ctx, d, func(_ *config.Config, svc engine.Services) error {
				viewer, err := svc.Profiles.Identity(ctx, userID)
				if err != nil {
					return err
				}
				list, err := svc.Feed.Load(ctx, viewer.UID, f)
				if err != nil {
					return err
				}
				var cards []*resolve.Card
				if f == models.FilterBookmarks {
					cards = resolve.Snapshot(viewer, list)
				} else if cards, err = svc.Resolver.ResolveAll(ctx, viewer, list); err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), cards)
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "viewer user id")
	cmd.Flags().StringVar(&filter, "filter", string(models.FilterAll), "feed filter")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newTokenCmd(d deps) *cobra.Command {
	var userID string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := d.loadConfig()
			if err != nil {
				return err
			}
			if ttl <= 0 {
				ttl = cfg.Auth.TokenTTL
			}
			token, err := middleware.NewAuth(cfg.Auth.JWTSecret, ttl).GenerateToken(userID)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id the token is issued for")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (defaults to TOKEN_TTL)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
