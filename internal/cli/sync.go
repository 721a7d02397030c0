package cli

import (
	"context"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Priivacy-ai/spec-kitty-sub005/internal/config"
	"github.com/Priivacy-ai/spec-kitty-sub005/internal/emitter"
	"github.com/Priivacy-ai/spec-kitty-sub005/internal/kerrors"
	kittysync "github.com/Priivacy-ai/spec-kitty-sub005/internal/sync"
)

var syncCmd = &cobra.Command{
	Use:   "sync [now|status]",
	Short: "Drive or inspect the offline event sync queue",
	Args:  cobra.MaximumNArgs(1),
	RunE: wrap("sync", func(cmd *cobra.Command, args []string) (map[string]any, error) {
		mode := "status"
		if len(args) == 1 {
			mode = args[0]
		}
		if mode != "now" && mode != "status" {
			return nil, kerrors.New(kerrors.UsageError, "sync takes 'now' or 'status'").WithData("got", mode)
		}

		home, err := config.RuntimeHome()
		if err != nil {
			return nil, err
		}
		creds, err := config.LoadCredentials(home)
		if err != nil {
			return nil, err
		}
		if creds == nil {
			return nil, kerrors.New(kerrors.AuthError, "not logged in; run 'auth login' first")
		}

		queue, err := kittysync.Open(filepath.Join(home, "cache", "sync-queue.db"))
		if err != nil {
			return nil, kerrors.Wrap(kerrors.NetworkError, "opening sync queue", err)
		}
		defer queue.Close()

		scope := emitter.AccountScope{ServerURL: creds.ServerURL, Username: creds.Username, TeamSlug: creds.TeamSlug}

		if mode == "status" {
			pending, err := queue.PendingCount(scope)
			if err != nil {
				return nil, err
			}
			return map[string]any{"pending": pending, "scope": scope.Key()}, nil
		}

		client := kittysync.NewClient(creds.ServerURL + "/api/events/batch")
		daemon := kittysync.NewDaemon(client, queue, scope, func() string { return creds.AccessToken }, zap.NewNop())
		if err := daemon.SyncNow(context.Background()); err != nil {
			return nil, kerrors.Wrap(kerrors.NetworkError, "sync failed", err)
		}

		pending, err := queue.PendingCount(scope)
		if err != nil {
			return nil, err
		}
		return map[string]any{"pending": pending, "scope": scope.Key()}, nil
	}),
}
