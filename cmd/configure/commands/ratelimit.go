package commands

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emeraldgrove/grove-relay/internal/config"
	"github.com/emeraldgrove/grove-relay/internal/ratelimit"
	"github.com/emeraldgrove/grove-relay/internal/request"
	"github.com/spf13/cobra"
)

// quotaStore is the part of the Redis limiter the ratelimit commands use.
type quotaStore interface {
	Status(ctx context.Context, identifier string, maxRequests int) (ratelimit.Status, error)
	Reset(ctx context.Context, identifier string) error
}

// NewRatelimitCmd creates the ratelimit command with status and reset subcommands.
func NewRatelimitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ratelimit",
		Short: "Inspect or reset client quotas",
		Long:  "Inspect or reset a client's chat quota. Requires RATE_LIMIT_STORE=redis; in-memory quotas live inside the server process.",
	}
	cmd.AddCommand(newRatelimitStatusCmd())
	cmd.AddCommand(newRatelimitResetCmd())
	return cmd
}

func newRatelimitStatusCmd() *cobra.Command {
	var client string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show a client's remaining quota",
		RunE: func(cmd *cobra.Command, args []string) error {
			client = strings.TrimSpace(client)
			if client == "" {
				return fmt.Errorf("--client is required (an IP address or \"unknown\")")
			}
			cfg, store, closeStore, err := openQuotaStore(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore()
			return printQuotaStatus(cmd.Context(), cmd.OutOrStdout(), store, client, cfg.RateLimitMax)
		},
	}
	cmd.Flags().StringVar(&client, "client", "", "Client identifier, as derived from X-Forwarded-For or X-Real-IP (required)")
	return cmd
}

func newRatelimitResetCmd() *cobra.Command {
	var client string
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Clear a client's quota window",
		RunE: func(cmd *cobra.Command, args []string) error {
			client = strings.TrimSpace(client)
			if client == "" {
				return fmt.Errorf("--client is required (an IP address or \"unknown\")")
			}
			_, store, closeStore, err := openQuotaStore(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore()
			return resetQuota(cmd.Context(), cmd.OutOrStdout(), store, client)
		},
	}
	cmd.Flags().StringVar(&client, "client", "", "Client identifier, as derived from X-Forwarded-For or X-Real-IP (required)")
	return cmd
}

func openQuotaStore(ctx context.Context) (*config.Config, *ratelimit.StoreLimiter, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.RateLimitStore != config.StoreRedis {
		return nil, nil, nil, fmt.Errorf("RATE_LIMIT_STORE is %q; quotas can only be inspected with the %q store", cfg.RateLimitStore, config.StoreRedis)
	}
	store, err := ratelimit.NewRedisLimiter(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect to redis: %w", err)
	}
	return cfg, store, func() { _ = store.Close() }, nil
}

func printQuotaStatus(ctx context.Context, out io.Writer, store quotaStore, client string, maxRequests int) error {
	id := request.NormalizeIdentifier(client)
	st, err := store.Status(ctx, id, maxRequests)
	if err != nil {
		return fmt.Errorf("get quota status: %w", err)
	}
	fmt.Fprintf(out, "Client: %s\n", id)
	fmt.Fprintf(out, "  Limit: %d\n", maxRequests)
	fmt.Fprintf(out, "  Remaining: %d\n", st.Remaining)
	if st.ResetAt != nil {
		fmt.Fprintf(out, "  Resets at: %s (in %s)\n", ratelimit.FormatResetTime(*st.ResetAt), time.Until(*st.ResetAt).Round(time.Second))
	} else {
		fmt.Fprintln(out, "  No active window")
	}
	return nil
}

func resetQuota(ctx context.Context, out io.Writer, store quotaStore, client string) error {
	id := request.NormalizeIdentifier(client)
	if err := store.Reset(ctx, id); err != nil {
		return fmt.Errorf("reset quota: %w", err)
	}
	fmt.Fprintf(out, "Quota reset for client %s\n", id)
	return nil
}
