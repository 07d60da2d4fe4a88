package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Refresh expiring tokens once and exit",
	Long: `Run one batch refresh over every stored session whose access token is
inside the refresh threshold, print the counts as JSON and exit. Intended for
cron when the HTTP refresh route is not exposed.`,
	RunE: runRefresh,
}

func init() {
	rootCmd.AddCommand(refreshCmd)
}

func runRefresh(_ *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	_, engine, err := buildEngine(ctx)
	if err != nil {
		return err
	}
	defer engine.Close()

	res, err := engine.RefreshExpiringTokens(ctx)
	if err != nil {
		return fmt.Errorf("refreshing tokens: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
