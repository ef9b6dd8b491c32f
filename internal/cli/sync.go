package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	apperrors "github.com/dealguard/dealguard/internal/errors"
)

// syncCmd represents the sync command
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one sync pass for a user",
	Long: `Run one deal sync pass for the given user and print the report.

Example:
  dealguard sync --user user-123`,
	RunE: runSync,
}

var syncFlags struct {
	User    string
	Timeout time.Duration
}

func init() {
	syncCmd.Flags().StringVar(&syncFlags.User, "user", "", "User id to sync (required)")
	syncCmd.Flags().DurationVar(&syncFlags.Timeout, "timeout", 2*time.Minute, "Overall sync timeout")
	_ = syncCmd.MarkFlagRequired("user")

	RootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	svc, err := buildServices()
	if err != nil {
		return err
	}
	defer svc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), syncFlags.Timeout)
	defer cancel()

	report, err := svc.syncer.SyncDeals(ctx, syncFlags.User)
	if err != nil {
		if errors.Is(err, apperrors.ErrReconnectRequired) {
			return fmt.Errorf("connection invalidated, the user must reconnect their CRM account")
		}
		return fmt.Errorf("sync failed: %w", err)
	}

	if globalFlags.JSON {
		return json.NewEncoder(os.Stdout).Encode(report)
	}

	if !report.Connected {
		fmt.Println("Not connected: no CRM credential stored for this user.")
		return nil
	}
	fmt.Printf("Synced %d/%d deals", report.Synced, report.Total)
	if report.Failed > 0 {
		fmt.Printf(" (%d failed)", report.Failed)
	}
	fmt.Println()
	return nil
}
