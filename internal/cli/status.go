package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show a user's CRM connection status",
	RunE:  runStatus,
}

var statusFlags struct {
	User string
}

func init() {
	statusCmd.Flags().StringVar(&statusFlags.User, "user", "", "User id to inspect (required)")
	_ = statusCmd.MarkFlagRequired("user")

	RootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	svc, err := buildServices()
	if err != nil {
		return err
	}
	defer svc.Close()

	status := svc.connections.Status(statusFlags.User)

	if globalFlags.JSON {
		return json.NewEncoder(os.Stdout).Encode(status)
	}

	if !status.Connected {
		fmt.Println("Not connected")
		return nil
	}
	fmt.Println("Connected")
	if status.Expired {
		fmt.Println("Access token: expired (will refresh on next sync)")
	} else {
		fmt.Println("Access token: valid")
	}
	if status.LastSync != nil {
		fmt.Println("Last sync:", status.LastSync.Format("2006-01-02 15:04:05 MST"))
	} else {
		fmt.Println("Last sync: never")
	}
	if status.Scope != "" {
		fmt.Println("Scope:", status.Scope)
	}
	return nil
}
