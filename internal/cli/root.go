package cli

import (
	"fmt"
	"os"
	"runtime"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// GlobalFlags contains global flags available for all commands
type GlobalFlags struct {
	Config  string
	DBPath  string
	Verbose bool
	JSON    bool
}

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "dealguard",
	Short: "DealGuard - CRM Deal Sync and Risk Scoring",
	Long: `DealGuard keeps a local, queryable copy of your HubSpot deals and scores
each one for risk as it lands.

It manages the OAuth connection per user, pulls deals with their company
and contact associations, derives activity metrics, and applies each
user's risk policy to produce explainable scores.

Usage:
  dealguard [command] [flags]

Available Commands:
  serve      Start the DealGuard server (main mode)
  sync       Run one sync pass for a user
  status     Show a user's CRM connection status

Flags:
  --config string   Path to configuration file (default "config.yaml")
  --db string       Path to SQLite database (default "./data/dealguard.db")
  --verbose         Enable verbose output
  --json            Output in JSON format

Use "dealguard [command] --help" for more information about a command.`,
}

var globalFlags GlobalFlags

// InitRoot initializes the root command with global flags
func InitRoot() {
	// A local .env is optional; ignore a missing file.
	_ = godotenv.Load()

	configPath := os.Getenv("DEALGUARD_CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	dbPath := os.Getenv("DEALGUARD_DB_PATH")
	if dbPath == "" {
		dbPath = "./data/dealguard.db"
	}

	RootCmd.PersistentFlags().StringVar(&globalFlags.Config, "config", configPath, "Path to configuration file")
	RootCmd.PersistentFlags().StringVar(&globalFlags.DBPath, "db", dbPath, "Path to SQLite database")
	RootCmd.PersistentFlags().BoolVarP(&globalFlags.Verbose, "verbose", "v", false, "Enable verbose output")
	RootCmd.PersistentFlags().BoolVar(&globalFlags.JSON, "json", false, "Output in JSON format")

	RootCmd.AddCommand(versionCmd)
}

// Execute runs the root command with the given arguments
func Execute(args []string) error {
	InitRoot()
	RootCmd.SetArgs(args)

	if err := RootCmd.Execute(); err != nil {
		return fmt.Errorf("command execution failed: %w", err)
	}
	return nil
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of DealGuard",
	Run: func(cmd *cobra.Command, args []string) {
		printVersion()
	},
}

// VersionInfo contains version information
type VersionInfo struct {
	Version   string
	GoVersion string
	OS        string
	Arch      string
}

// GetVersionInfo returns version information
func GetVersionInfo() VersionInfo {
	return VersionInfo{
		Version:   "0.1.0",
		GoVersion: runtime.Version(),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

func printVersion() {
	info := GetVersionInfo()
	fmt.Println("DealGuard Version:", info.Version)
	fmt.Println("Go Version:", info.GoVersion)
	fmt.Println("OS/Arch:", info.OS+"/"+info.Arch)
}
