// Package main provides the clippy command: a Farcaster automation agent
// that drives the web client through a persistent browser session.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

const version = "0.1.0"

var (
	// Global flags
	configPath string
	envFile    string
	logLevel   string

	// One-shot command flags
	lockWait time.Duration
	theme    string
	headful  bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "clippy",
	Short: "Clippy - Farcaster automation agent",
	Long: `Clippy posts casts, follows accounts and engages with conversations on
Farcaster by driving the web client in a persistent Chromium profile.

Run "clippy run" to start the scheduler, or use the one-shot commands to
perform a single action. Browser work is serialized through a lock file so
one-shot commands and scheduled jobs never share the browser. Chromium is
closed at the end of every job, so the next lock holder starts it fresh on
the profile.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// runCmd starts the long-running agent
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the scheduler and the health server until interrupted",
	Args:  cobra.NoArgs,
	RunE:  runAgent,
}

var followCmd = &cobra.Command{
	Use:     "follow [profile-url]",
	Short:   "Follow a single profile",
	Example: `  clippy follow https://farcaster.xyz/dwr`,
	Args:    cobra.ExactArgs(1),
	RunE:    runFollow,
}

var searchCmd = &cobra.Command{
	Use:   "search [keywords...]",
	Short: "Print the profile URLs found for keywords",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

var followKeywordsCmd = &cobra.Command{
	Use:   "follow-keywords [keywords...]",
	Short: "Search for profiles and follow them, printing a JSON summary",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runFollowKeywords,
}

var postCmd = &cobra.Command{
	Use:   "post [text...]",
	Short: "Publish a cast",
	Long: `Publishes a cast through the web client. Without text, the cast is
generated from --theme (or the next configured theme) when content
generation is configured.`,
	RunE: runPost,
}

var jobCmd = &cobra.Command{
	Use:       "job [post|follow|engage]",
	Short:     "Run one scheduled job now",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"post", "follow", "engage"},
	RunE:      runJob,
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Open a visible browser and wait for the account to be logged in",
	Args:  cobra.NoArgs,
	RunE:  runLogin,
}

var unlockCmd = &cobra.Command{
	Use:   "unlock",
	Short: "Remove the browser lock file left by a crashed process",
	Args:  cobra.NoArgs,
	RunE:  runUnlock,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration with secrets masked",
	Args:  cobra.NoArgs,
	RunE:  runConfig,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to configuration file (default clippy.yaml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Dotenv file consulted for unset variables (empty to skip)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override the logging level (debug, info, warn, error)")

	for _, cmd := range []*cobra.Command{followCmd, searchCmd, followKeywordsCmd, postCmd, jobCmd, loginCmd} {
		cmd.Flags().DurationVar(&lockWait, "lock-wait", 0, "How long to wait for the browser lock (default from config)")
		cmd.Flags().BoolVar(&headful, "headful", false, "Show the browser window")
	}
	postCmd.Flags().StringVar(&theme, "theme", "", "Theme for a generated cast")

	rootCmd.AddCommand(runCmd, followCmd, searchCmd, followKeywordsCmd, postCmd, jobCmd, loginCmd, unlockCmd, configCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
