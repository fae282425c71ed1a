package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
)

var (
	configPath string
	logJSON    bool
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "automation",
	Short: "Scheduled content automation for the portal",
	Long: `automation runs the portal's scheduled generative content jobs.

Each invocation loads the portal state, runs every job whose schedule is due
(news digest, blog post, operations review), saves the state once and exits.
Point an external scheduler (cron, systemd timer) at "automation run".

Examples:
  automation run                     # run whatever is due
  automation run --task news --force # regenerate today's news digest
  automation status                  # schedules, last runs and errors
  automation recover < output.txt    # recover JSON from raw model output`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// exitCodeError ends the process with code without printing anything more.
type exitCodeError struct {
	code int
}

func (e exitCodeError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (yaml, json or toml)")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "write logs as JSON")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn or error")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(recoverCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err == nil {
		return
	}
	var exit exitCodeError
	if errors.As(err, &exit) {
		os.Exit(exit.code)
	}
	fmt.Fprintln(os.Stderr, "error:", err)
	for _, hint := range errors.GetAllHints(err) {
		fmt.Fprintln(os.Stderr, "hint:", hint)
	}
	os.Exit(1)
}
