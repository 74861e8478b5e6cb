package cmd

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"testbay/pkg/orchestrator"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeStartupFailed indicates the environment did not come up.
	ExitCodeStartupFailed = 2
	// ExitCodeStopFailed indicates that some containers could not be stopped.
	ExitCodeStopFailed = 3
)

// rootCmd represents the base command for the testbay application.
var rootCmd = &cobra.Command{
	Use:   "testbay",
	Short: "Run container-based integration test environments",
	Long: `testbay starts an application server with your web archive, an optional
database and stub servers on a private container network, and tears them
down again. The same environments back Go integration tests through the
itest package.`,
	// SilenceUsage prevents Cobra from printing the usage message on errors that are handled by the application.
	SilenceUsage: true,
}

// SetVersion sets the version for the root command.
// This function is typically called from the main package to inject the application version at build time.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute is the main entry point for the CLI application.
// This function is called by main.main().
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "testbay version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(getExitCode(err))
	}
}

// getExitCode determines the appropriate exit code based on the error type.
// This provides semantic exit codes for scripting and automation.
func getExitCode(err error) int {
	if errors.Is(err, orchestrator.ErrStartup) {
		return ExitCodeStartupFailed
	}

	var stopErr *orchestrator.AggregatedStopError
	if errors.As(err, &stopErr) {
		return ExitCodeStopFailed
	}

	return ExitCodeError
}

func init() {
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newCheckCmd())
	rootCmd.AddCommand(newUpCmd())
}
