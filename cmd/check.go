package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/briandowns/spinner"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"testbay/internal/config"
	"testbay/pkg/containerizer"
)

// pinger is the part of a container runtime the check command needs.
type pinger interface {
	Ping(ctx context.Context) error
}

var newPinger = func(runtime string) (pinger, error) {
	return containerizer.NewContainerRuntime(runtime)
}

// newCheckCmd creates the command that verifies the container engine is reachable.
func newCheckCmd() *cobra.Command {
	var (
		runtime string
		quiet   bool
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check that the container engine can be reached",
		Long: `Check connects to the container engine (Docker or Podman) the same way
an environment would and reports whether it answers.

Examples:
  testbay check
  testbay check --runtime podman`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if runtime == "" {
				settings, err := config.Load("")
				if err != nil {
					return err
				}
				runtime = settings.Container.Runtime
			}
			return runCheck(cmd.Context(), cmd, runtime, timeout, quiet)
		},
	}
	cmd.Flags().StringVar(&runtime, "runtime", "", "Container engine: docker or podman (default from settings)")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "How long to wait for the engine")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Suppress non-essential output")
	return cmd
}

func runCheck(ctx context.Context, cmd *cobra.Command, runtime string, timeout time.Duration, quiet bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	p, err := newPinger(runtime)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if !quiet {
		s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(cmd.ErrOrStderr()))
		s.Suffix = fmt.Sprintf(" Contacting %s...", runtime)
		s.Start()
		defer s.Stop()
	}

	if err := p.Ping(ctx); err != nil {
		return fmt.Errorf("%s is not reachable: %w", runtime, err)
	}
	if !quiet {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s is reachable\n", text.FgGreen.Sprint("✓"), runtime)
	}
	return nil
}
