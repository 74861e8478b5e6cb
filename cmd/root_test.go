package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"testbay/pkg/orchestrator"
)

func TestSetVersion(t *testing.T) {
	original := GetVersion()
	defer SetVersion(original)

	SetVersion("1.2.3-test")
	assert.Equal(t, "1.2.3-test", rootCmd.Version)
	assert.Equal(t, "1.2.3-test", GetVersion())
}

func TestRootCommand(t *testing.T) {
	assert.Equal(t, "testbay", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
	assert.True(t, rootCmd.SilenceUsage)
}

func TestVersionTemplate(t *testing.T) {
	testCmd := &cobra.Command{Use: "test", Version: "1.0.0"}
	testCmd.SetVersionTemplate(`{{printf "testbay version %s\n" .Version}}`)

	var buf bytes.Buffer
	testCmd.SetOut(&buf)
	testCmd.SetArgs([]string{"--version"})
	require.NoError(t, testCmd.Execute())

	assert.Equal(t, "testbay version 1.0.0\n", buf.String())
}

func TestSubcommands(t *testing.T) {
	found := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		found[c.Name()] = true
	}
	for _, name := range []string{"version", "check", "up"} {
		assert.True(t, found[name], "subcommand %s should be registered", name)
	}
}

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{
			name: "generic error",
			err:  errors.New("boom"),
			want: ExitCodeError,
		},
		{
			name: "startup failure",
			err:  fmt.Errorf("up: %w", &orchestrator.StartupError{Failed: []string{"db"}, Cause: errors.New("x")}),
			want: ExitCodeStartupFailed,
		},
		{
			name: "startup timeout",
			err:  &orchestrator.StartupTimeoutError{Pending: []string{"app"}},
			want: ExitCodeStartupFailed,
		},
		{
			name: "stop failure",
			err: &orchestrator.AggregatedStopError{Failures: []orchestrator.StopFailure{
				{Name: "app", Err: errors.New("still running")},
			}},
			want: ExitCodeStopFailed,
		},
		{
			name: "startup wins over stop",
			err: errors.Join(
				&orchestrator.StartupError{Failed: []string{"db"}, Cause: errors.New("x")},
				&orchestrator.AggregatedStopError{Failures: []orchestrator.StopFailure{{Name: "db", Err: errors.New("y")}}},
			),
			want: ExitCodeStartupFailed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, getExitCode(tt.err))
		})
	}
}
