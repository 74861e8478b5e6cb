package config

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"testbay/pkg/logging"
)

// isolate clears the variables Load reads so the host environment does not leak in.
func isolate(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		ConfigEnvVar,
		"TESTBAY_RUNTIME",
		"TESTBAY_CONTAINER_RUNTIME",
		"TESTBAY_STARTUP_TIMEOUT",
		"TESTBAY_STOP_PARALLELISM",
		"TESTBAY_LIVE_LOGGING",
		"TESTBAY_DEBUG",
		"TESTBAY_DATABASE_JNDI",
		"TESTBAY_LOG_LEVEL",
		"TESTBAY_LOG_FORMAT",
	} {
		t.Setenv(key, "")
	}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	s, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "", s.Runtime)
	assert.Equal(t, "docker", s.Container.Runtime)
	assert.Equal(t, DefaultStartupTimeout, s.Startup.Timeout)
	assert.Equal(t, DefaultStopParallelism, s.Stop.Parallelism)
	assert.False(t, s.LiveLogging)
	assert.False(t, s.Debug)
	assert.Equal(t, DatabaseEnv{URL: "ds_url", Username: "ds_username", Password: "ds_password"}, s.Database.Env)
	assert.Equal(t, logging.LevelWarn, s.LogLevel())
	assert.Equal(t, "text", s.Log.Format)
}

func TestLoad_FileAndEnvironment(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	writeFile(t, dir, configFileName, `
runtime: WildFly
container:
  runtime: podman
startup:
  timeout: 90s
stop:
  parallelism: 2
database:
  jndi: java:jboss/datasources/appDS
  env:
    url: DB_URL
log:
  level: debug
`)

	s, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "wildfly", s.Runtime)
	assert.Equal(t, "podman", s.Container.Runtime)
	assert.Equal(t, 90*time.Second, s.Startup.Timeout)
	assert.Equal(t, 2, s.Stop.Parallelism)
	assert.Equal(t, "java:jboss/datasources/appDS", s.Database.JNDI)
	assert.Equal(t, "DB_URL", s.Database.Env.URL)
	assert.Equal(t, "ds_username", s.Database.Env.Username)
	assert.Equal(t, logging.LevelDebug, s.LogLevel())

	t.Setenv("TESTBAY_STARTUP_TIMEOUT", "2m")
	t.Setenv("TESTBAY_RUNTIME", "payara-micro")
	t.Setenv("TESTBAY_LIVE_LOGGING", "true")

	s, err = Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, s.Startup.Timeout)
	assert.Equal(t, "payara-micro", s.Runtime)
	assert.True(t, s.LiveLogging)
}

func TestLoad_ExplicitFile(t *testing.T) {
	isolate(t)
	other := t.TempDir()
	path := writeFile(t, other, "ci.yaml", "debug: true\n")
	t.Setenv(ConfigEnvVar, path)

	s, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.True(t, s.Debug)

	t.Setenv(ConfigEnvVar, filepath.Join(other, "missing.yaml"))
	_, err = Load(t.TempDir())
	var ce ConfigurationError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "io", ce.ErrorType)
	assert.Contains(t, ce.DetailedError(), "Unset TESTBAY_CONFIG")
}

func TestLoad_DotEnv(t *testing.T) {
	isolate(t)
	const key = "TESTBAY_STOP_PARALLELISM"
	require.NoError(t, os.Unsetenv(key))
	t.Cleanup(func() { _ = os.Unsetenv(key) })

	dir := t.TempDir()
	writeFile(t, dir, dotEnvFileName, key+"=7\nTESTBAY_DEBUG=true\n")

	s, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 7, s.Stop.Parallelism)
	assert.False(t, s.Debug, "variables already set are not overridden")
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		wantType string
		wantText string
	}{
		{
			name:     "malformed yaml",
			content:  "startup: [timeout",
			wantType: "parse",
		},
		{
			name:     "unknown container runtime",
			content:  "container:\n  runtime: rkt\n",
			wantType: "validation",
			wantText: "container.runtime",
		},
		{
			name:     "zero parallelism",
			content:  "stop:\n  parallelism: 0\n",
			wantType: "validation",
			wantText: "stop.parallelism",
		},
		{
			name:     "negative timeout",
			content:  "startup:\n  timeout: -5s\n",
			wantType: "validation",
			wantText: "startup.timeout",
		},
		{
			name:     "bad log level",
			content:  "log:\n  level: loud\n",
			wantType: "validation",
			wantText: "log.level",
		},
		{
			name:     "bad log format",
			content:  "log:\n  format: xml\n",
			wantType: "validation",
			wantText: "log.format",
		},
		{
			name:     "empty env name",
			content:  "database:\n  env:\n    password: \" \"\n",
			wantType: "validation",
			wantText: "database.env.password",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			dir := t.TempDir()
			path := writeFile(t, dir, configFileName, tt.content)

			_, err := Load(dir)
			var ce ConfigurationError
			require.True(t, errors.As(err, &ce), "got %v", err)
			assert.Equal(t, tt.wantType, ce.ErrorType)
			assert.Equal(t, path, ce.FilePath)
			assert.Contains(t, ce.Details, tt.wantText)
		})
	}
}

func TestConfigurationError_Format(t *testing.T) {
	ce := ConfigurationError{
		ErrorType:   "validation",
		Message:     "invalid settings",
		Details:     "setting 'stop.parallelism': must be at least 1",
		Suggestions: []string{"Use a positive number"},
	}
	assert.Equal(t, "[validation] environment: invalid settings", ce.Error())
	detailed := ce.DetailedError()
	assert.Contains(t, detailed, "environment settings")
	assert.Contains(t, detailed, "    - Use a positive number")
}

func TestValidationErrors(t *testing.T) {
	var errs ValidationErrors
	assert.False(t, errs.HasErrors())
	errs.Add("a", "is wrong")
	assert.Equal(t, "setting 'a': is wrong", errs.Error())
	errs.Add("", "global problem")
	assert.Equal(t, "validation failed: setting 'a': is wrong; global problem", errs.Error())

	assert.NoError(t, ValidateOneOf("x", "Docker", ContainerRuntimes))
	assert.Error(t, ValidateOneOf("x", "lxc", ContainerRuntimes))
}

func TestSettings_InitLogging(t *testing.T) {
	t.Cleanup(func() { logging.InitForCLI(logging.LevelWarn, os.Stderr) })

	tests := []struct {
		format string
		want   string
	}{
		{format: "text", want: "msg=hello"},
		{format: "JSON", want: `"msg":"hello"`},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			var buf bytes.Buffer
			s := Settings{Log: LogSettings{Level: "info", Format: tt.format}}
			s.InitLogging(&buf)
			logging.Info("Config", "hello")
			assert.Contains(t, buf.String(), tt.want)
			assert.Contains(t, buf.String(), "Config")
		})
	}
}
