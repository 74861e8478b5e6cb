package config

import "time"

// Settings is the resolved testbay configuration.
type Settings struct {
	// Runtime is the application server runtime used when a test does not
	// name one (payara-micro, open-liberty, wildfly, glassfish).
	Runtime string `mapstructure:"runtime"`

	Container ContainerSettings `mapstructure:"container"`
	Startup   StartupSettings   `mapstructure:"startup"`
	Stop      StopSettings      `mapstructure:"stop"`
	Database  DatabaseSettings  `mapstructure:"database"`
	Log       LogSettings       `mapstructure:"log"`

	LiveLogging bool `mapstructure:"live_logging"`
	Debug       bool `mapstructure:"debug"`
}

// ContainerSettings select the container engine.
type ContainerSettings struct {
	Runtime string `mapstructure:"runtime"` // docker or podman
}

// StartupSettings bound environment startup.
type StartupSettings struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// StopSettings control teardown.
type StopSettings struct {
	Parallelism int `mapstructure:"parallelism"`
}

// DatabaseSettings are the names under which the application receives its
// datasource.
type DatabaseSettings struct {
	Env  DatabaseEnv `mapstructure:"env"`
	JNDI string      `mapstructure:"jndi"`
}

// DatabaseEnv names the datasource environment variables.
type DatabaseEnv struct {
	URL      string `mapstructure:"url"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// LogSettings configure the logging facade.
type LogSettings struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // text or json
}
