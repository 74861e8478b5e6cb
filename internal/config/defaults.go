package config

import (
	"time"

	"github.com/spf13/viper"
)

const (
	// DefaultStartupTimeout bounds the concurrent startup group.
	DefaultStartupTimeout = time.Minute

	// DefaultStopParallelism is how many containers of a phase stop at once.
	DefaultStopParallelism = 4
)

func initDefaults(v *viper.Viper) {
	v.SetDefault("runtime", "")
	v.SetDefault("container.runtime", "docker")
	v.SetDefault("startup.timeout", DefaultStartupTimeout)
	v.SetDefault("stop.parallelism", DefaultStopParallelism)
	v.SetDefault("live_logging", false)
	v.SetDefault("debug", false)

	v.SetDefault("database.env.url", "ds_url")
	v.SetDefault("database.env.username", "ds_username")
	v.SetDefault("database.env.password", "ds_password")
	v.SetDefault("database.jndi", "")

	v.SetDefault("log.level", "warn")
	v.SetDefault("log.format", "text")
}
