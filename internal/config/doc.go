// Package config resolves testbay settings.
//
// Settings come from three places, later ones overriding earlier ones:
//
//   - built-in defaults (startup.timeout 1m, stop.parallelism 4, docker)
//   - testbay.yaml in the working directory, or the file named by TESTBAY_CONFIG
//   - TESTBAY_* environment variables, dots replaced by underscores
//
// A .env file next to testbay.yaml is read before the environment is
// consulted. It never overrides variables that are already set.
//
// # Example testbay.yaml
//
//	runtime: wildfly
//	container:
//	  runtime: podman
//	startup:
//	  timeout: 90s
//	database:
//	  jndi: java:jboss/datasources/appDS
//
// Invalid files or values are reported as ConfigurationError, whose
// DetailedError lists suggestions for fixing them.
package config
