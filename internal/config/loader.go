package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"testbay/pkg/logging"
)

const (
	// EnvPrefix prefixes every environment override (TESTBAY_RUNTIME).
	EnvPrefix = "TESTBAY"

	// ConfigEnvVar points at a settings file outside the working directory.
	ConfigEnvVar = "TESTBAY_CONFIG"

	configFileName = "testbay.yaml"
	dotEnvFileName = ".env"
)

// Load resolves the settings for dir ("" is the working directory).
//
// Later sources win: built-in defaults, testbay.yaml in dir (or the file named
// by TESTBAY_CONFIG), then TESTBAY_* environment variables. A .env file in dir
// is read first and only fills variables that are not set yet.
func Load(dir string) (Settings, error) {
	if err := loadDotEnv(filepath.Join(dir, dotEnvFileName)); err != nil {
		return Settings{}, err
	}

	v := viper.New()
	initDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	path, err := configFile(dir)
	if err != nil {
		return Settings{}, err
	}
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Settings{}, parseError(path, err)
		}
		logging.Info("ConfigLoader", "Loaded settings from %s", path)
	} else {
		logging.Debug("ConfigLoader", "No %s found, using defaults and environment", configFileName)
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, validationError(path, err)
	}
	s.Container.Runtime = strings.ToLower(s.Container.Runtime)
	s.Runtime = strings.ToLower(s.Runtime)
	if err := s.Validate(); err != nil {
		return Settings{}, validationError(path, err)
	}
	return s, nil
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return ConfigurationError{FilePath: path, ErrorType: "parse", Message: "invalid .env file", Details: err.Error()}
	}
	logging.Debug("ConfigLoader", "Loaded environment from %s", path)
	return nil
}

func configFile(dir string) (string, error) {
	if explicit := os.Getenv(ConfigEnvVar); explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", ConfigurationError{
				FilePath:    explicit,
				ErrorType:   "io",
				Message:     "settings file not readable",
				Details:     err.Error(),
				Suggestions: []string{fmt.Sprintf("Unset %s to fall back to ./%s", ConfigEnvVar, configFileName)},
			}
		}
		return explicit, nil
	}
	path := filepath.Join(dir, configFileName)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("failed to stat %s: %w", path, err)
	}
	return path, nil
}

// LogLevel returns the configured level for the logging facade.
func (s Settings) LogLevel() logging.LogLevel {
	return logging.ParseLevel(s.Log.Level)
}

// InitLogging points the logging facade at w using the configured level and format.
func (s Settings) InitLogging(w io.Writer) {
	if strings.EqualFold(s.Log.Format, "json") {
		logging.InitJSON(s.LogLevel(), w)
		return
	}
	logging.InitForCLI(s.LogLevel(), w)
}
