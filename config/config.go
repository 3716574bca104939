package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides, e.g. CMDVAULT_DB_PATH.
const EnvPrefix = "CMDVAULT"

// Config holds the resolved runtime settings.
type Config struct {
	Home     string
	DBPath   string
	LogLevel string
	LogFile  string
	Verbose  bool

	Shell          string
	Capture        bool
	MaxOutputBytes int64
	Record         bool

	ListLimit int
}

// DefaultHome returns $CMDVAULT_HOME or ~/.cmdvault.
func DefaultHome() string {
	if h := os.Getenv(EnvPrefix + "_HOME"); h != "" {
		return h
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".cmdvault"
	}
	return filepath.Join(home, ".cmdvault")
}

// SetViperDefaults sets all default configuration values in Viper
func SetViperDefaults() {
	viper.SetDefault("home", DefaultHome())
	viper.SetDefault("db_path", "")

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.file", "")

	viper.SetDefault("exec.shell", "")
	viper.SetDefault("exec.capture", false)
	viper.SetDefault("exec.max_output_bytes", 1<<20)
	viper.SetDefault("exec.record", true)

	viper.SetDefault("list.limit", 10)
	viper.SetDefault("verbose", false)
}

// Init wires environment overrides and the config file search path. An
// explicit file overrides the search.
func Init(file string) {
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if file != "" {
		viper.SetConfigFile(file)
		return
	}
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(viper.GetString("home"))
}

// Read loads the config file. A missing file is not an error.
func Read() error {
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// Load builds a Config from the current Viper values.
func Load() (*Config, error) {
	cfg := &Config{
		Home:           viper.GetString("home"),
		DBPath:         viper.GetString("db_path"),
		LogLevel:       viper.GetString("log.level"),
		LogFile:        viper.GetString("log.file"),
		Verbose:        viper.GetBool("verbose"),
		Shell:          viper.GetString("exec.shell"),
		Capture:        viper.GetBool("exec.capture"),
		MaxOutputBytes: viper.GetInt64("exec.max_output_bytes"),
		Record:         viper.GetBool("exec.record"),
		ListLimit:      viper.GetInt("list.limit"),
	}

	if cfg.Home == "" {
		return nil, errors.New("config: home directory is empty")
	}
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(cfg.Home, "commands.db")
	}
	if cfg.LogFile == "" {
		cfg.LogFile = filepath.Join(cfg.Home, "cmdvault.log")
	}
	if cfg.MaxOutputBytes < 0 {
		return nil, fmt.Errorf("config: exec.max_output_bytes must not be negative, got %d", cfg.MaxOutputBytes)
	}
	if cfg.ListLimit < 0 {
		return nil, fmt.Errorf("config: list.limit must not be negative, got %d", cfg.ListLimit)
	}
	if cfg.Verbose {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}
