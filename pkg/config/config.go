package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	xdgAppName = "kotonote"
	configFile = "config.yaml"
	envPrefix  = "KOTONOTE"

	BackendSQLite = "sqlite"
	BackendFile   = "file"
)

type Config struct {
	// KVBackend selects local persistence: "sqlite" or "file".
	KVBackend string `mapstructure:"kv_backend"`
	// DataDir holds the local store; defaults to the config directory.
	DataDir string `mapstructure:"data_dir"`
	// Debounce is the quiet period before local changes are pushed.
	Debounce         time.Duration `mapstructure:"debounce"`
	SpreadsheetTitle string        `mapstructure:"spreadsheet_title"`
	// LogFile, when set, receives logs instead of stderr.
	LogFile string `mapstructure:"log_file"`
}

// fileForm is the on-disk shape; durations are written as strings like "1.5s".
type fileForm struct {
	KVBackend        string `yaml:"kv_backend"`
	DataDir          string `yaml:"data_dir,omitempty"`
	Debounce         string `yaml:"debounce"`
	SpreadsheetTitle string `yaml:"spreadsheet_title"`
	LogFile          string `yaml:"log_file,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		KVBackend:        BackendSQLite,
		Debounce:         1500 * time.Millisecond,
		SpreadsheetTitle: "KotoNote",
	}
}

// Dir is ~/.config/kotonote.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", xdgAppName), nil
}

func GetConfigPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFile), nil
}

// Load reads path (GetConfigPath when empty) over the defaults, then applies
// KOTONOTE_* environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	if path == "" {
		var err error
		if path, err = GetConfigPath(); err != nil {
			return nil, err
		}
	}

	def := DefaultConfig()
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetDefault("kv_backend", def.KVBackend)
	v.SetDefault("data_dir", "")
	v.SetDefault("debounce", def.Debounce.String())
	v.SetDefault("spreadsheet_title", def.SpreadsheetTitle)
	v.SetDefault("log_file", "")
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if cfg.DataDir == "" {
		cfg.DataDir = filepath.Dir(path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	c.KVBackend = strings.ToLower(strings.TrimSpace(c.KVBackend))
	switch c.KVBackend {
	case BackendSQLite, BackendFile:
	default:
		return fmt.Errorf("unknown kv_backend '%s' (want %s or %s)", c.KVBackend, BackendSQLite, BackendFile)
	}
	if c.Debounce <= 0 {
		return fmt.Errorf("debounce must be positive, got %s", c.Debounce)
	}
	return nil
}

// StorePath is the local store file for the configured backend.
func (c *Config) StorePath() string {
	if c.KVBackend == BackendFile {
		return filepath.Join(c.DataDir, "kotonote.json")
	}
	return filepath.Join(c.DataDir, "kotonote.db")
}

// Save writes cfg to path (GetConfigPath when empty).
func Save(path string, cfg *Config) error {
	if path == "" {
		var err error
		if path, err = GetConfigPath(); err != nil {
			return err
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	form := fileForm{
		KVBackend:        cfg.KVBackend,
		DataDir:          cfg.DataDir,
		Debounce:         cfg.Debounce.String(),
		SpreadsheetTitle: cfg.SpreadsheetTitle,
		LogFile:          cfg.LogFile,
	}
	// Load fills an unset data_dir with the config directory; keep it implicit.
	if form.DataDir == filepath.Dir(path) {
		form.DataDir = ""
	}
	out, err := yaml.Marshal(form)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(path, out, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
