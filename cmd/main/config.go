package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/natefinch/atomic"

	"github.com/CTAG07/Weft/pkg/weft"
)

// ServerConfig holds the configuration for the HTTP server.
type ServerConfig struct {
	ApiAddr      string `json:"api_addr"`
	LogLevel     string `json:"log_level"`
	DataDir      string `json:"data_dir"`
	DatabasePath string `json:"database_path"`
}

// RendererConfig holds the default rendering behavior for the API. Requests
// can override the error mode per call.
type RendererConfig struct {
	// ErrorMode is "lenient" or "strict".
	ErrorMode string `json:"error_mode"`
	// DefaultText replaces unresolved values in lenient mode when set; when
	// nil the original token is echoed back into the output.
	DefaultText *string `json:"default_text"`
	// KeepIndentation disables left-margin stripping of literal text.
	KeepIndentation bool `json:"keep_indentation"`
}

// Config is the top-level configuration struct that aggregates all other configs.
type Config struct {
	Server   *ServerConfig   `json:"server_config"`
	Renderer *RendererConfig `json:"renderer_config"`
}

// DefaultServerConfig creates a server configuration with default values.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		ApiAddr:      ":7279",
		LogLevel:     "info",
		DataDir:      "./data",
		DatabasePath: "./data/weft.db?_journal_mode=WAL&_busy_timeout=5000",
	}
}

// DefaultRendererConfig creates a renderer configuration with default values.
func DefaultRendererConfig() *RendererConfig {
	return &RendererConfig{
		ErrorMode:       "lenient",
		DefaultText:     nil,
		KeepIndentation: false,
	}
}

// Options translates the configuration into renderer construction options.
func (rc *RendererConfig) Options() []weft.Option {
	var opts []weft.Option
	if rc.ErrorMode == "strict" {
		opts = append(opts, weft.WithStrictErrors())
	}
	if rc.DefaultText != nil {
		opts = append(opts, weft.WithDefault(*rc.DefaultText))
	}
	if rc.KeepIndentation {
		opts = append(opts, weft.WithKeepIndentation())
	}
	return opts
}

// LoadConfig reads the configuration from a JSON file at the given path.
// If the file doesn't exist, it creates one with default values.
func LoadConfig(path string) (*Config, error) {
	config := &Config{
		Server:   DefaultServerConfig(),
		Renderer: DefaultRendererConfig(),
	}

	file, err := os.ReadFile(path)
	if err != nil {
		// If the file doesn't exist, create it with the default config.
		if os.IsNotExist(err) {
			var data []byte
			data, err = json.MarshalIndent(config, "", "  ")
			if err != nil {
				return nil, fmt.Errorf("failed to marshal default config: %w", err)
			}
			if err = atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
				// Log a warning instead of failing, as the server can still run with defaults.
				fmt.Printf("warning: failed to write default config file: %v\n", err)
			}
			return config, nil
		}
		// For other errors (e.g., permission denied), return the error.
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err = json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveConfig writes the configuration back to disk atomically.
func SaveConfig(path string, config *Config) error {
	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err = atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
