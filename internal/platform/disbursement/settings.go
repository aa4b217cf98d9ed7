package disbursement

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml"
	"gopkg.in/yaml.v3"

	"hrbenefits/internal/platform/config"
)

// Settings configures the HTTP provider client. Values from a settings file
// override the environment.
type Settings struct {
	BaseURL    string `json:"base_url" yaml:"base_url" toml:"base_url"`
	APIKey     string `json:"api_key" yaml:"api_key" toml:"api_key"`
	Timeout    string `json:"timeout" yaml:"timeout" toml:"timeout"`
	SubmitPath string `json:"submit_path" yaml:"submit_path" toml:"submit_path"`
	StatusPath string `json:"status_path" yaml:"status_path" toml:"status_path"`
}

const (
	defaultSubmitPath = "/batches"
	defaultStatusPath = "/batches/{reference}"
)

// LoadSettings reads a TOML, YAML or JSON settings file.
func LoadSettings(path string) (Settings, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Settings{}, fmt.Errorf("error accessing provider settings: %w", err)
	}
	if info.IsDir() {
		return Settings{}, fmt.Errorf("%s is a directory, not a file", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("error reading provider settings: %w", err)
	}

	var settings Settings
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		if err := toml.Unmarshal(data, &settings); err != nil {
			return Settings{}, fmt.Errorf("error parsing TOML settings: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &settings); err != nil {
			return Settings{}, fmt.Errorf("error parsing YAML settings: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &settings); err != nil {
			return Settings{}, fmt.Errorf("error parsing JSON settings: %w", err)
		}
	default:
		return Settings{}, fmt.Errorf("unsupported provider settings format: %s", ext)
	}
	return settings, nil
}

// resolve merges cfg with the optional settings file and fills defaults.
func resolve(cfg config.Config) (Settings, time.Duration, error) {
	settings := Settings{
		BaseURL: cfg.DisbursementBaseURL,
		APIKey:  cfg.DisbursementAPIKey,
	}
	timeout := cfg.DisbursementTimeout
	if cfg.DisbursementConfigFile != "" {
		fromFile, err := LoadSettings(cfg.DisbursementConfigFile)
		if err != nil {
			return Settings{}, 0, err
		}
		if fromFile.BaseURL != "" {
			settings.BaseURL = fromFile.BaseURL
		}
		if fromFile.APIKey != "" {
			settings.APIKey = fromFile.APIKey
		}
		settings.SubmitPath = fromFile.SubmitPath
		settings.StatusPath = fromFile.StatusPath
		if fromFile.Timeout != "" {
			parsed, err := time.ParseDuration(fromFile.Timeout)
			if err != nil || parsed <= 0 {
				return Settings{}, 0, fmt.Errorf("invalid provider timeout %q", fromFile.Timeout)
			}
			timeout = parsed
		}
	}
	if strings.TrimSpace(settings.BaseURL) == "" {
		return Settings{}, 0, fmt.Errorf("disbursement base url is required")
	}
	if settings.SubmitPath == "" {
		settings.SubmitPath = defaultSubmitPath
	}
	if settings.StatusPath == "" {
		settings.StatusPath = defaultStatusPath
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return settings, timeout, nil
}
