package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads and parses a YAML config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return &cfg, nil
}

// LoadEffective loads the config file (a missing file yields an empty
// config), applies RELAYDESK_* environment overrides and fills defaults.
// Precedence: env > file > defaults; flags are applied by the caller.
func LoadEffective(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		loaded, err := Load(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, err
			}
		} else {
			cfg = loaded
		}
	}
	applyEnv(cfg)
	cfg.ApplyDefaults()
	return cfg, nil
}

// ResolveConfigPath picks the config path: an explicitly set flag wins,
// otherwise RELAYDESK_CONFIG, otherwise the flag default.
func ResolveConfigPath(flagVal string, flagSet bool) string {
	if flagSet {
		return flagVal
	}
	if v := os.Getenv("RELAYDESK_CONFIG"); v != "" {
		return v
	}
	return flagVal
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("RELAYDESK_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("RELAYDESK_SERVER_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = p
		}
	}
	if v := os.Getenv("RELAYDESK_DB_PATH"); v != "" {
		cfg.Storage.DBPath = v
	}
	if v := os.Getenv("RELAYDESK_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("RELAYDESK_BACKEND_KEYS"); v != "" {
		cfg.Security.APIKeys.Backend = splitList(v)
	}
	if v := os.Getenv("RELAYDESK_ADMIN_KEYS"); v != "" {
		cfg.Security.APIKeys.Admin = splitList(v)
	}
	// scoring weight pair, mirroring PRIORITY_ALPHA / PRIORITY_BETA
	if v := os.Getenv("RELAYDESK_PRIORITY_ALPHA"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Allocation.Weights.Alpha = f
		}
	}
	if v := os.Getenv("RELAYDESK_PRIORITY_BETA"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Allocation.Weights.Beta = f
		}
	}
	if v := os.Getenv("RELAYDESK_SCAN_WINDOW"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Allocation.ScanWindow = n
		}
	}
	if v := os.Getenv("RELAYDESK_GRACE_WINDOW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Grace.Window = Duration(d)
		}
	}
	if v := os.Getenv("RELAYDESK_SWEEP_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Grace.SweepInterval = Duration(d)
		}
	}
	if v := os.Getenv("RELAYDESK_EVENTS_URL"); v != "" {
		cfg.Events.URL = v
		cfg.Events.Enabled = true
	}
	if v := os.Getenv("RELAYDESK_EVENTS_EXCHANGE"); v != "" {
		cfg.Events.Exchange = v
	}
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
