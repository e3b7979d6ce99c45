// Package config resolves runtime settings from four layers applied in
// order: built-in defaults, the YAML config file, SWAP_* environment
// variables, then command-line flags. Later layers win.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type GlobalFlags struct {
	ConfigPath     string
	JSON           bool
	Plain          bool
	Select         string
	ResultsOnly    bool
	EnableCommands string
	Strict         bool
	Timeout        string
	Retries        int
	MaxStale       string
	NoStale        bool
	NoCache        bool
}

type Settings struct {
	OutputMode      string
	SelectFields    []string
	ResultsOnly     bool
	EnableCommands  []string
	Strict          bool
	Timeout         time.Duration
	Retries         int
	MaxStale        time.Duration
	NoStale         bool
	CacheEnabled    bool
	CachePath       string
	CacheLockPath   string
	ActionStorePath string
	ActionLockPath  string
	FusionAPIKey    string
	OneClickJWT     string
	SettlementAsset string
}

type fileConfig struct {
	Output  string `yaml:"output"`
	Strict  *bool  `yaml:"strict"`
	Timeout string `yaml:"timeout"`
	Retries *int   `yaml:"retries"`
	Cache   struct {
		Enabled  *bool  `yaml:"enabled"`
		MaxStale string `yaml:"max_stale"`
		Path     string `yaml:"path"`
		LockPath string `yaml:"lock_path"`
	} `yaml:"cache"`
	Execution struct {
		ActionsPath     string `yaml:"actions_path"`
		ActionsLockPath string `yaml:"actions_lock_path"`
	} `yaml:"execution"`
	Swap struct {
		SettlementAsset string `yaml:"settlement_asset"`
	} `yaml:"swap"`
	Providers struct {
		Fusion struct {
			APIKey    string `yaml:"api_key"`
			APIKeyEnv string `yaml:"api_key_env"`
		} `yaml:"fusion"`
		OneClick struct {
			JWT    string `yaml:"jwt"`
			JWTEnv string `yaml:"jwt_env"`
		} `yaml:"oneclick"`
	} `yaml:"providers"`
}

func Load(flags GlobalFlags) (Settings, error) {
	// A project-local .env is honored before the environment is read, the
	// same way the one-click tooling bootstraps API credentials.
	_ = godotenv.Load()

	settings, err := defaultSettings()
	if err != nil {
		return Settings{}, err
	}

	cfgPath, err := resolveConfigPath(flags.ConfigPath)
	if err != nil {
		return Settings{}, err
	}

	if err := applyFileConfig(cfgPath, &settings); err != nil {
		return Settings{}, err
	}

	if err := applyEnv(&settings); err != nil {
		return Settings{}, err
	}

	if err := applyFlags(flags, &settings); err != nil {
		return Settings{}, err
	}

	if settings.OutputMode == "" {
		settings.OutputMode = "json"
	}
	if settings.Timeout <= 0 {
		settings.Timeout = 10 * time.Second
	}
	if settings.Retries < 0 {
		settings.Retries = 0
	}
	if settings.MaxStale < 0 {
		settings.MaxStale = 5 * time.Minute
	}
	if settings.SettlementAsset == "" {
		settings.SettlementAsset = "USDC"
	}

	return settings, nil
}

func defaultSettings() (Settings, error) {
	cachePath, lockPath, err := defaultCachePaths()
	if err != nil {
		return Settings{}, err
	}
	cacheDir := filepath.Dir(cachePath)
	return Settings{
		OutputMode:      "json",
		Timeout:         10 * time.Second,
		Retries:         2,
		MaxStale:        5 * time.Minute,
		CacheEnabled:    true,
		CachePath:       cachePath,
		CacheLockPath:   lockPath,
		ActionStorePath: filepath.Join(cacheDir, "actions.db"),
		ActionLockPath:  filepath.Join(cacheDir, "actions.lock"),
		SettlementAsset: "USDC",
	}, nil
}

// xdgDir resolves an XDG base directory, falling back to the
// conventional dot-directory under the user's home.
func xdgDir(envKey, fallback string) (string, error) {
	if base := os.Getenv(envKey); base != "" {
		return base, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, fallback), nil
}

func resolveConfigPath(input string) (string, error) {
	if strings.TrimSpace(input) != "" {
		return input, nil
	}
	base, err := xdgDir("XDG_CONFIG_HOME", ".config")
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "swap", "config.yaml"), nil
}

func defaultCachePaths() (string, string, error) {
	base, err := xdgDir("XDG_CACHE_HOME", ".cache")
	if err != nil {
		return "", "", err
	}
	dir := filepath.Join(base, "swap")
	return filepath.Join(dir, "cache.db"), filepath.Join(dir, "cache.lock"), nil
}

func applyFileConfig(path string, settings *Settings) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return fmt.Errorf("parse config yaml: %w", err)
	}

	if cfg.Output != "" {
		settings.OutputMode = strings.ToLower(cfg.Output)
	}
	if cfg.Strict != nil {
		settings.Strict = *cfg.Strict
	}
	if cfg.Timeout != "" {
		d, err := time.ParseDuration(cfg.Timeout)
		if err != nil {
			return fmt.Errorf("config timeout: %w", err)
		}
		settings.Timeout = d
	}
	if cfg.Retries != nil {
		settings.Retries = *cfg.Retries
	}
	if cfg.Cache.Enabled != nil {
		settings.CacheEnabled = *cfg.Cache.Enabled
	}
	if cfg.Cache.MaxStale != "" {
		d, err := time.ParseDuration(cfg.Cache.MaxStale)
		if err != nil {
			return fmt.Errorf("config cache.max_stale: %w", err)
		}
		settings.MaxStale = d
	}
	if cfg.Cache.Path != "" {
		settings.CachePath = cfg.Cache.Path
	}
	if cfg.Cache.LockPath != "" {
		settings.CacheLockPath = cfg.Cache.LockPath
	}
	if cfg.Execution.ActionsPath != "" {
		settings.ActionStorePath = cfg.Execution.ActionsPath
	}
	if cfg.Execution.ActionsLockPath != "" {
		settings.ActionLockPath = cfg.Execution.ActionsLockPath
	}
	if cfg.Swap.SettlementAsset != "" {
		settings.SettlementAsset = strings.ToUpper(strings.TrimSpace(cfg.Swap.SettlementAsset))
	}
	applySecret(&settings.FusionAPIKey, cfg.Providers.Fusion.APIKey, cfg.Providers.Fusion.APIKeyEnv)
	applySecret(&settings.OneClickJWT, cfg.Providers.OneClick.JWT, cfg.Providers.OneClick.JWTEnv)

	return nil
}

// applySecret resolves a credential that may be given literally or by
// naming the environment variable holding it. The indirection wins so a
// config file can be committed without embedding the secret.
func applySecret(target *string, literal, envName string) {
	if literal != "" {
		*target = literal
	}
	if envName != "" {
		*target = os.Getenv(envName)
	}
}

// applyEnv layers SWAP_* variables over the file config. Malformed
// values are an error rather than a silent fallback to defaults.
func applyEnv(settings *Settings) error {
	if v := os.Getenv("SWAP_OUTPUT"); v != "" {
		settings.OutputMode = strings.ToLower(v)
	}
	if err := envBool("SWAP_STRICT", &settings.Strict); err != nil {
		return err
	}
	if err := envDuration("SWAP_TIMEOUT", &settings.Timeout); err != nil {
		return err
	}
	if err := envInt("SWAP_RETRIES", &settings.Retries); err != nil {
		return err
	}
	if err := envDuration("SWAP_MAX_STALE", &settings.MaxStale); err != nil {
		return err
	}
	if err := envBool("SWAP_NO_STALE", &settings.NoStale); err != nil {
		return err
	}
	noCache := !settings.CacheEnabled
	if err := envBool("SWAP_NO_CACHE", &noCache); err != nil {
		return err
	}
	settings.CacheEnabled = !noCache
	envString("SWAP_CACHE_PATH", &settings.CachePath)
	envString("SWAP_CACHE_LOCK_PATH", &settings.CacheLockPath)
	envString("SWAP_ACTIONS_PATH", &settings.ActionStorePath)
	envString("SWAP_ACTIONS_LOCK_PATH", &settings.ActionLockPath)
	if v := os.Getenv("SWAP_SETTLEMENT_ASSET"); v != "" {
		settings.SettlementAsset = strings.ToUpper(strings.TrimSpace(v))
	}
	envString("SWAP_FUSION_API_KEY", &settings.FusionAPIKey)
	envString("SWAP_ONECLICK_JWT", &settings.OneClickJWT)
	return nil
}

func envString(key string, target *string) {
	if v := os.Getenv(key); v != "" {
		*target = v
	}
}

func envBool(key string, target *bool) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("parse %s=%q: %w", key, v, err)
	}
	*target = b
	return nil
}

func envInt(key string, target *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("parse %s=%q: %w", key, v, err)
	}
	*target = n
	return nil
}

func envDuration(key string, target *time.Duration) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("parse %s=%q: %w", key, v, err)
	}
	*target = d
	return nil
}

// splitList splits a comma-separated flag value, dropping empty entries.
func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if v := strings.TrimSpace(part); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func applyFlags(flags GlobalFlags, settings *Settings) error {
	if flags.JSON && flags.Plain {
		return fmt.Errorf("cannot use --json and --plain together")
	}
	if flags.JSON {
		settings.OutputMode = "json"
	}
	if flags.Plain {
		settings.OutputMode = "plain"
	}
	if strings.TrimSpace(flags.Select) != "" {
		settings.SelectFields = splitList(flags.Select)
	}
	settings.ResultsOnly = flags.ResultsOnly

	if strings.TrimSpace(flags.EnableCommands) != "" {
		settings.EnableCommands = splitList(flags.EnableCommands)
	}

	if flags.Strict {
		settings.Strict = true
	}
	if flags.Timeout != "" {
		d, err := time.ParseDuration(flags.Timeout)
		if err != nil {
			return fmt.Errorf("parse --timeout: %w", err)
		}
		settings.Timeout = d
	}
	if flags.Retries >= 0 {
		settings.Retries = flags.Retries
	}
	if flags.MaxStale != "" {
		d, err := time.ParseDuration(flags.MaxStale)
		if err != nil {
			return fmt.Errorf("parse --max-stale: %w", err)
		}
		settings.MaxStale = d
	}
	if flags.NoStale {
		settings.NoStale = true
	}
	if flags.NoCache {
		settings.CacheEnabled = false
	}

	if settings.OutputMode != "json" && settings.OutputMode != "plain" {
		return fmt.Errorf("output must be json or plain")
	}

	return nil
}
