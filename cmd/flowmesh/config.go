package main

import (
	"os"
	"path/filepath"
	"strconv"

	json "github.com/goccy/go-json"
)

// Config holds CLI configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	DBPath         string `json:"db_path"`
	LogLevel       string `json:"log_level"`
	PoolSize       int    `json:"pool_size"`
	Parallel       bool   `json:"parallel"`
	SandboxTimeout string `json:"sandbox_timeout"`
	VaultKey       string `json:"-"` // env only, never written to disk
	VaultSalt      string `json:"vault_salt"`
}

func defaultConfig() Config {
	return Config{
		DBPath:   "file:" + filepath.Join(flowmeshDir(), "flowmesh.db"),
		LogLevel: "info",
		PoolSize: 4,
	}
}

func flowmeshDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".flowmesh"
	}
	return filepath.Join(home, ".flowmesh")
}

func settingsPath() string {
	return filepath.Join(flowmeshDir(), "settings.json")
}

func loadConfig() Config {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	if v := os.Getenv("FLOWMESH_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("FLOWMESH_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("FLOWMESH_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.PoolSize = n
		}
	}
	if v := os.Getenv("FLOWMESH_PARALLEL"); v != "" {
		cfg.Parallel = v == "true" || v == "1"
	}
	if v := os.Getenv("FLOWMESH_SANDBOX_TIMEOUT"); v != "" {
		cfg.SandboxTimeout = v
	}
	if v := os.Getenv("FLOWMESH_VAULT_KEY"); v != "" {
		cfg.VaultKey = v
	}
	if v := os.Getenv("FLOWMESH_VAULT_SALT"); v != "" {
		cfg.VaultSalt = v
	}

	return cfg
}
