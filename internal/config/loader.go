package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB

	// envPrefix marks environment variables this loader consumes.
	envPrefix = "PERSONAD_"
)

// Load loads configuration from a YAML file, then overrides with environment
// variables.
//
// Configuration precedence (highest to lowest):
//
//  1. Environment variables (PERSONAD_SERVER__PORT, ...)
//  2. YAML config file (~/.config/personad/config.yaml)
//  3. Hardcoded defaults (NewDefaultConfig)
//
// The path parameter specifies the YAML file to load. If empty, the default
// path ~/.config/personad/config.yaml is used. A missing file is not an
// error; defaults and environment variables still apply.
//
// # Security Considerations
//
// File Permissions: the config file must have 0600 or 0400 permissions.
// World- or group-readable files are rejected.
//
// Path Validation: only files under ~/.config/personad/ or /etc/personad/
// can be loaded. Paths outside these directories are rejected to prevent
// path traversal.
//
// File Size Limit: files larger than 1MB are rejected.
//
// # Environment Variable Mapping
//
// Variables are stripped of the PERSONAD_ prefix, lowercased, and split into
// nesting levels on double underscores, so single underscores survive inside
// field names:
//
//	PERSONAD_SERVER__PORT                 -> server.port
//	PERSONAD_STORE__CHROMEM__PATH         -> store.chromem.path
//	PERSONAD_SANITIZE__MAX_MESSAGE_BYTES  -> sanitize.max_message_bytes
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, ".config", "personad", "config.yaml")
	}

	// Validate config path (even if file doesn't exist)
	if err := validateConfigPath(path); err != nil {
		return nil, fmt.Errorf("config path validation failed: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		// Open once and validate through the file descriptor to avoid a
		// TOCTOU race between stat and read.
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}

		if err := validateConfigFileProperties(info); err != nil {
			return nil, fmt.Errorf("config file validation failed: %w", err)
		}

		content, err := io.ReadAll(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// Unmarshal over the defaults; keys absent from file and environment
	// keep their default values.
	cfg := NewDefaultConfig()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	expanded, err := ExpandPath(cfg.Store.Chromem.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to expand store path: %w", err)
	}
	cfg.Store.Chromem.Path = expanded

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// envTransform maps an environment variable name to a koanf key.
//
//	PERSONAD_SERVER__PORT         -> server.port
//	PERSONAD_STORE__CHROMEM__PATH -> store.chromem.path
func envTransform(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	return strings.ReplaceAll(strings.ToLower(s), "__", ".")
}

// EnsureConfigDir creates the personad config directory if it doesn't exist.
// Called during startup so first runs have the directory ready. The directory
// is created with 0700 permissions.
func EnsureConfigDir() error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	configDir := filepath.Join(home, ".config", "personad")
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory %s: %w", configDir, err)
	}

	return nil
}

// ExpandPath resolves a leading "~/" against the user's home directory.
func ExpandPath(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
	}
	return path, nil
}

// validateConfigPath checks if path is in an allowed directory.
// This validation runs even if the file doesn't exist yet.
func validateConfigPath(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	// Resolve symlinks so a link can't escape the allowed directories.
	resolvedPath, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		// Symlink evaluation fails for paths that don't exist yet; validate
		// the absolute path instead.
		resolvedPath = absPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	allowedDirs := []string{
		filepath.Join(home, ".config", "personad"),
		"/etc/personad",
	}

	// EvalSymlinks may have succeeded for the path but not for an allowed
	// dir (or vice versa when the file doesn't exist yet), so compare both
	// raw and resolved forms.
	for _, dir := range allowedDirs {
		candidates := []string{dir}
		if resolved, err := filepath.EvalSymlinks(dir); err == nil && resolved != dir {
			candidates = append(candidates, resolved)
		}
		for _, candidate := range candidates {
			if strings.HasPrefix(absPath, candidate) || strings.HasPrefix(resolvedPath, candidate) {
				return nil
			}
		}
	}

	return fmt.Errorf("config file must be in ~/.config/personad/ or /etc/personad/")
}

// validateConfigFileProperties checks file permissions and size.
// Takes FileInfo from an already-opened file descriptor to avoid a TOCTOU race.
func validateConfigFileProperties(info os.FileInfo) error {
	// Permission model differs on Windows; skip the check there.
	if runtime.GOOS != "windows" {
		perm := info.Mode().Perm()
		if perm != 0600 && perm != 0400 {
			return fmt.Errorf("insecure config file permissions: %v (expected 0600 or 0400)", perm)
		}
	}

	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}

	return nil
}
