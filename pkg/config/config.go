// Package config loads dashboard configuration and runner credentials.
package config

import (
	"embed"
	"fmt"
	"log"
	"os"
	"path/filepath"
)

//go:embed defaults/config
var defaultsFS embed.FS

// LocalConfigName is the per-project config file name, looked up in the working directory.
const LocalConfigName = ".webtest"

// Config is the resolved dashboard configuration. Relative paths in Values are
// resolved against ProjectDir, which itself is made absolute.
type Config struct {
	Values

	TestsRoot   string            // absolute tests root
	RunnerPath  string            // absolute runner binary path (or bare command name)
	ResultsPath string            // absolute runner results dir
	RunsPath    string            // absolute run log dir
	Credentials map[string]string // credential values forwarded to the runner, "" when absent

	GlobalConfigPath string
	LocalConfigPath  string
}

// Load reads configuration with fallback chain local → global → embedded and then the
// credentials file. localPath overrides the default ./.webtest when not empty, projectDir
// overrides the configured project_dir when not empty. a missing credentials file is not an error.
func Load(localPath, projectDir string) (*Config, error) {
	globalPath := ""
	if dir := DefaultConfigDir(); dir != "" {
		globalPath = filepath.Join(dir, "config")
	}
	if localPath == "" {
		localPath = LocalConfigName
	}
	return load(localPath, globalPath, projectDir)
}

func load(localPath, globalPath, projectDirOverride string) (*Config, error) {
	values, err := newValuesLoader(defaultsFS).Load(localPath, globalPath)
	if err != nil {
		return nil, err
	}
	if projectDirOverride != "" {
		values.ProjectDir = projectDirOverride
	}

	projectDir, err := filepath.Abs(values.ProjectDir)
	if err != nil {
		return nil, fmt.Errorf("resolve project dir: %w", err)
	}
	values.ProjectDir = projectDir

	cfg := &Config{
		Values:           values,
		TestsRoot:        resolve(projectDir, values.TestsDir),
		RunnerPath:       resolveCommand(projectDir, values.RunnerCommand),
		ResultsPath:      resolve(projectDir, values.ResultsDir),
		RunsPath:         resolve(projectDir, values.RunsDir),
		GlobalConfigPath: globalPath,
		LocalConfigPath:  localPath,
	}

	credPath := resolve(projectDir, values.CredentialsFile)
	creds, err := LoadCredentials(credPath, values.CredentialKeys)
	if err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}
	cfg.Credentials = creds
	return cfg, nil
}

// DefaultConfigDir returns ~/.config/webtest, empty if the home dir is unknown.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "webtest")
}

// InstallDefaults writes the embedded default config into configDir unless a config already exists.
func InstallDefaults(configDir string) (string, error) {
	if err := os.MkdirAll(configDir, 0o700); err != nil {
		return "", fmt.Errorf("create config dir: %w", err)
	}

	configPath := filepath.Join(configDir, "config")
	_, statErr := os.Stat(configPath)
	if statErr == nil {
		return configPath, nil
	}
	if !os.IsNotExist(statErr) {
		return "", fmt.Errorf("check config file: %w", statErr)
	}

	data, err := defaultsFS.ReadFile("defaults/config")
	if err != nil {
		return "", fmt.Errorf("read embedded config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0o600); err != nil {
		return "", fmt.Errorf("write config file: %w", err)
	}
	log.Printf("[INFO] installed default config to %s", configPath)
	return configPath, nil
}

func resolve(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

// resolveCommand keeps bare command names (looked up in PATH) and resolves paths against base.
func resolveCommand(base, cmd string) string {
	if cmd == "" || filepath.Base(cmd) == cmd {
		return cmd
	}
	return resolve(base, cmd)
}
