// Package config manages the msk configuration file: the saved login
// credentials and a handful of tunables. The file is YAML, owner-only,
// and written atomically because it can contain a plaintext password
// when the user explicitly opted in to saving it.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// Config is the on-disk configuration.
type Config struct {
	// Username is the last in-game name logged in with (or selected
	// offline).
	Username string `yaml:"username,omitempty"`

	// Identifier is the login name presented to the identity provider,
	// typically an email address. For offline selections it is empty.
	Identifier string `yaml:"identifier,omitempty"`

	// Password is stored only when the user passes --save-password.
	Password string `yaml:"password,omitempty"`

	// CallbackPort overrides the local listener port for the
	// authorization-code flow. Zero means the default port.
	CallbackPort int `yaml:"callback_port,omitempty"`

	// ClientID overrides the OAuth client id.
	ClientID string `yaml:"client_id,omitempty"`
}

// Path returns the config file location, honoring MSK_HOME.
func Path() string {
	if mskHome := os.Getenv("MSK_HOME"); mskHome != "" {
		return filepath.Join(mskHome, "config.yaml")
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".config", "msk", "config.yaml")
	}
	return filepath.Join(homeDir, ".config", "msk", "config.yaml")
}

// File is a handle on the config file. It serializes writes so flows
// finishing concurrently with CLI edits cannot tear the file.
type File struct {
	mu   sync.Mutex
	path string
}

// Open returns a handle at the default location.
func Open() *File {
	return OpenAt(Path())
}

// OpenAt returns a handle at path. The file need not exist yet.
func OpenAt(path string) *File {
	return &File{path: path}
}

// Load reads the config. A missing file is not an error; it returns a
// zero config.
func (f *File) Load() (Config, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.load()
}

func (f *File) load() (Config, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Save writes the config atomically with owner-only permissions.
func (f *File) Save(cfg Config) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.save(cfg)
}

func (f *File) save(cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	tmpPath := f.path + ".tmp"
	tmp, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp file: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync temp file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, f.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename config file: %w", err)
	}

	return nil
}

// SetCredentials records the outcome of a login: the in-game name, the
// login identifier, and, when opted in, the password. An empty password
// clears any previously stored one. Other settings are preserved.
func (f *File) SetCredentials(username, identifier, password string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	cfg, err := f.load()
	if err != nil {
		return err
	}

	cfg.Username = username
	cfg.Identifier = identifier
	cfg.Password = password

	return f.save(cfg)
}
