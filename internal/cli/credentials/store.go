// Package credentials stores authentication tokens for the nlpipe
// command line tools.
//
// Tokens are resolved in order: an explicit --token flag, the
// NLPIPE_TOKEN environment variable, a .nlpipe_token file in the working
// directory, then the per-server credentials saved by `nlpipectl login`.
package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	// DefaultConfigDir is the directory under XDG_CONFIG_HOME holding
	// the saved credentials.
	DefaultConfigDir = "nlpipectl"
	// ConfigFileName is the name of the credentials file.
	ConfigFileName = "credentials.json"
	// LocalTokenFile is a project-local token file, handy for scripts.
	LocalTokenFile = ".nlpipe_token"
	// EnvToken is the environment variable holding a token.
	EnvToken = "NLPIPE_TOKEN"

	// FilePermissions for credential files (owner only).
	FilePermissions = 0600
	// DirPermissions for credential directories.
	DirPermissions = 0700
)

// ErrNotLoggedIn indicates no token is stored for the server.
var ErrNotLoggedIn = errors.New("no token stored - run 'nlpipectl login' first")

// Config is the on-disk credentials format: one token per server URL.
type Config struct {
	Tokens map[string]string `json:"tokens"`
}

// Store manages saved tokens.
type Store struct {
	configPath string
	config     *Config
}

// NewStore opens the credentials store, creating an empty one if no
// credentials file exists yet.
func NewStore() (*Store, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return nil, err
	}

	store := &Store{
		configPath: configPath,
	}

	if err := store.load(); err != nil {
		if os.IsNotExist(err) {
			store.config = &Config{
				Tokens: make(map[string]string),
			}
		} else {
			return nil, err
		}
	}

	return store, nil
}

// getConfigPath returns the path to the credentials file.
func getConfigPath() (string, error) {
	// Use XDG_CONFIG_HOME if set, otherwise ~/.config
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", err)
		}
		configHome = filepath.Join(home, ".config")
	}

	return filepath.Join(configHome, DefaultConfigDir, ConfigFileName), nil
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.configPath)
	if err != nil {
		return err
	}

	s.config = &Config{}
	if err := json.Unmarshal(data, s.config); err != nil {
		return err
	}
	if s.config.Tokens == nil {
		s.config.Tokens = make(map[string]string)
	}
	return nil
}

func (s *Store) save() error {
	dir := filepath.Dir(s.configPath)
	if err := os.MkdirAll(dir, DirPermissions); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(s.config, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(s.configPath, data, FilePermissions)
}

// normalizeServer keys tokens by server URL without a trailing slash, so
// "http://host:5001" and "http://host:5001/" hit the same entry.
func normalizeServer(serverURL string) string {
	return strings.TrimRight(serverURL, "/")
}

// Token returns the saved token for a server.
func (s *Store) Token(serverURL string) (string, error) {
	token, ok := s.config.Tokens[normalizeServer(serverURL)]
	if !ok || token == "" {
		return "", ErrNotLoggedIn
	}
	return token, nil
}

// SetToken saves a token for a server.
func (s *Store) SetToken(serverURL, token string) error {
	if s.config.Tokens == nil {
		s.config.Tokens = make(map[string]string)
	}
	s.config.Tokens[normalizeServer(serverURL)] = token
	return s.save()
}

// DeleteToken removes the saved token for a server.
func (s *Store) DeleteToken(serverURL string) error {
	key := normalizeServer(serverURL)
	if _, ok := s.config.Tokens[key]; !ok {
		return ErrNotLoggedIn
	}
	delete(s.config.Tokens, key)
	return s.save()
}

// Servers returns the servers with saved tokens, sorted.
func (s *Store) Servers() []string {
	names := make([]string, 0, len(s.config.Tokens))
	for name := range s.config.Tokens {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ConfigPath returns the path to the credentials file.
func (s *Store) ConfigPath() string {
	return s.configPath
}

// ReadLocalToken returns the token from the working directory's
// .nlpipe_token file, or "" if there is none.
func ReadLocalToken() string {
	data, err := os.ReadFile(LocalTokenFile)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// ResolveToken applies the token lookup chain for a server. An empty
// result is not an error; the server may run with authentication
// disabled.
func ResolveToken(explicit, serverURL string) string {
	if explicit != "" {
		return explicit
	}
	if token := os.Getenv(EnvToken); token != "" {
		return token
	}
	if token := ReadLocalToken(); token != "" {
		return token
	}
	store, err := NewStore()
	if err != nil {
		return ""
	}
	token, err := store.Token(serverURL)
	if err != nil {
		return ""
	}
	return token
}
