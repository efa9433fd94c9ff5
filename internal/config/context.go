package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Context is the account the local cache belongs to. Switching it
// invalidates everything cached for the previous account.
type Context struct {
	// Server is the base URL of the chat server.
	Server string `yaml:"server,omitempty" json:"server,omitempty"`
	// UserID is the logged-in user on Server.
	UserID int64 `yaml:"user_id,omitempty" json:"user_id,omitempty"`
	// UpdatedAt is when the context was last modified.
	UpdatedAt time.Time `yaml:"updated_at,omitempty" json:"updated_at,omitzero"`
}

// IsEmpty returns true if no account is set.
func (c *Context) IsEmpty() bool {
	return c.Server == "" && c.UserID == 0
}

// SameAccount reports whether other names the same account.
func (c *Context) SameAccount(other *Context) bool {
	if c == nil || other == nil {
		return c == other
	}
	return normalizeServer(c.Server) == normalizeServer(other.Server) && c.UserID == other.UserID
}

// SetAccount replaces the account.
func (c *Context) SetAccount(server string, userID int64) {
	c.Server = normalizeServer(server)
	c.UserID = userID
	c.UpdatedAt = time.Now()
}

// Clear removes the account.
func (c *Context) Clear() {
	c.Server = ""
	c.UserID = 0
	c.UpdatedAt = time.Now()
}

func (c *Context) String() string {
	if c.IsEmpty() {
		return "(no account set)"
	}
	server := c.Server
	if server == "" {
		server = "?"
	}
	return fmt.Sprintf("user:%d@%s", c.UserID, server)
}

func normalizeServer(server string) string {
	return strings.TrimRight(strings.TrimSpace(server), "/")
}

// ContextStore manages loading and saving context.
type ContextStore struct {
	path string
	mu   sync.RWMutex
}

// NewContextStore creates a new context store.
// If path is empty, uses the default path (~/.config/msgindex/context.yaml).
func NewContextStore(path string) *ContextStore {
	if path == "" {
		homeDir, _ := os.UserHomeDir()
		path = filepath.Join(homeDir, ".config", "msgindex", "context.yaml")
	}
	return &ContextStore{path: path}
}

// Path returns the context file path.
func (s *ContextStore) Path() string {
	return s.path
}

// Load reads the context from disk.
// Returns an empty context if the file doesn't exist.
func (s *ContextStore) Load() (*Context, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := &Context{}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return ctx, nil
		}
		return nil, fmt.Errorf("failed to read context file: %w", err)
	}

	if err := yaml.Unmarshal(data, ctx); err != nil {
		return nil, fmt.Errorf("failed to parse context file: %w", err)
	}

	return ctx, nil
}

// Save writes the context to disk.
func (s *ContextStore) Save(ctx *Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create context directory: %w", err)
	}

	data, err := yaml.Marshal(ctx)
	if err != nil {
		return fmt.Errorf("failed to serialize context: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write context file: %w", err)
	}

	return nil
}

// Clear removes the context file.
func (s *ContextStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove context file: %w", err)
	}
	return nil
}
