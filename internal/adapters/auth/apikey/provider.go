// Package apikey provides API key-based authentication.
package apikey

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"github.com/tjfontaine/phoenix-bypass/internal/core/ports"
	"github.com/tjfontaine/phoenix-bypass/internal/pkg/config"
)

// Provider implements ports.AuthProvider using API key authentication.
// Keys are configured as SHA-256 hashes; the matching user's name becomes
// the actor recorded in the audit log.
type Provider struct {
	mu    sync.RWMutex
	users map[string]string // keyHash -> user name
}

// NewProvider creates a new API key auth provider.
func NewProvider(configProvider ports.ConfigProvider) (*Provider, error) {
	if configProvider == nil {
		return nil, fmt.Errorf("config provider required")
	}

	cfg, err := configProvider.Load(context.Background())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	p := &Provider{}
	if err := p.ReloadFromConfig(cfg); err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	return p, nil
}

// Authenticate validates an API key and returns the user context.
func (p *Provider) Authenticate(ctx context.Context, token string) (*ports.AuthContext, error) {
	if token == "" {
		return nil, fmt.Errorf("missing API key")
	}
	keyHash := HashAPIKey(token)

	p.mu.RLock()
	defer p.mu.RUnlock()

	for hash, user := range p.users {
		if subtle.ConstantTimeCompare([]byte(hash), []byte(keyHash)) == 1 {
			return &ports.AuthContext{User: user}, nil
		}
	}
	return nil, fmt.Errorf("invalid API key")
}

// ReloadFromConfig replaces the user table.
// This is called by the runtime when config changes.
func (p *Provider) ReloadFromConfig(cfg *config.Config) error {
	users := make(map[string]string, len(cfg.Auth.Users))
	for _, u := range cfg.Auth.Users {
		hash := strings.ToLower(strings.TrimSpace(u.KeyHash))
		if _, dup := users[hash]; dup {
			return fmt.Errorf("duplicate key hash for user %s", u.Name)
		}
		users[hash] = u.Name
	}

	p.mu.Lock()
	p.users = users
	p.mu.Unlock()
	return nil
}

// HashAPIKey creates a SHA-256 hash of an API key for storage.
func HashAPIKey(apiKey string) string {
	hash := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(hash[:])
}

// Ensure Provider implements the interface.
var _ ports.AuthProvider = (*Provider)(nil)
