// Package vault implements an optional HashiCorp Vault-backed store for the
// exchange gateway's credentials, so an operator who doesn't want the API
// key/secret/passphrase sitting in config.json can put them in Vault
// instead. Trimmed from the teacher's internal/vault.Client (a per-user,
// per-exchange, cached multi-tenant secret store) down to the single
// credential set this engine's single Exchange Gateway needs.
package vault

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/vault/api"
)

// Credentials is the Exchange Gateway's credential set.
type Credentials struct {
	APIKey     string `json:"api_key"`
	APISecret  string `json:"secret_key"`
	Passphrase string `json:"passphrase"`
}

// Config holds the Vault connection settings.
type Config struct {
	Enabled    bool
	Address    string
	Token      string
	SecretPath string
}

// Client wraps the Vault KV client with a one-entry cache.
type Client struct {
	client *api.Client
	cfg    Config
	mu     sync.RWMutex
	cached *Credentials
}

// NewClient builds a Client. When cfg.Enabled is false, GetCredentials
// always returns a "not configured" error so callers fall back to the
// config-file credentials.
func NewClient(cfg Config) (*Client, error) {
	if !cfg.Enabled {
		return &Client{cfg: cfg}, nil
	}

	vaultCfg := api.DefaultConfig()
	vaultCfg.Address = cfg.Address
	raw, err := api.NewClient(vaultCfg)
	if err != nil {
		return nil, fmt.Errorf("creating vault client: %w", err)
	}
	raw.SetToken(cfg.Token)

	return &Client{client: raw, cfg: cfg}, nil
}

// StoreCredentials writes the gateway credentials to Vault.
func (c *Client) StoreCredentials(ctx context.Context, creds Credentials) error {
	if !c.cfg.Enabled {
		return fmt.Errorf("vault: not enabled")
	}
	_, err := c.client.Logical().WriteWithContext(ctx, c.cfg.SecretPath, map[string]interface{}{
		"data": map[string]interface{}{
			"api_key": creds.APIKey, "secret_key": creds.APISecret, "passphrase": creds.Passphrase,
		},
	})
	if err != nil {
		return fmt.Errorf("storing credentials in vault: %w", err)
	}
	c.mu.Lock()
	c.cached = &creds
	c.mu.Unlock()
	return nil
}

// GetCredentials reads the gateway credentials, serving from the one-entry
// cache when present.
func (c *Client) GetCredentials(ctx context.Context) (Credentials, error) {
	c.mu.RLock()
	if c.cached != nil {
		defer c.mu.RUnlock()
		return *c.cached, nil
	}
	c.mu.RUnlock()

	if !c.cfg.Enabled {
		return Credentials{}, fmt.Errorf("vault: not enabled")
	}

	secret, err := c.client.Logical().ReadWithContext(ctx, c.cfg.SecretPath)
	if err != nil {
		return Credentials{}, fmt.Errorf("reading credentials from vault: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return Credentials{}, fmt.Errorf("vault: no credentials at %s", c.cfg.SecretPath)
	}
	data, _ := secret.Data["data"].(map[string]interface{})
	creds := Credentials{
		APIKey:     getString(data, "api_key"),
		APISecret:  getString(data, "secret_key"),
		Passphrase: getString(data, "passphrase"),
	}

	c.mu.Lock()
	c.cached = &creds
	c.mu.Unlock()
	return creds, nil
}

// IsEnabled reports whether Vault is configured as the credential source.
func (c *Client) IsEnabled() bool { return c.cfg.Enabled }

func getString(data map[string]interface{}, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}
