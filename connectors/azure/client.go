package azure

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// DatabaseScope is the Azure AD scope accepted by Azure Database for MySQL and PostgreSQL.
const DatabaseScope = "https://ossrdbms-aad.database.windows.net/.default"

const defaultAuthorityHost = "https://login.microsoftonline.com"

// Config holds the service principal used to sign in to the billing database
type Config struct {
	TenantID      string `yaml:"tenant_id"`
	ClientID      string `yaml:"client_id"`
	ClientSecret  string `yaml:"client_secret"`
	AuthorityHost string `yaml:"authority_host"`
	Scope         string `yaml:"scope"`
}

// Client obtains Azure AD access tokens with the client credentials grant.
// Tokens are cached until shortly before they expire.
type Client struct {
	source oauth2.TokenSource
}

// NewClient creates a token client. ctx bounds the lifetime of the underlying HTTP client.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.TenantID == "" || cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("azure tenant_id, client_id and client_secret are required")
	}
	host := strings.TrimRight(cfg.AuthorityHost, "/")
	if host == "" {
		host = defaultAuthorityHost
	}
	scope := cfg.Scope
	if scope == "" {
		scope = DatabaseScope
	}

	cc := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     fmt.Sprintf("%s/%s/oauth2/v2.0/token", host, cfg.TenantID),
		Scopes:       []string{scope},
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	return &Client{source: cc.TokenSource(ctx)}, nil
}

// AccessToken returns a valid access token, authenticating when the cached one expired.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	tok, err := c.source.Token()
	if err != nil {
		return "", fmt.Errorf("failed to authenticate: %w", err)
	}
	return tok.AccessToken, nil
}
