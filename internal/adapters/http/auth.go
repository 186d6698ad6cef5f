package http

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/bft-labs/spbatch/internal/domain"
)

// DefaultAuthorityURL is the Microsoft identity platform authority.
const DefaultAuthorityURL = "https://login.microsoftonline.com"

// Credentials identify an app registration using the client credentials flow.
type Credentials struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	AuthorityURL string
}

// TokenSources returns a cached token source per protocol whose endpoint is set.
// Each source requests the ".default" scope of its endpoint's host.
func TokenSources(ctx context.Context, creds Credentials, siteURL, graphURL string) (map[domain.Protocol]oauth2.TokenSource, error) {
	if creds.TenantID == "" || creds.ClientID == "" {
		return nil, fmt.Errorf("tenant id and client id are required")
	}
	authority := creds.AuthorityURL
	if authority == "" {
		authority = DefaultAuthorityURL
	}
	tokenURL := strings.TrimRight(authority, "/") + "/" + creds.TenantID + "/oauth2/v2.0/token"

	endpoints := map[domain.Protocol]string{
		domain.ProtocolREST:  siteURL,
		domain.ProtocolGraph: graphURL,
	}
	sources := make(map[domain.Protocol]oauth2.TokenSource, len(endpoints))
	for p, endpoint := range endpoints {
		if endpoint == "" {
			continue
		}
		scope, err := resourceScope(endpoint)
		if err != nil {
			return nil, fmt.Errorf("%s scope: %w", p, err)
		}
		cfg := clientcredentials.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			TokenURL:     tokenURL,
			Scopes:       []string{scope},
		}
		sources[p] = oauth2.ReuseTokenSource(nil, cfg.TokenSource(ctx))
	}
	return sources, nil
}

func resourceScope(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("endpoint %q is not absolute", endpoint)
	}
	return u.Scheme + "://" + u.Host + "/.default", nil
}
