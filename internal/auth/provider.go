package auth

import (
	"fmt"
	"net/url"
	"strings"
)

// Provider names accepted by SignInWithProvider.
const (
	ProviderGoogle   = "google"
	ProviderFacebook = "facebook"
	ProviderApple    = "apple"
)

// providerEmails maps each delegated provider to the operator it signs in.
// No token exchange is performed.
var providerEmails = map[string]string{
	ProviderGoogle:   "jason@cascadeprojects.com",
	ProviderFacebook: "doug@cascadeprojects.com",
	ProviderApple:    "jason@cascadeprojects.com",
}

// ProviderEmail returns the address a provider resolves to.
func ProviderEmail(provider string) (string, bool) {
	email, ok := providerEmails[strings.ToLower(strings.TrimSpace(provider))]
	return email, ok
}

// OAuthConfig holds the client identifiers used to build authorization URLs.
type OAuthConfig struct {
	RedirectBase   string
	GoogleClientID string
	FacebookAppID  string
	AppleClientID  string
}

type providerEndpoint struct {
	authURL string
	scope   string
	extra   map[string]string
}

var providerEndpoints = map[string]providerEndpoint{
	ProviderGoogle: {
		authURL: "https://accounts.google.com/o/oauth2/v2/auth",
		scope:   "openid profile email",
		extra:   map[string]string{"access_type": "offline", "prompt": "consent"},
	},
	ProviderFacebook: {
		authURL: "https://www.facebook.com/v12.0/dialog/oauth",
		scope:   "public_profile,email",
	},
	ProviderApple: {
		authURL: "https://appleid.apple.com/auth/authorize",
		scope:   "name email",
		extra:   map[string]string{"response_mode": "form_post"},
	},
}

func (c OAuthConfig) clientID(provider string) string {
	switch provider {
	case ProviderGoogle:
		return c.GoogleClientID
	case ProviderFacebook:
		return c.FacebookAppID
	case ProviderApple:
		return c.AppleClientID
	}
	return ""
}

// ProviderAuthURL returns the authorization URL a browser would be sent to
// for provider. The callback is never exchanged for tokens.
func (c OAuthConfig) ProviderAuthURL(provider, state string) (string, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	ep, ok := providerEndpoints[provider]
	if !ok {
		return "", fmt.Errorf("%w: unknown provider %q", ErrUnauthorized, provider)
	}
	params := url.Values{}
	params.Set("client_id", c.clientID(provider))
	params.Set("redirect_uri", strings.TrimRight(c.RedirectBase, "/")+"/auth/callback/"+provider)
	params.Set("response_type", "code")
	params.Set("scope", ep.scope)
	if state != "" {
		params.Set("state", state)
	}
	for k, v := range ep.extra {
		params.Set(k, v)
	}
	return ep.authURL + "?" + params.Encode(), nil
}
