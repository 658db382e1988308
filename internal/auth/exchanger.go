package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/dvloznov/bank-sync/internal/domain"
)

// TokenExchanger talks to the provider's token endpoint.
type TokenExchanger interface {
	// Exchange trades a one-time authorization code for a credential.
	Exchange(ctx context.Context, code string) (*domain.Credential, error)

	// Refresh trades a refresh token for a new credential pair.
	Refresh(ctx context.Context, refreshToken string) (*domain.Credential, error)
}

// OAuthExchanger implements TokenExchanger with client id/secret sent as
// HTTP basic auth.
type OAuthExchanger struct {
	conf       *oauth2.Config
	httpClient *http.Client
	now        func() time.Time
}

// NewOAuthExchanger returns an exchanger for tokenURL. httpClient may be nil.
func NewOAuthExchanger(tokenURL, clientID, clientSecret, redirectURL string, httpClient *http.Client) *OAuthExchanger {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &OAuthExchanger{
		conf: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Endpoint: oauth2.Endpoint{
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		httpClient: httpClient,
		now:        time.Now,
	}
}

// Exchange implements TokenExchanger using the authorization_code grant.
func (e *OAuthExchanger) Exchange(ctx context.Context, code string) (*domain.Credential, error) {
	tok, err := e.conf.Exchange(e.withClient(ctx), code)
	if err != nil {
		return nil, fmt.Errorf("OAuthExchanger.Exchange: %w", err)
	}
	return e.toCredential(tok, "")
}

// Refresh implements TokenExchanger using the refresh_token grant.
func (e *OAuthExchanger) Refresh(ctx context.Context, refreshToken string) (*domain.Credential, error) {
	// An empty access token forces the source to hit the token endpoint.
	src := e.conf.TokenSource(e.withClient(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, fmt.Errorf("OAuthExchanger.Refresh: %w", err)
	}
	return e.toCredential(tok, refreshToken)
}

func (e *OAuthExchanger) withClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, e.httpClient)
}

func (e *OAuthExchanger) toCredential(tok *oauth2.Token, previousRefresh string) (*domain.Credential, error) {
	if tok.AccessToken == "" {
		return nil, errors.New("token response has no access_token")
	}
	refresh := tok.RefreshToken
	if refresh == "" {
		refresh = previousRefresh
	}
	if refresh == "" {
		return nil, errors.New("token response has no refresh_token")
	}
	expires := tok.Expiry
	if expires.IsZero() {
		// No expires_in: treat as already stale so the next run refreshes.
		expires = e.now()
	}
	return &domain.Credential{
		AccessToken:  tok.AccessToken,
		RefreshToken: refresh,
		ExpiresAt:    expires.UTC(),
	}, nil
}

// isPermanentTokenError reports a token endpoint rejection (bad client
// credentials, revoked or unknown refresh token). Those never get better
// by retrying.
func isPermanentTokenError(err error) bool {
	var re *oauth2.RetrieveError
	return errors.As(err, &re)
}

var _ TokenExchanger = (*OAuthExchanger)(nil)
