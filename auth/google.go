package auth

import (
	"context"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/onnwee/stream-widgets/backend/config"
	"github.com/onnwee/stream-widgets/backend/model"
)

// YouTubeOAuth builds the oauth2 config for the YouTube flow. Scopes may be
// comma or space separated.
func YouTubeOAuth(cfg *config.Config) *oauth2.Config {
	scopes := []string{"https://www.googleapis.com/auth/youtube.readonly"}
	if cfg.YTScopes != "" {
		if fields := strings.Fields(strings.ReplaceAll(cfg.YTScopes, ",", " ")); len(fields) > 0 {
			scopes = fields
		}
	}
	return &oauth2.Config{
		ClientID:     cfg.YTClientID,
		ClientSecret: cfg.YTClientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  cfg.YTRedirectURI,
		Scopes:       scopes,
	}
}

// BuildYouTubeAuthorizeURL returns the consent URL. Offline access is forced
// so a refresh token is always issued.
func BuildYouTubeAuthorizeURL(cfg *config.Config, state string) string {
	return YouTubeOAuth(cfg).AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// ExchangeYouTubeCode exchanges an authorization code for tokens.
func ExchangeYouTubeCode(ctx context.Context, cfg *config.Config, code string) (model.AuthTokens, error) {
	tok, err := YouTubeOAuth(cfg).Exchange(ctx, code)
	if err != nil {
		return model.AuthTokens{}, err
	}
	return fromOAuth2Token(tok, cfg), nil
}

// RefreshYouTubeToken uses the stored refresh token to mint a new access
// token through the oauth2 token source.
func RefreshYouTubeToken(ctx context.Context, cfg *config.Config, t model.AuthTokens) (model.AuthTokens, error) {
	src := YouTubeOAuth(cfg).TokenSource(ctx, &oauth2.Token{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		Expiry:       t.ExpiresAt,
	})
	tok, err := src.Token()
	if err != nil {
		return model.AuthTokens{}, err
	}
	out := fromOAuth2Token(tok, cfg)
	if out.RefreshToken == "" {
		// Google omits the refresh token on renewal
		out.RefreshToken = t.RefreshToken
	}
	return out, nil
}

func fromOAuth2Token(tok *oauth2.Token, cfg *config.Config) model.AuthTokens {
	return model.AuthTokens{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry,
		Scope:        YouTubeOAuth(cfg).Scopes,
	}
}
