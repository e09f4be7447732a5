package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/onnwee/stream-widgets/backend/model"
)

// Overridable in tests.
var (
	twitchAuthorizeURL = "https://id.twitch.tv/oauth2/authorize"
	twitchTokenURL     = "https://id.twitch.tv/oauth2/token"
)

type twitchTokenResult struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	TokenType    string   `json:"token_type"`
	Scope        []string `json:"scope"`
	ExpiresIn    int      `json:"expires_in"`
}

// BuildTwitchAuthorizeURL constructs the user authorization URL for the
// OAuth code grant. Scopes may be comma or space separated.
func BuildTwitchAuthorizeURL(clientID, redirectURI, scopes, state string) (string, error) {
	if clientID == "" || redirectURI == "" {
		return "", errors.New("missing clientID or redirectURI")
	}
	v := url.Values{}
	v.Set("response_type", "code")
	v.Set("client_id", clientID)
	v.Set("redirect_uri", redirectURI)
	if scopes != "" {
		v.Set("scope", strings.TrimSpace(strings.ReplaceAll(scopes, ",", " ")))
	}
	if state != "" {
		v.Set("state", state)
	}
	return twitchAuthorizeURL + "?" + v.Encode(), nil
}

func postTwitchTokenForm(ctx context.Context, form url.Values) (*twitchTokenResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, twitchTokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("twitch token request failed: %s: %s", resp.Status, string(b))
	}
	var res twitchTokenResult
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ExchangeTwitchCode exchanges an authorization code for tokens.
func ExchangeTwitchCode(ctx context.Context, clientID, clientSecret, code, redirectURI string) (model.AuthTokens, error) {
	if clientID == "" || clientSecret == "" || code == "" || redirectURI == "" {
		return model.AuthTokens{}, errors.New("missing required parameter for auth code exchange")
	}
	form := url.Values{}
	form.Set("client_id", clientID)
	form.Set("client_secret", clientSecret)
	form.Set("code", code)
	form.Set("grant_type", "authorization_code")
	form.Set("redirect_uri", redirectURI)
	res, err := postTwitchTokenForm(ctx, form)
	if err != nil {
		return model.AuthTokens{}, err
	}
	return res.toTokens(), nil
}

// RefreshTwitchToken exchanges a refresh token for a new access token.
func RefreshTwitchToken(ctx context.Context, clientID, clientSecret, refreshToken string) (model.AuthTokens, error) {
	if clientID == "" || clientSecret == "" || refreshToken == "" {
		return model.AuthTokens{}, errors.New("missing clientID/clientSecret/refreshToken")
	}
	form := url.Values{}
	form.Set("client_id", clientID)
	form.Set("client_secret", clientSecret)
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	res, err := postTwitchTokenForm(ctx, form)
	if err != nil {
		return model.AuthTokens{}, err
	}
	return res.toTokens(), nil
}

func (r *twitchTokenResult) toTokens() model.AuthTokens {
	return model.AuthTokens{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		ExpiresAt:    ComputeExpiry(r.ExpiresIn),
		Scope:        r.Scope,
	}
}

// ComputeExpiry returns the absolute expiry for an expires_in value,
// defaulting to one hour when the provider omits it.
func ComputeExpiry(seconds int) time.Time {
	if seconds <= 0 {
		return time.Now().Add(60 * time.Minute)
	}
	return time.Now().Add(time.Duration(seconds) * time.Second)
}
