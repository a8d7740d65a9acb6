// Package discord talks to the Discord OAuth2 and REST APIs and
// normalizes responses into identity facts. It makes no linking or
// persistence decisions.
package discord

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

const cdnBaseURL = "https://cdn.discordapp.com"

// ErrNotAMember is returned when the user is not in the configured
// guild, or when no bot credential is configured at all. Callers treat
// it as non-fatal: basic identity linking must not depend on guild
// membership.
var ErrNotAMember = errors.New("discord: not a guild member")

// ExchangeError is a failed authorization-code exchange. Status and
// body are for server-side logs only and must never reach the browser.
type ExchangeError struct {
	Status int
	Body   string
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("discord: code exchange failed with status %d", e.Status)
}

// ProfileError is a failed /users/@me fetch.
type ProfileError struct {
	Status int
	Body   string
}

func (e *ProfileError) Error() string {
	return fmt.Sprintf("discord: profile fetch failed with status %d", e.Status)
}

// Profile is the caller's own Discord profile.
type Profile struct {
	ID         string
	Username   string
	GlobalName string
	AvatarHash string
}

// DisplayName prefers the global display name over the login username.
func (p Profile) DisplayName() string {
	if p.GlobalName != "" {
		return p.GlobalName
	}
	return p.Username
}

// AvatarURL returns the CDN locator for the profile avatar, or nil when
// Discord reported no avatar.
func (p Profile) AvatarURL() *string {
	if p.AvatarHash == "" {
		return nil
	}
	url := fmt.Sprintf("%s/avatars/%s/%s.png?size=256", cdnBaseURL, p.ID, p.AvatarHash)
	return &url
}

// Member is the guild-scoped view of a user.
type Member struct {
	Nickname *string
	RoleIDs  []string
}

type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	BotToken     string
	GuildID      string
	// BaseURL defaults to https://discord.com; overridable for tests.
	BaseURL string
	Timeout time.Duration
}

type Client struct {
	oauthConfig *oauth2.Config
	botToken    string
	guildID     string
	baseURL     string
	httpClient  *http.Client
}

func New(cfg Config) (*Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.RedirectURL == "" {
		return nil, errors.New("discord oauth config missing required fields")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://discord.com"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	oauthCfg := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Endpoint: oauth2.Endpoint{
			AuthURL:   baseURL + "/oauth2/authorize",
			TokenURL:  baseURL + "/api/oauth2/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
		Scopes: []string{"identify"},
	}

	return &Client{
		oauthConfig: oauthCfg,
		botToken:    cfg.BotToken,
		guildID:     cfg.GuildID,
		baseURL:     baseURL,
		httpClient:  &http.Client{Timeout: timeout},
	}, nil
}

// AuthCodeURL builds the authorization URL. prompt=consent matches the
// registered application settings.
func (c *Client) AuthCodeURL(state string) string {
	return c.oauthConfig.AuthCodeURL(
		state,
		oauth2.SetAuthURLParam("prompt", "consent"),
	)
}

// ExchangeCode trades the authorization code for an access token. The
// redirect URI sent here is the same one used at initiation; Discord
// rejects the exchange on any mismatch.
func (c *Client) ExchangeCode(ctx context.Context, code string) (string, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)

	tok, err := c.oauthConfig.Exchange(ctx, code)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			status := 0
			if retrieveErr.Response != nil {
				status = retrieveErr.Response.StatusCode
			}
			return "", &ExchangeError{Status: status, Body: string(retrieveErr.Body)}
		}
		return "", fmt.Errorf("discord token exchange failed: %w", err)
	}
	if tok.AccessToken == "" {
		return "", &ExchangeError{Status: http.StatusOK, Body: "missing access_token"}
	}
	return tok.AccessToken, nil
}

// FetchSelf fetches the caller's own profile with the user access token.
func (c *Client) FetchSelf(ctx context.Context, accessToken string) (*Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/users/@me", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &ProfileError{Status: resp.StatusCode, Body: string(body)}
	}

	var payload struct {
		ID         string `json:"id"`
		Username   string `json:"username"`
		GlobalName string `json:"global_name"`
		Avatar     string `json:"avatar"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &ProfileError{Status: resp.StatusCode, Body: "undecodable profile payload"}
	}
	if payload.ID == "" {
		return nil, &ProfileError{Status: resp.StatusCode, Body: "profile payload missing id"}
	}

	return &Profile{
		ID:         payload.ID,
		Username:   payload.Username,
		GlobalName: payload.GlobalName,
		AvatarHash: payload.Avatar,
	}, nil
}

// FetchGuildMember fetches nickname and role ids for the user on the
// configured guild. This call is authorized as the application (bot
// token), not as the user: a user access token cannot read guild
// membership.
func (c *Client) FetchGuildMember(ctx context.Context, userID string) (*Member, error) {
	if c.botToken == "" || c.guildID == "" {
		return nil, ErrNotAMember
	}

	url := fmt.Sprintf("%s/api/guilds/%s/members/%s", c.baseURL, c.guildID, userID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bot "+c.botToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotAMember
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("discord member fetch failed with status %d: %s", resp.StatusCode, body)
	}

	var payload struct {
		Nick  string   `json:"nick"`
		Roles []string `json:"roles"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("discord member payload undecodable: %w", err)
	}

	member := &Member{RoleIDs: payload.Roles}
	if member.RoleIDs == nil {
		member.RoleIDs = []string{}
	}
	if payload.Nick != "" {
		nick := payload.Nick
		member.Nickname = &nick
	}
	return member, nil
}
