// Package link drives the Discord account-linking flow end to end:
// initiation, the browser callback, and the out-of-band bot sync. The
// flow keeps no server-side state; everything it needs to resume at the
// callback rides inside the signed state parameter.
package link

import (
	"context"
	"crypto/subtle"
	"errors"
	"time"

	"github.com/zealess/doj-backend/internal/account"
	"github.com/zealess/doj-backend/internal/config"
	"github.com/zealess/doj-backend/internal/discord"
	"github.com/zealess/doj-backend/internal/grade"
	"github.com/zealess/doj-backend/internal/logger"
	"github.com/zealess/doj-backend/internal/state"
	"github.com/zealess/doj-backend/internal/token"
)

var (
	ErrUnauthenticated = errors.New("missing or invalid caller token")
	ErrForbidden       = errors.New("shared secret mismatch")
)

// IdentityClient is the outbound surface of the Discord client. The
// three calls are sequential: each depends on the previous result.
type IdentityClient interface {
	AuthCodeURL(state string) string
	ExchangeCode(ctx context.Context, code string) (string, error)
	FetchSelf(ctx context.Context, accessToken string) (*discord.Profile, error)
	FetchGuildMember(ctx context.Context, userID string) (*discord.Member, error)
}

type Service struct {
	codec      *token.Codec
	client     IdentityClient
	accounts   account.Store
	guard      state.Guard
	gradeTable []config.RoleMapping
	stateTTL   time.Duration
	syncSecret string
	successURL string
	failureURL string
}

type ServiceConfig struct {
	Codec           *token.Codec
	Client          IdentityClient
	Accounts        account.Store
	Guard           state.Guard
	GradeTable      []config.RoleMapping
	StateTTL        time.Duration
	SyncSecret      string
	FrontendBaseURL string
}

func NewService(cfg ServiceConfig) *Service {
	guard := cfg.Guard
	if guard == nil {
		guard = state.NoopGuard{}
	}
	stateTTL := cfg.StateTTL
	if stateTTL <= 0 {
		stateTTL = 5 * time.Minute
	}
	return &Service{
		codec:      cfg.Codec,
		client:     cfg.Client,
		accounts:   cfg.Accounts,
		guard:      guard,
		gradeTable: cfg.GradeTable,
		stateTTL:   stateTTL,
		syncSecret: cfg.SyncSecret,
		successURL: cfg.FrontendBaseURL + "/dashboard?discord=linked",
		failureURL: cfg.FrontendBaseURL + "/dashboard?discord=error",
	}
}

// Initiate verifies the caller's session credential and returns the
// provider authorization URL. The state parameter is a fresh
// short-lived single-purpose token over the caller's account id, never
// the session credential itself.
func (s *Service) Initiate(callerToken string) (string, error) {
	claims, err := s.codec.Verify(callerToken, token.PurposeSession)
	if err != nil {
		return "", ErrUnauthenticated
	}

	stateToken, err := s.codec.Issue(claims.Subject, claims.Role, token.PurposeLinkState, s.stateTTL)
	if err != nil {
		return "", err
	}

	return s.client.AuthCodeURL(stateToken), nil
}

// CompleteCallback handles the provider redirect. It always returns a
// browser redirect location: provider failures are logged server-side
// and surfaced only as the generic failure flag. Identity is persisted
// atomically; if the profile fetch fails after a successful exchange,
// nothing is written.
func (s *Service) CompleteCallback(ctx context.Context, code, stateParam string) string {
	if code == "" || stateParam == "" {
		logger.Warn("link callback missing code or state", nil)
		return s.failureURL
	}

	// Expired and tampered states both end here; the browser never
	// learns which.
	claims, err := s.codec.Verify(stateParam, token.PurposeLinkState)
	if err != nil {
		logger.Warn("link callback state rejected", map[string]any{
			"error": err.Error(),
		})
		return s.failureURL
	}

	fresh, err := s.guard.Consume(ctx, claims.ID, s.stateTTL)
	if err != nil {
		// Guard is best-effort hardening; the state expiry still bounds
		// the window when it is unavailable.
		logger.Error("state guard unavailable", map[string]any{
			"error": err.Error(),
		})
	} else if !fresh {
		logger.Warn("link callback state replayed", map[string]any{
			"subject": claims.Subject,
		})
		return s.failureURL
	}

	accessToken, err := s.client.ExchangeCode(ctx, code)
	if err != nil {
		var exchangeErr *discord.ExchangeError
		if errors.As(err, &exchangeErr) {
			logger.Error("discord code exchange failed", map[string]any{
				"status": exchangeErr.Status,
				"body":   exchangeErr.Body,
			})
		} else {
			logger.Error("discord code exchange failed", map[string]any{
				"error": err.Error(),
			})
		}
		return s.failureURL
	}

	profile, err := s.client.FetchSelf(ctx, accessToken)
	if err != nil {
		var profileErr *discord.ProfileError
		if errors.As(err, &profileErr) {
			logger.Error("discord profile fetch failed", map[string]any{
				"status": profileErr.Status,
				"body":   profileErr.Body,
			})
		} else {
			logger.Error("discord profile fetch failed", map[string]any{
				"error": err.Error(),
			})
		}
		return s.failureURL
	}

	// Guild membership is best-effort: accounts outside the guild still
	// link their basic identity and resolve as unranked.
	var nickname *string
	roles := []string{}
	member, err := s.client.FetchGuildMember(ctx, profile.ID)
	switch {
	case err == nil:
		nickname = member.Nickname
		roles = member.RoleIDs
	case errors.Is(err, discord.ErrNotAMember):
		logger.Info("linked user is not a guild member", map[string]any{
			"discord_id": profile.ID,
		})
	default:
		logger.Warn("discord member fetch failed", map[string]any{
			"error": err.Error(),
		})
	}

	acc, err := s.accounts.GetByID(ctx, claims.Subject)
	if err != nil {
		logger.Error("link target account not found", map[string]any{
			"subject": claims.Subject,
			"error":   err.Error(),
		})
		return s.failureURL
	}

	acc.Discord = &account.DiscordLink{
		ID:       profile.ID,
		Username: profile.DisplayName(),
		Nickname: nickname,
		Avatar:   profile.AvatarURL(),
		Grade:    gradeOrNil(grade.Resolve(roles, s.gradeTable)),
		Roles:    roles,
		LinkedAt: time.Now().UTC(),
	}

	if err := s.accounts.Update(ctx, acc); err != nil {
		logger.Error("failed to persist discord link", map[string]any{
			"subject": claims.Subject,
			"error":   err.Error(),
		})
		return s.failureURL
	}

	logger.Info("discord account linked", map[string]any{
		"subject":    claims.Subject,
		"discord_id": profile.ID,
	})
	return s.successURL
}

// SyncAttributes carries the refreshed identity facts pushed by the
// bot. Nil fields were not supplied and leave the stored value alone.
type SyncAttributes struct {
	DisplayName *string
	Nickname    *string
	AvatarRef   *string
	RoleIDs     []string
}

// Sync refreshes an existing link from a trusted caller. It never
// creates new linkage, and it recomputes the grade whenever fresh roles
// are supplied. Calling it twice with the same attributes is a no-op
// the second time.
func (s *Service) Sync(ctx context.Context, sharedSecret, externalID string, attrs SyncAttributes) (*account.Account, error) {
	if s.syncSecret == "" ||
		subtle.ConstantTimeCompare([]byte(sharedSecret), []byte(s.syncSecret)) != 1 {
		return nil, ErrForbidden
	}

	acc, err := s.accounts.GetByDiscordID(ctx, externalID)
	if err != nil {
		return nil, err
	}

	if attrs.DisplayName != nil {
		acc.Discord.Username = *attrs.DisplayName
	}
	if attrs.Nickname != nil {
		acc.Discord.Nickname = attrs.Nickname
	}
	if attrs.AvatarRef != nil {
		acc.Discord.Avatar = attrs.AvatarRef
	}
	if attrs.RoleIDs != nil {
		acc.Discord.Roles = attrs.RoleIDs
		acc.Discord.Grade = gradeOrNil(grade.Resolve(attrs.RoleIDs, s.gradeTable))
	}

	if err := s.accounts.Update(ctx, acc); err != nil {
		return nil, err
	}
	return acc, nil
}

func gradeOrNil(g string) *string {
	if g == grade.Unranked {
		return nil
	}
	return &g
}
