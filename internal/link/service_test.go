package link

import (
	"context"
	"errors"
	"net/url"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/zealess/doj-backend/internal/account"
	"github.com/zealess/doj-backend/internal/config"
	"github.com/zealess/doj-backend/internal/discord"
	"github.com/zealess/doj-backend/internal/token"
)

// memStore is an in-memory account.Store for service tests.
type memStore struct {
	mu       sync.Mutex
	accounts map[string]*account.Account
	updates  int
}

func newMemStore(accounts ...*account.Account) *memStore {
	s := &memStore{accounts: make(map[string]*account.Account)}
	for _, acc := range accounts {
		s.accounts[acc.ID] = acc
	}
	return s
}

func (s *memStore) Create(ctx context.Context, acc *account.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[acc.ID] = acc
	return nil
}

func (s *memStore) GetByID(ctx context.Context, id string) (*account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[id]
	if !ok {
		return nil, account.ErrNotFound
	}
	clone := *acc
	return &clone, nil
}

func (s *memStore) GetByLogin(ctx context.Context, identifier string) (*account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, acc := range s.accounts {
		if strings.EqualFold(acc.Username, identifier) || strings.EqualFold(acc.Email, identifier) {
			clone := *acc
			return &clone, nil
		}
	}
	return nil, account.ErrNotFound
}

func (s *memStore) GetByDiscordID(ctx context.Context, discordID string) (*account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, acc := range s.accounts {
		if acc.Discord != nil && acc.Discord.ID == discordID {
			clone := *acc
			return &clone, nil
		}
	}
	return nil, account.ErrNotFound
}

func (s *memStore) Update(ctx context.Context, acc *account.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[acc.ID]; !ok {
		return account.ErrNotFound
	}
	clone := *acc
	s.accounts[acc.ID] = &clone
	s.updates++
	return nil
}

// fakeIdentity scripts the three provider calls.
type fakeIdentity struct {
	exchangeErr error
	profile     *discord.Profile
	profileErr  error
	member      *discord.Member
	memberErr   error
}

func (f *fakeIdentity) AuthCodeURL(state string) string {
	return "https://provider.test/oauth2/authorize?state=" + url.QueryEscape(state)
}

func (f *fakeIdentity) ExchangeCode(ctx context.Context, code string) (string, error) {
	if f.exchangeErr != nil {
		return "", f.exchangeErr
	}
	return "access-token", nil
}

func (f *fakeIdentity) FetchSelf(ctx context.Context, accessToken string) (*discord.Profile, error) {
	if f.profileErr != nil {
		return nil, f.profileErr
	}
	return f.profile, nil
}

func (f *fakeIdentity) FetchGuildMember(ctx context.Context, userID string) (*discord.Member, error) {
	if f.memberErr != nil {
		return nil, f.memberErr
	}
	return f.member, nil
}

// onceGuard rejects every id after its first consumption.
type onceGuard struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (g *onceGuard) Consume(ctx context.Context, id string, ttl time.Duration) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.seen == nil {
		g.seen = make(map[string]bool)
	}
	if g.seen[id] {
		return false, nil
	}
	g.seen[id] = true
	return true, nil
}

var gradeTable = []config.RoleMapping{
	{RoleID: "100", Grade: "Juge Fédéral"},
	{RoleID: "200", Grade: "Greffier"},
}

func newTestService(store *memStore, client IdentityClient, codec *token.Codec) *Service {
	return NewService(ServiceConfig{
		Codec:           codec,
		Client:          client,
		Accounts:        store,
		GradeTable:      gradeTable,
		StateTTL:        5 * time.Minute,
		SyncSecret:      "bot-secret",
		FrontendBaseURL: "https://front.test",
	})
}

func sessionToken(t *testing.T, codec *token.Codec, subject string) string {
	t.Helper()
	raw, err := codec.Issue(subject, "user", token.PurposeSession, time.Hour)
	if err != nil {
		t.Fatalf("issue session: %v", err)
	}
	return raw
}

func stateFromAuthURL(t *testing.T, authURL string) string {
	t.Helper()
	parsed, err := url.Parse(authURL)
	if err != nil {
		t.Fatalf("parse auth url: %v", err)
	}
	return parsed.Query().Get("state")
}

func TestInitiate(t *testing.T) {
	codec := token.NewCodec("secret")
	store := newMemStore(&account.Account{ID: "acc-1"})
	svc := newTestService(store, &fakeIdentity{}, codec)

	authURL, err := svc.Initiate(sessionToken(t, codec, "acc-1"))
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}

	// The state parameter must be a dedicated short-lived token over the
	// caller's account, not the session credential.
	stateParam := stateFromAuthURL(t, authURL)
	claims, err := codec.Verify(stateParam, token.PurposeLinkState)
	if err != nil {
		t.Fatalf("state token invalid: %v", err)
	}
	if claims.Subject != "acc-1" {
		t.Errorf("state subject = %q, want acc-1", claims.Subject)
	}
	if _, err := codec.Verify(stateParam, token.PurposeSession); err == nil {
		t.Error("state token must not verify as a session credential")
	}
}

func TestInitiateRejectsBadToken(t *testing.T) {
	codec := token.NewCodec("secret")
	svc := newTestService(newMemStore(), &fakeIdentity{}, codec)

	if _, err := svc.Initiate("garbage"); !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("err = %v, want ErrUnauthenticated", err)
	}

	// A state token is not a session credential either.
	stateTok, _ := codec.Issue("acc-1", "user", token.PurposeLinkState, time.Minute)
	if _, err := svc.Initiate(stateTok); !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("err = %v, want ErrUnauthenticated", err)
	}
}

func TestCompleteCallbackSuccess(t *testing.T) {
	codec := token.NewCodec("secret")
	store := newMemStore(&account.Account{ID: "acc-1", Username: "marc"})
	nick := "Juge Marc"
	client := &fakeIdentity{
		profile: &discord.Profile{ID: "555", Username: "marc", GlobalName: "Marc L.", AvatarHash: "abc"},
		member:  &discord.Member{Nickname: &nick, RoleIDs: []string{"999", "100"}},
	}
	svc := newTestService(store, client, codec)

	authURL, err := svc.Initiate(sessionToken(t, codec, "acc-1"))
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}

	location := svc.CompleteCallback(context.Background(), "the-code", stateFromAuthURL(t, authURL))
	if location != "https://front.test/dashboard?discord=linked" {
		t.Fatalf("location = %q", location)
	}

	acc, err := store.GetByID(context.Background(), "acc-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if acc.Discord == nil {
		t.Fatal("discord bundle not persisted")
	}
	if acc.Discord.ID != "555" {
		t.Errorf("discord id = %q", acc.Discord.ID)
	}
	if acc.Discord.Username != "Marc L." {
		t.Errorf("discord username = %q, want display name", acc.Discord.Username)
	}
	if acc.Discord.Nickname == nil || *acc.Discord.Nickname != "Juge Marc" {
		t.Errorf("nickname = %v", acc.Discord.Nickname)
	}
	if acc.Discord.Grade == nil || *acc.Discord.Grade != "Juge Fédéral" {
		t.Errorf("grade = %v, want Juge Fédéral", acc.Discord.Grade)
	}
	if !reflect.DeepEqual(acc.Discord.Roles, []string{"999", "100"}) {
		t.Errorf("roles = %v", acc.Discord.Roles)
	}
	if acc.Discord.LinkedAt.IsZero() {
		t.Error("linkedAt not set")
	}
}

func TestCompleteCallbackNotAGuildMember(t *testing.T) {
	codec := token.NewCodec("secret")
	store := newMemStore(&account.Account{ID: "acc-1"})
	client := &fakeIdentity{
		profile:   &discord.Profile{ID: "555", Username: "marc"},
		memberErr: discord.ErrNotAMember,
	}
	svc := newTestService(store, client, codec)

	authURL, _ := svc.Initiate(sessionToken(t, codec, "acc-1"))
	location := svc.CompleteCallback(context.Background(), "code", stateFromAuthURL(t, authURL))

	// Membership is best-effort: the link still succeeds.
	if !strings.Contains(location, "discord=linked") {
		t.Fatalf("location = %q, want success", location)
	}

	acc, _ := store.GetByID(context.Background(), "acc-1")
	if acc.Discord == nil {
		t.Fatal("discord bundle not persisted")
	}
	if acc.Discord.Grade != nil {
		t.Errorf("grade = %v, want nil for non-member", acc.Discord.Grade)
	}
	if acc.Discord.Roles == nil || len(acc.Discord.Roles) != 0 {
		t.Errorf("roles = %v, want empty", acc.Discord.Roles)
	}
}

func TestCompleteCallbackRejectsBadState(t *testing.T) {
	codec := token.NewCodec("secret")
	store := newMemStore(&account.Account{ID: "acc-1"})
	svc := newTestService(store, &fakeIdentity{profile: &discord.Profile{ID: "555"}}, codec)

	expired, _ := codec.Issue("acc-1", "user", token.PurposeLinkState, -time.Minute)
	session := sessionToken(t, codec, "acc-1")

	for name, stateParam := range map[string]string{
		"missing":            "",
		"garbage":            "not-a-token",
		"expired":            expired,
		"session credential": session,
	} {
		location := svc.CompleteCallback(context.Background(), "code", stateParam)
		if !strings.Contains(location, "discord=error") {
			t.Errorf("%s state: location = %q, want failure", name, location)
		}
	}

	acc, _ := store.GetByID(context.Background(), "acc-1")
	if acc.Discord != nil {
		t.Error("discord bundle persisted despite rejected state")
	}
}

func TestCompleteCallbackSingleUseState(t *testing.T) {
	codec := token.NewCodec("secret")
	store := newMemStore(&account.Account{ID: "acc-1"})
	client := &fakeIdentity{profile: &discord.Profile{ID: "555"}, memberErr: discord.ErrNotAMember}
	svc := NewService(ServiceConfig{
		Codec:           codec,
		Client:          client,
		Accounts:        store,
		Guard:           &onceGuard{},
		GradeTable:      gradeTable,
		SyncSecret:      "bot-secret",
		FrontendBaseURL: "https://front.test",
	})

	authURL, _ := svc.Initiate(sessionToken(t, codec, "acc-1"))
	stateParam := stateFromAuthURL(t, authURL)

	if loc := svc.CompleteCallback(context.Background(), "code", stateParam); !strings.Contains(loc, "discord=linked") {
		t.Fatalf("first use: location = %q", loc)
	}
	if loc := svc.CompleteCallback(context.Background(), "code", stateParam); !strings.Contains(loc, "discord=error") {
		t.Errorf("replay: location = %q, want failure", loc)
	}
}

func TestCompleteCallbackExchangeFailurePersistsNothing(t *testing.T) {
	codec := token.NewCodec("secret")
	store := newMemStore(&account.Account{ID: "acc-1"})
	client := &fakeIdentity{exchangeErr: &discord.ExchangeError{Status: 400, Body: "invalid_grant"}}
	svc := newTestService(store, client, codec)

	authURL, _ := svc.Initiate(sessionToken(t, codec, "acc-1"))
	location := svc.CompleteCallback(context.Background(), "bad-code", stateFromAuthURL(t, authURL))

	if !strings.Contains(location, "discord=error") {
		t.Errorf("location = %q, want failure", location)
	}
	if store.updates != 0 {
		t.Errorf("updates = %d, want 0", store.updates)
	}
}

func TestCompleteCallbackProfileFailurePersistsNothing(t *testing.T) {
	codec := token.NewCodec("secret")
	store := newMemStore(&account.Account{ID: "acc-1"})
	client := &fakeIdentity{profileErr: &discord.ProfileError{Status: 401, Body: "unauthorized"}}
	svc := newTestService(store, client, codec)

	authURL, _ := svc.Initiate(sessionToken(t, codec, "acc-1"))
	location := svc.CompleteCallback(context.Background(), "code", stateFromAuthURL(t, authURL))

	if !strings.Contains(location, "discord=error") {
		t.Errorf("location = %q, want failure", location)
	}
	if store.updates != 0 {
		t.Errorf("updates = %d, want 0", store.updates)
	}
}

func TestSyncRecomputesGrade(t *testing.T) {
	codec := token.NewCodec("secret")
	oldGrade := "Greffier"
	store := newMemStore(&account.Account{
		ID: "acc-1",
		Discord: &account.DiscordLink{
			ID:       "555",
			Username: "Marc",
			Grade:    &oldGrade,
			Roles:    []string{"200"},
		},
	})
	svc := newTestService(store, &fakeIdentity{}, codec)

	acc, err := svc.Sync(context.Background(), "bot-secret", "555", SyncAttributes{
		RoleIDs: []string{"100"},
	})
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if acc.Discord.Grade == nil || *acc.Discord.Grade != "Juge Fédéral" {
		t.Errorf("grade = %v, want Juge Fédéral", acc.Discord.Grade)
	}

	// Dropping all mapped roles demotes to unranked, not to a stale cache.
	acc, err = svc.Sync(context.Background(), "bot-secret", "555", SyncAttributes{
		RoleIDs: []string{},
	})
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if acc.Discord.Grade != nil {
		t.Errorf("grade = %v, want nil after demotion", acc.Discord.Grade)
	}
}

func TestSyncNilFieldsUntouched(t *testing.T) {
	codec := token.NewCodec("secret")
	g := "Juge Fédéral"
	nick := "Juge Marc"
	store := newMemStore(&account.Account{
		ID: "acc-1",
		Discord: &account.DiscordLink{
			ID:       "555",
			Username: "Marc",
			Nickname: &nick,
			Grade:    &g,
			Roles:    []string{"100"},
		},
	})
	svc := newTestService(store, &fakeIdentity{}, codec)

	newName := "Marc L."
	acc, err := svc.Sync(context.Background(), "bot-secret", "555", SyncAttributes{
		DisplayName: &newName,
	})
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if acc.Discord.Username != "Marc L." {
		t.Errorf("username = %q", acc.Discord.Username)
	}
	if acc.Discord.Nickname == nil || *acc.Discord.Nickname != "Juge Marc" {
		t.Errorf("nickname changed: %v", acc.Discord.Nickname)
	}
	// Roles absent from the push leave the cached grade alone.
	if acc.Discord.Grade == nil || *acc.Discord.Grade != "Juge Fédéral" {
		t.Errorf("grade changed: %v", acc.Discord.Grade)
	}
}

func TestSyncIdempotent(t *testing.T) {
	codec := token.NewCodec("secret")
	store := newMemStore(&account.Account{
		ID:      "acc-1",
		Discord: &account.DiscordLink{ID: "555", Username: "Marc"},
	})
	svc := newTestService(store, &fakeIdentity{}, codec)

	attrs := SyncAttributes{RoleIDs: []string{"100"}}
	first, err := svc.Sync(context.Background(), "bot-secret", "555", attrs)
	if err != nil {
		t.Fatalf("first Sync: %v", err)
	}
	second, err := svc.Sync(context.Background(), "bot-secret", "555", attrs)
	if err != nil {
		t.Fatalf("second Sync: %v", err)
	}
	if !reflect.DeepEqual(first.Discord, second.Discord) {
		t.Errorf("sync not idempotent:\nfirst:  %+v\nsecond: %+v", first.Discord, second.Discord)
	}
}

func TestSyncRejectsWrongSecret(t *testing.T) {
	codec := token.NewCodec("secret")
	store := newMemStore(&account.Account{
		ID:      "acc-1",
		Discord: &account.DiscordLink{ID: "555"},
	})
	svc := newTestService(store, &fakeIdentity{}, codec)

	if _, err := svc.Sync(context.Background(), "wrong", "555", SyncAttributes{}); !errors.Is(err, ErrForbidden) {
		t.Errorf("err = %v, want ErrForbidden", err)
	}
	if store.updates != 0 {
		t.Errorf("updates = %d, want 0", store.updates)
	}
}

func TestSyncRejectsWhenSecretUnset(t *testing.T) {
	codec := token.NewCodec("secret")
	svc := NewService(ServiceConfig{
		Codec:           codec,
		Client:          &fakeIdentity{},
		Accounts:        newMemStore(),
		FrontendBaseURL: "https://front.test",
	})

	// No configured secret means the endpoint is closed, not open.
	if _, err := svc.Sync(context.Background(), "", "555", SyncAttributes{}); !errors.Is(err, ErrForbidden) {
		t.Errorf("err = %v, want ErrForbidden", err)
	}
}

func TestSyncUnknownDiscordID(t *testing.T) {
	codec := token.NewCodec("secret")
	svc := newTestService(newMemStore(), &fakeIdentity{}, codec)

	if _, err := svc.Sync(context.Background(), "bot-secret", "unknown", SyncAttributes{}); !errors.Is(err, account.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
