package auth_test

import (
	"context"
	"database/sql"
	"encoding/base64"
	"strings"
	"sync"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"golang.org/x/crypto/bcrypt"

	auth "github.com/goliatone/go-shop-auth"
)

const testIssuer = "go-shop-auth-test"

var testKey = base64.StdEncoding.EncodeToString([]byte("0123456789abcdef0123456789abcdef"))

func notFound(entity string) error {
	return goerrors.New(entity+" not found", goerrors.CategoryNotFound).WithCode(goerrors.CodeNotFound)
}

// memoryStore is an in-memory RepositoryManager. Transactions snapshot the
// tables and restore them when the callback fails.
type memoryStore struct {
	mu       sync.Mutex
	users    map[uuid.UUID]auth.Credential
	roles    map[string]auth.Role
	codes    []auth.ActivationCode
	failCode error
}

func newMemoryStore() *memoryStore {
	m := &memoryStore{
		users: map[uuid.UUID]auth.Credential{},
		roles: map[string]auth.Role{},
	}
	for _, name := range auth.GetAllAuthorities() {
		m.roles[name] = auth.Role{ID: uuid.New(), Name: name}
	}
	return m
}

func (m *memoryStore) Validate() error { return nil }
func (m *memoryStore) MustValidate()   {}

func (m *memoryStore) RunInTx(ctx context.Context, _ *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	users := make(map[uuid.UUID]auth.Credential, len(m.users))
	for k, v := range m.users {
		users[k] = v
	}
	codes := append([]auth.ActivationCode(nil), m.codes...)
	m.mu.Unlock()

	if err := f(ctx, bun.Tx{}); err != nil {
		m.mu.Lock()
		m.users = users
		m.codes = codes
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *memoryStore) Credentials() auth.CredentialStore         { return (*memoryCredentials)(m) }
func (m *memoryStore) Roles() auth.RoleStore                     { return (*memoryRoles)(m) }
func (m *memoryStore) ActivationCodes() auth.ActivationCodeStore { return (*memoryCodes)(m) }

func (m *memoryStore) credential(t *testing.T, identifier string) auth.Credential {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.users {
		if c.Identifier == identifier {
			return c
		}
	}
	t.Fatalf("credential %s not found", identifier)
	return auth.Credential{}
}

func (m *memoryStore) codesFor(userID uuid.UUID) []auth.ActivationCode {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []auth.ActivationCode
	for _, c := range m.codes {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out
}

// seed stores a credential with the given password and flags
func (m *memoryStore) seed(t *testing.T, identifier, password string, enabled bool, roles ...string) auth.Credential {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)

	if len(roles) == 0 {
		roles = []string{auth.AuthorityUser}
	}

	c := auth.Credential{
		ID:           uuid.New(),
		Identifier:   auth.NormalizeIdentifier(identifier),
		FirstName:    "Ada",
		LastName:     "Lovelace",
		PasswordHash: string(hash),
		Enabled:      enabled,
	}
	m.mu.Lock()
	for _, name := range roles {
		role := m.roles[name]
		c.Roles = append(c.Roles, &role)
	}
	m.users[c.ID] = c
	m.mu.Unlock()
	return c
}

func (m *memoryStore) update(c auth.Credential) {
	m.mu.Lock()
	m.users[c.ID] = c
	m.mu.Unlock()
}

type memoryCredentials memoryStore

func (r *memoryCredentials) FindByIdentifier(ctx context.Context, identifier string) (*auth.Credential, error) {
	return r.FindByIdentifierTx(ctx, nil, identifier)
}

func (r *memoryCredentials) FindByIdentifierTx(_ context.Context, _ bun.IDB, identifier string) (*auth.Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	identifier = auth.NormalizeIdentifier(identifier)
	for _, c := range r.users {
		if c.Identifier == identifier {
			out := c
			return &out, nil
		}
	}
	return nil, notFound("user")
}

func (r *memoryCredentials) FindByID(ctx context.Context, id uuid.UUID) (*auth.Credential, error) {
	return r.FindByIDTx(ctx, nil, id)
}

func (r *memoryCredentials) FindByIDTx(_ context.Context, _ bun.IDB, id uuid.UUID) (*auth.Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.users[id]
	if !ok {
		return nil, notFound("user")
	}
	return &c, nil
}

func (r *memoryCredentials) CreateTx(_ context.Context, _ bun.IDB, record *auth.Credential) (*auth.Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	for _, c := range r.users {
		if c.Identifier == record.Identifier {
			return nil, goerrors.New("user already exists", goerrors.CategoryConflict)
		}
	}
	r.users[record.ID] = *record
	return record, nil
}

func (r *memoryCredentials) UpdateTx(_ context.Context, _ bun.IDB, record *auth.Credential) (*auth.Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[record.ID]; !ok {
		return nil, notFound("user")
	}
	r.users[record.ID] = *record
	return record, nil
}

func (r *memoryCredentials) AddRoleTx(_ context.Context, _ bun.IDB, credentialID, roleID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.users[credentialID]
	if !ok {
		return notFound("user")
	}

	var granted *auth.Role
	for _, role := range r.roles {
		if role.ID == roleID {
			role := role
			granted = &role
		}
	}
	if granted == nil {
		return notFound("role")
	}

	roles := make([]*auth.Role, 0, len(c.Roles)+1)
	for _, role := range c.Roles {
		if role.ID == roleID {
			return goerrors.New("user role already exists", goerrors.CategoryConflict)
		}
		roles = append(roles, role)
	}
	c.Roles = append(roles, granted)
	r.users[credentialID] = c
	return nil
}

type memoryRoles memoryStore

func (r *memoryRoles) FindByNameTx(_ context.Context, _ bun.IDB, name string) (*auth.Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	role, ok := r.roles[strings.ToUpper(name)]
	if !ok {
		return nil, notFound("role")
	}
	return &role, nil
}

type memoryCodes memoryStore

func (r *memoryCodes) CreateTx(_ context.Context, _ bun.IDB, record *auth.ActivationCode) (*auth.ActivationCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failCode != nil {
		return nil, r.failCode
	}
	r.codes = append(r.codes, *record)
	return record, nil
}

func (r *memoryCodes) UpdateTx(_ context.Context, _ bun.IDB, record *auth.ActivationCode) (*auth.ActivationCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.codes {
		if r.codes[i].ID == record.ID && !r.codes[i].Consumed() {
			r.codes[i] = *record
			return record, nil
		}
	}
	return nil, notFound("activation code")
}

func (r *memoryCodes) FindByCodeTx(_ context.Context, _ bun.IDB, code string) (*auth.ActivationCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *auth.ActivationCode
	for i := range r.codes {
		if r.codes[i].Code != code {
			continue
		}
		if latest == nil || r.codes[i].CreatedAt.After(latest.CreatedAt) {
			c := r.codes[i]
			latest = &c
		}
	}
	if latest == nil {
		return nil, notFound("activation code")
	}
	return latest, nil
}

// sentMessage is one call captured by recordingNotifier
type sentMessage struct {
	Identifier string
	Name       string
	Code       string
	Purpose    auth.NotificationPurpose
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (n *recordingNotifier) SendActivationMessage(_ context.Context, identifier, displayName, code string, purpose auth.NotificationPurpose) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, sentMessage{Identifier: identifier, Name: displayName, Code: code, Purpose: purpose})
	return nil
}

func (n *recordingNotifier) last(t *testing.T) sentMessage {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	require.NotEmpty(t, n.sent, "no activation message sent")
	return n.sent[len(n.sent)-1]
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

// recordingSink keeps every activity event
type recordingSink struct {
	mu     sync.Mutex
	events []auth.ActivityEvent
}

func (s *recordingSink) Record(_ context.Context, event auth.ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) types() []auth.ActivityEventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]auth.ActivityEventType, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.EventType)
	}
	return out
}

// testConfig implements auth.Config
type testConfig struct {
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func (c testConfig) GetSigningKey() string { return testKey }
func (c testConfig) GetIssuer() string     { return testIssuer }
func (c testConfig) GetAccessTokenTTL() time.Duration {
	if c.accessTTL == 0 {
		return 15 * time.Minute
	}
	return c.accessTTL
}
func (c testConfig) GetRefreshTokenTTL() time.Duration {
	if c.refreshTTL == 0 {
		return 7 * 24 * time.Hour
	}
	return c.refreshTTL
}
func (c testConfig) GetActivationCodeTTL() time.Duration { return auth.DefaultActivationCodeTTL }
func (c testConfig) GetActivationCodeLength() int        { return auth.DefaultActivationCodeLength }
func (c testConfig) GetPublicRoutes() []string           { return auth.DefaultPublicRoutes }
func (c testConfig) GetContextKey() string               { return auth.DefaultContextKey }
func (c testConfig) GetTokenLookup() string              { return "header:Authorization" }
func (c testConfig) GetAuthScheme() string               { return "Bearer" }

// clock is a settable time source
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type quietLogger struct{}

func (quietLogger) Debug(string, ...any) {}
func (quietLogger) Info(string, ...any)  {}
func (quietLogger) Warn(string, ...any)  {}
func (quietLogger) Error(string, ...any) {}

// harness bundles a fully wired service over the in-memory store
type harness struct {
	store      *memoryStore
	notifier   *recordingNotifier
	sink       *recordingSink
	clock      *clock
	codec      *auth.TokenCodec
	activation *auth.ActivationService
	auther     *auth.Auther
	gate       *auth.RequestAuthenticator
	cfg        testConfig
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		store:    newMemoryStore(),
		notifier: &recordingNotifier{},
		sink:     &recordingSink{},
		clock:    newClock(),
		cfg:      testConfig{},
	}

	secret, err := auth.NewSigningSecret(testKey)
	require.NoError(t, err)

	h.codec = auth.NewTokenCodec(secret, testIssuer).
		WithClock(h.clock.Now).
		WithLogger(quietLogger{})

	h.activation = auth.NewActivationService(h.store, h.notifier, h.cfg.GetActivationCodeTTL(), h.cfg.GetActivationCodeLength()).
		WithClock(h.clock.Now).
		WithLogger(quietLogger{}).
		WithActivitySink(h.sink)

	h.auther = auth.NewAuthenticator(h.store, h.codec, h.activation, h.cfg).
		WithLogger(quietLogger{}).
		WithPasswordHasher(auth.NewBcryptHasher(bcrypt.MinCost)).
		WithActivitySink(h.sink).
		WithClock(h.clock.Now)

	h.gate = auth.NewRequestAuthenticator(h.codec, h.store.Credentials()).
		WithLogger(quietLogger{})

	return h
}
