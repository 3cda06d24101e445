package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// DefaultOperationTimeout bounds the transactional work of a single operation
const DefaultOperationTimeout = 10 * time.Second

const (
	MessageRegistered = "User registered successfully. Please check your email for activation link"
	MessageActivated  = "Account activated successfully"
	MessageResent     = "A new activation token has been sent to the same email address"
	MessagePassword   = "Password updated successfully"
	MessageVendor     = "User is now a vendor"
)

// SessionTokens is returned by a successful login
type SessionTokens struct {
	AccessToken  string          `json:"accessToken"`
	RefreshToken string          `json:"refreshToken"`
	Identity     IdentitySummary `json:"identity"`
}

// RegistrationResult confirms a registration. ActivationSent is false when
// the account was stored but the code could not be delivered.
type RegistrationResult struct {
	UserID         uuid.UUID `json:"id"`
	Identifier     string    `json:"email"`
	ActivationSent bool      `json:"activationSent"`
	Message        string    `json:"message"`
}

// ActivationResult describes the outcome of an activation or resend request
type ActivationResult struct {
	UserID      uuid.UUID `json:"id,omitempty"`
	Activated   bool      `json:"activated"`
	NewCodeSent bool      `json:"newCodeSent"`
	Message     string    `json:"message"`
}

// RefreshStatus classifies a refresh attempt
type RefreshStatus int

const (
	RefreshSucceeded RefreshStatus = iota
	RefreshExpired
	RefreshInvalidToken
	RefreshFailed
)

func (s RefreshStatus) String() string {
	switch s {
	case RefreshSucceeded:
		return "succeeded"
	case RefreshExpired:
		return "expired"
	case RefreshInvalidToken:
		return "invalid_token"
	default:
		return "failed"
	}
}

// RefreshResult is the explicit outcome of Refresh. Err is nil only when
// Status is RefreshSucceeded.
type RefreshResult struct {
	Status       RefreshStatus
	AccessToken  string
	RefreshToken string
	Identity     IdentitySummary
	Err          error
}

// OK reports whether a new access token was issued
func (r RefreshResult) OK() bool {
	return r.Status == RefreshSucceeded
}

func refreshFailure(status RefreshStatus, err error) RefreshResult {
	return RefreshResult{Status: status, Err: err}
}

// Auther orchestrates registration, activation, login and refresh
type Auther struct {
	repo       RepositoryManager
	codec      *TokenCodec
	activation *ActivationService
	verifier   *CredentialVerifier
	hasher     PasswordHasher
	accessTTL  time.Duration
	refreshTTL time.Duration
	timeout    time.Duration
	logger     Logger
	activity   ActivitySink
	now        func() time.Time
}

// NewAuthenticator returns a new Auther
func NewAuthenticator(repo RepositoryManager, codec *TokenCodec, activation *ActivationService, opts Config) *Auther {
	hasher := NewBcryptHasher(0)
	return &Auther{
		repo:       repo,
		codec:      codec,
		activation: activation,
		verifier:   NewCredentialVerifier(repo.Credentials(), hasher),
		hasher:     hasher,
		accessTTL:  opts.GetAccessTokenTTL(),
		refreshTTL: opts.GetRefreshTokenTTL(),
		timeout:    DefaultOperationTimeout,
		logger:     NewDefaultLogger(),
		activity:   noopActivitySink{},
		now:        time.Now,
	}
}

func (s *Auther) WithLogger(logger Logger) *Auther {
	s.logger = normalizeLogger(logger)
	s.verifier.WithLogger(s.logger)
	return s
}

// WithPasswordHasher replaces the bcrypt hasher
func (s *Auther) WithPasswordHasher(h PasswordHasher) *Auther {
	if h != nil {
		s.hasher = h
		s.verifier.WithPasswordHasher(h)
	}
	return s
}

// WithLoginThrottle enables lockout after repeated failed logins
func (s *Auther) WithLoginThrottle(t LoginThrottle) *Auther {
	s.verifier.WithLoginThrottle(t)
	return s
}

// WithActivitySink configures an ActivitySink for emitting auth events.
func (s *Auther) WithActivitySink(sink ActivitySink) *Auther {
	s.activity = normalizeActivitySink(sink)
	return s
}

func (s *Auther) WithClock(now func() time.Time) *Auther {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *Auther) WithTimeout(d time.Duration) *Auther {
	if d > 0 {
		s.timeout = d
	}
	return s
}

// Register creates a disabled credential and sends it an activation code.
// Credential and code are stored in one transaction; delivery happens after
// commit and its failure is returned as ErrActivationDelivery together with
// a non nil result.
func (s *Auther) Register(ctx context.Context, msg RegisterUserMessage) (*RegistrationResult, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during user registration")
	default:
	}

	if err := msg.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	hash, err := s.hasher.Hash(msg.Password)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid password provided")
	}

	identifier := NormalizeIdentifier(msg.Email)
	credential := &Credential{
		ID:           uuid.New(),
		Identifier:   identifier,
		FirstName:    msg.FirstName,
		LastName:     msg.LastName,
		DateOfBirth:  msg.DateOfBirth,
		PasswordHash: hash,
		Enabled:      false,
		Locked:       false,
	}

	var code *ActivationCode
	err = s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		existing, err := s.repo.Credentials().FindByIdentifierTx(ctx, tx, identifier)
		if err != nil && !goerrors.IsNotFound(err) {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check identifier availability")
		}
		if existing != nil {
			return ErrIdentifierTaken.Clone().WithMetadata(map[string]any{"email": identifier})
		}

		role, err := s.repo.Roles().FindByNameTx(ctx, tx, DefaultAuthority)
		if err != nil {
			if goerrors.IsNotFound(err) {
				return ErrRoleNotFound.Clone().WithMetadata(map[string]any{"role": DefaultAuthority})
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load default role")
		}
		credential.Roles = []*Role{role}

		if credential, err = s.repo.Credentials().CreateTx(ctx, tx, credential); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryConflict, "could not create user")
		}

		code, err = s.activation.IssueTx(ctx, tx, credential)
		return err
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return nil, richErr
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "user registration transaction failed")
	}

	deliveryErr := s.activation.Dispatch(ctx, credential, code)

	recordActivity(ctx, s.activity, s.logger, ActivityEvent{
		EventType:  ActivityEventRegistered,
		UserID:     credential.ID.String(),
		Identifier: credential.Identifier,
		Metadata:   map[string]any{"activation_sent": deliveryErr == nil},
		OccurredAt: s.now().UTC(),
	})

	result := &RegistrationResult{
		UserID:         credential.ID,
		Identifier:     credential.Identifier,
		ActivationSent: deliveryErr == nil,
		Message:        MessageRegistered,
	}

	if deliveryErr != nil {
		return result, deliveryErr
	}
	return result, nil
}

// Login verifies the credential and issues an access and a refresh token
// built from the same claims value.
func (s *Auther) Login(ctx context.Context, identifier, password string) (*SessionTokens, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during login")
	default:
	}

	credential, err := s.verifier.Verify(ctx, identifier, password)
	if err != nil {
		recordActivity(ctx, s.activity, s.logger, ActivityEvent{
			EventType:  ActivityEventLoginFailure,
			Identifier: NormalizeIdentifier(identifier),
			Metadata:   map[string]any{"error": err.Error()},
			OccurredAt: s.now().UTC(),
		})
		return nil, err
	}

	claims := ClaimsFromCredential(credential)

	access, err := s.codec.Issue(credential.Identifier, claims, TokenKindAccess, s.accessTTL)
	if err != nil {
		return nil, err
	}

	refresh, err := s.codec.Issue(credential.Identifier, claims, TokenKindRefresh, s.refreshTTL)
	if err != nil {
		return nil, err
	}

	recordActivity(ctx, s.activity, s.logger, ActivityEvent{
		EventType:  ActivityEventLoginSuccess,
		UserID:     credential.ID.String(),
		Identifier: credential.Identifier,
		OccurredAt: s.now().UTC(),
	})

	return &SessionTokens{
		AccessToken:  access,
		RefreshToken: refresh,
		Identity:     summarize(credential),
	}, nil
}

// Refresh mints a new access token from a refresh token. The refresh token
// itself is returned unchanged.
func (s *Auther) Refresh(ctx context.Context, refreshToken string) RefreshResult {
	select {
	case <-ctx.Done():
		return refreshFailure(RefreshFailed, goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during token refresh"))
	default:
	}

	if !s.codec.IsRefresh(refreshToken) {
		return refreshFailure(RefreshInvalidToken, ErrInvalidRefreshToken)
	}

	verified, err := s.codec.Verify(refreshToken)
	if err != nil {
		if IsError(err, ErrTokenExpired) {
			return refreshFailure(RefreshExpired, ErrRefreshTokenExpired)
		}
		return refreshFailure(RefreshInvalidToken, ErrInvalidRefreshToken)
	}

	if !verified.IsRefresh() {
		return refreshFailure(RefreshInvalidToken, ErrInvalidRefreshToken)
	}

	credential, err := s.repo.Credentials().FindByIdentifier(ctx, verified.Subject)
	if err != nil {
		if goerrors.IsNotFound(err) {
			return refreshFailure(RefreshInvalidToken, ErrInvalidRefreshToken)
		}
		return refreshFailure(RefreshFailed, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load user for token refresh"))
	}

	if credential.Locked {
		return refreshFailure(RefreshInvalidToken, ErrAccountLocked)
	}
	if !credential.Enabled {
		return refreshFailure(RefreshInvalidToken, ErrAccountDisabled)
	}

	access, err := s.codec.Issue(credential.Identifier, ClaimsFromCredential(credential), TokenKindAccess, s.accessTTL)
	if err != nil {
		return refreshFailure(RefreshFailed, err)
	}

	recordActivity(ctx, s.activity, s.logger, ActivityEvent{
		EventType:  ActivityEventTokenRefreshed,
		UserID:     credential.ID.String(),
		Identifier: credential.Identifier,
		OccurredAt: s.now().UTC(),
	})

	return RefreshResult{
		Status:       RefreshSucceeded,
		AccessToken:  access,
		RefreshToken: refreshToken,
		Identity:     summarize(credential),
	}
}

// Activate consumes code and enables its owner in the same transaction. An
// expired code triggers a replacement and the returned result says whether
// it was delivered.
func (s *Auther) Activate(ctx context.Context, code string) (*ActivationResult, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during account activation")
	default:
	}

	if code == "" {
		return nil, ErrActivationCodeNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var activated *Credential
	res, err := s.activation.Consume(ctx, code, func(ctx context.Context, tx bun.IDB, record *ActivationCode) error {
		credential, err := s.repo.Credentials().FindByIDTx(ctx, tx, record.UserID)
		if err != nil {
			if goerrors.IsNotFound(err) {
				return ErrCredentialNotFound
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load user for activation")
		}

		changed, err := TransitionAccount(credential, AccountStateActive)
		if err != nil {
			return err
		}
		if changed {
			if credential, err = s.repo.Credentials().UpdateTx(ctx, tx, credential); err != nil {
				return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to enable user")
			}
		}

		activated = credential
		return nil
	})

	if err != nil {
		if res != nil && res.Reissue != nil {
			var message string
			var rich *goerrors.Error
			if goerrors.As(err, &rich) {
				message = rich.Message
			}
			return &ActivationResult{
				UserID:      res.Reissue.UserID,
				Activated:   false,
				NewCodeSent: res.Reissue.Delivered(),
				Message:     message,
			}, err
		}
		return nil, err
	}

	recordActivity(ctx, s.activity, s.logger, ActivityEvent{
		EventType:  ActivityEventActivated,
		UserID:     activated.ID.String(),
		Identifier: activated.Identifier,
		OccurredAt: s.now().UTC(),
	})

	return &ActivationResult{
		UserID:    activated.ID,
		Activated: true,
		Message:   MessageActivated,
	}, nil
}

// ResendActivation issues a new code for an account that is not active yet
func (s *Auther) ResendActivation(ctx context.Context, identifier string) (*ActivationResult, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during activation resend")
	default:
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	credential, err := s.repo.Credentials().FindByIdentifier(ctx, NormalizeIdentifier(identifier))
	if err != nil {
		if goerrors.IsNotFound(err) {
			return nil, ErrCredentialNotFound
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load user for activation resend")
	}

	if CurrentAccountState(credential) == AccountStateActive {
		return nil, ErrAccountAlreadyActive
	}

	code, err := s.activation.Issue(ctx, credential)
	if err != nil {
		return nil, err
	}

	deliveryErr := s.activation.Dispatch(ctx, credential, code)

	recordActivity(ctx, s.activity, s.logger, ActivityEvent{
		EventType:  ActivityEventActivationResent,
		UserID:     credential.ID.String(),
		Identifier: credential.Identifier,
		Metadata:   map[string]any{"delivered": deliveryErr == nil},
		OccurredAt: s.now().UTC(),
	})

	result := &ActivationResult{
		UserID:      credential.ID,
		NewCodeSent: deliveryErr == nil,
		Message:     MessageResent,
	}
	if deliveryErr != nil {
		return result, deliveryErr
	}
	return result, nil
}

// ChangePassword lets the owner of a credential replace its password after
// proving the old one. Issued tokens stay valid until they expire.
func (s *Auther) ChangePassword(ctx context.Context, actor *AuthenticatedIdentity, msg ChangePasswordMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during password change")
	default:
	}

	if err := msg.Validate(); err != nil {
		return err
	}

	if actor == nil || actor.CredentialID != msg.CredentialID {
		return ErrOperationNotPermitted
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var changed *Credential
	err := s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		credential, err := s.repo.Credentials().FindByIDTx(ctx, tx, msg.CredentialID)
		if err != nil {
			if goerrors.IsNotFound(err) {
				return ErrCredentialNotFound
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load user for password change")
		}

		if !s.hasher.Verify(msg.OldPassword, credential.PasswordHash) {
			return ErrInvalidCredentials
		}

		hash, err := s.hasher.Hash(msg.NewPassword)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid password provided")
		}

		credential.PasswordHash = hash
		if changed, err = s.repo.Credentials().UpdateTx(ctx, tx, credential); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update password")
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("password updated", "user_id", changed.ID.String())
	recordActivity(ctx, s.activity, s.logger, ActivityEvent{
		EventType:  ActivityEventPasswordChanged,
		UserID:     changed.ID.String(),
		Identifier: changed.Identifier,
		OccurredAt: s.now().UTC(),
	})

	return nil
}

// GrantVendor gives the VENDOR authority to credentialID. Users may promote
// themselves; anyone else needs ADMIN.
func (s *Auther) GrantVendor(ctx context.Context, actor *AuthenticatedIdentity, credentialID uuid.UUID) error {
	return s.grantAuthority(ctx, actor, credentialID, AuthorityVendor)
}

func (s *Auther) grantAuthority(ctx context.Context, actor *AuthenticatedIdentity, credentialID uuid.UUID, authority string) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during authority grant")
	default:
	}

	if !IsKnownAuthority(authority) {
		return ErrUnknownAuthority.Clone().WithMetadata(map[string]any{"authority": authority})
	}

	if actor == nil || (actor.CredentialID != credentialID && !actor.HasAuthority(AuthorityAdmin)) {
		return ErrOperationNotPermitted
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var granted *Credential
	err := s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		credential, err := s.repo.Credentials().FindByIDTx(ctx, tx, credentialID)
		if err != nil {
			if goerrors.IsNotFound(err) {
				return ErrCredentialNotFound
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load user for authority grant")
		}

		if NewAuthenticatedIdentity(credential).HasAuthority(authority) {
			return ErrAuthorityGranted.Clone().WithMetadata(map[string]any{"authority": authority})
		}

		role, err := s.repo.Roles().FindByNameTx(ctx, tx, authority)
		if err != nil {
			if goerrors.IsNotFound(err) {
				return ErrRoleNotFound.Clone().WithMetadata(map[string]any{"role": authority})
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load role")
		}

		if err := s.repo.Credentials().AddRoleTx(ctx, tx, credential.ID, role.ID); err != nil {
			if goerrors.IsCategory(err, goerrors.CategoryConflict) {
				return ErrAuthorityGranted.Clone().WithMetadata(map[string]any{"authority": authority})
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to grant authority")
		}

		granted = credential
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("authority granted", "user_id", granted.ID.String(), "authority", authority)
	recordActivity(ctx, s.activity, s.logger, ActivityEvent{
		EventType:  ActivityEventAuthorityGranted,
		UserID:     granted.ID.String(),
		Identifier: granted.Identifier,
		Metadata: map[string]any{
			"authority":  authority,
			"granted_by": actor.CredentialID.String(),
		},
		OccurredAt: s.now().UTC(),
	})
	return nil
}
