package auth

import (
	"context"
	"crypto/rand"
	"math/big"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const (
	// DefaultActivationCodeLength is the number of digits in a code
	DefaultActivationCodeLength = 6
	// DefaultActivationCodeTTL is how long an issued code stays valid
	DefaultActivationCodeTTL = 5 * time.Minute
)

// issue retries when a generated value collides with a reserved code
const maxCodeGenerationAttempts = 5

var digitAlphabetSize = big.NewInt(10)

// GenerateCode draws length digits from crypto/rand, uniformly over 0-9
func GenerateCode(length int) (string, error) {
	if length <= 0 {
		return "", goerrors.New("activation code length must be positive", goerrors.CategoryBadInput).
			WithMetadata(map[string]any{"length": length})
	}

	buf := make([]byte, length)
	for i := range buf {
		n, err := rand.Int(rand.Reader, digitAlphabetSize)
		if err != nil {
			return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read random source")
		}
		buf[i] = byte('0' + n.Int64())
	}
	return string(buf), nil
}

// ActivationReissue describes the remediation run when an expired code is
// submitted. Delivery failure is reported here and never rolls back the new code.
type ActivationReissue struct {
	UserID      uuid.UUID
	Identifier  string
	Code        *ActivationCode
	DeliveryErr error
}

// Delivered reports whether the replacement code reached the notifier
func (r *ActivationReissue) Delivered() bool {
	return r != nil && r.Code != nil && r.DeliveryErr == nil
}

// ActivationService generates, persists, delivers and consumes activation codes
type ActivationService struct {
	repo     RepositoryManager
	notifier Notifier
	ttl      time.Duration
	length   int
	now      func() time.Time
	logger   Logger
	activity ActivitySink
}

// NewActivationService creates the service. Zero ttl or length fall back to
// the defaults.
func NewActivationService(repo RepositoryManager, notifier Notifier, ttl time.Duration, length int) *ActivationService {
	if ttl <= 0 {
		ttl = DefaultActivationCodeTTL
	}
	if length <= 0 {
		length = DefaultActivationCodeLength
	}
	return &ActivationService{
		repo:     repo,
		notifier: notifier,
		ttl:      ttl,
		length:   length,
		now:      time.Now,
		logger:   NewDefaultLogger(),
		activity: noopActivitySink{},
	}
}

func (s *ActivationService) WithClock(now func() time.Time) *ActivationService {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *ActivationService) WithLogger(logger Logger) *ActivationService {
	s.logger = normalizeLogger(logger)
	return s
}

func (s *ActivationService) WithActivitySink(sink ActivitySink) *ActivationService {
	s.activity = normalizeActivitySink(sink)
	return s
}

// TTL returns the validity window of issued codes
func (s *ActivationService) TTL() time.Duration {
	return s.ttl
}

// IssueTx persists a fresh code for owner inside tx
func (s *ActivationService) IssueTx(ctx context.Context, tx bun.IDB, owner *Credential) (*ActivationCode, error) {
	if owner == nil {
		return nil, goerrors.New("activation code owner is required", goerrors.CategoryBadInput)
	}

	now := s.now().UTC()
	var value string
	for attempt := 0; ; attempt++ {
		code, err := GenerateCode(s.length)
		if err != nil {
			return nil, err
		}

		reserved, err := s.isReserved(ctx, tx, code, now)
		if err != nil {
			return nil, err
		}
		if !reserved {
			value = code
			break
		}
		if attempt+1 >= maxCodeGenerationAttempts {
			return nil, goerrors.New("could not generate a unique activation code", goerrors.CategoryInternal)
		}
	}

	record := &ActivationCode{
		ID:        uuid.New(),
		Code:      value,
		UserID:    owner.ID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}

	record, err := s.repo.ActivationCodes().CreateTx(ctx, tx, record)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to persist activation code")
	}
	return record, nil
}

// Issue persists a fresh code for owner in its own transaction
func (s *ActivationService) Issue(ctx context.Context, owner *Credential) (*ActivationCode, error) {
	var record *ActivationCode
	err := s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		record, err = s.IssueTx(ctx, tx, owner)
		return err
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// Dispatch hands the code to the notifier. Failures are returned as
// ErrActivationDelivery so callers can tell them apart from persistence errors.
func (s *ActivationService) Dispatch(ctx context.Context, owner *Credential, code *ActivationCode) error {
	if s.notifier == nil {
		return ErrActivationDelivery.Clone().WithMetadata(map[string]any{"reason": "no notifier configured"})
	}

	err := s.notifier.SendActivationMessage(ctx, owner.Identifier, owner.FullName(), code.Code, PurposeActivateAccount)
	if err == nil {
		return nil
	}

	s.logger.Error("activation code delivery failed", "user_id", owner.ID.String(), "error", err)
	recordActivity(ctx, s.activity, s.logger, ActivityEvent{
		EventType:  ActivityEventActivationDelivery,
		UserID:     owner.ID.String(),
		Identifier: owner.Identifier,
		OccurredAt: s.now().UTC(),
	})

	delivery := ErrActivationDelivery.Clone()
	delivery.Source = err
	return delivery
}

// ConsumeFunc runs inside the consuming transaction once the code was marked
// validated. Returning an error rolls back the consumption.
type ConsumeFunc func(ctx context.Context, tx bun.IDB, code *ActivationCode) error

// ConsumeResult is the outcome of Consume. Reissue is set only when the
// submitted code had expired.
type ConsumeResult struct {
	Code    *ActivationCode
	Reissue *ActivationReissue
}

// Consume validates value and marks it used, then runs apply in the same
// transaction. Unknown or used codes fail with a not found error. An expired
// code fails with ErrActivationCodeExpired after a replacement code was
// issued and dispatched to the owner.
func (s *ActivationService) Consume(ctx context.Context, value string, apply ConsumeFunc) (*ConsumeResult, error) {
	var expired *ActivationCode
	var consumed *ActivationCode

	err := s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, err := s.repo.ActivationCodes().FindByCodeTx(ctx, tx, value)
		if err != nil {
			if goerrors.IsNotFound(err) {
				return ErrActivationCodeNotFound
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load activation code")
		}

		if record.Consumed() {
			return ErrActivationCodeConsumed
		}

		now := s.now().UTC()
		if record.ExpiredAt(now) {
			expired = record
			return ErrActivationCodeExpired
		}

		record.ValidatedAt = &now
		if record, err = s.repo.ActivationCodes().UpdateTx(ctx, tx, record); err != nil {
			// lost the race against a concurrent consumption
			if goerrors.IsNotFound(err) {
				return ErrActivationCodeConsumed
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to mark activation code as validated")
		}

		if apply != nil {
			if err := apply(ctx, tx, record); err != nil {
				return err
			}
		}

		consumed = record
		return nil
	})

	if expired != nil {
		reissue, rerr := s.reissue(ctx, expired.UserID)
		return &ConsumeResult{Code: expired, Reissue: reissue}, rerr
	}

	if err != nil {
		return nil, err
	}

	return &ConsumeResult{Code: consumed}, nil
}

func (s *ActivationService) reissue(ctx context.Context, userID uuid.UUID) (*ActivationReissue, error) {
	reissue := &ActivationReissue{UserID: userID}

	owner, err := s.repo.Credentials().FindByID(ctx, userID)
	if err != nil {
		return reissue, goerrors.Wrap(err, goerrors.CategoryInternal, "activation code expired and its owner could not be loaded")
	}
	reissue.Identifier = owner.Identifier

	code, err := s.Issue(ctx, owner)
	if err != nil {
		return reissue, goerrors.Wrap(err, goerrors.CategoryInternal, "activation code expired and a new one could not be issued")
	}
	reissue.Code = code

	reissue.DeliveryErr = s.Dispatch(ctx, owner, code)

	recordActivity(ctx, s.activity, s.logger, ActivityEvent{
		EventType:  ActivityEventActivationReissued,
		UserID:     owner.ID.String(),
		Identifier: owner.Identifier,
		Metadata:   map[string]any{"delivered": reissue.DeliveryErr == nil},
		OccurredAt: s.now().UTC(),
	})

	expiredErr := ErrActivationCodeExpired.Clone().WithMetadata(map[string]any{
		"new_code_issued": true,
		"new_code_sent":   reissue.DeliveryErr == nil,
	})
	if reissue.DeliveryErr == nil {
		expiredErr.Message = "Activation token has expired. A new token has been sent to the same email address"
	} else {
		expiredErr.Message = "Activation token has expired. A new token was issued but could not be delivered"
	}

	return reissue, expiredErr
}

// isReserved reports whether value may not be handed out again. A live code
// is reserved. An expired but unconsumed code stays reserved while its owner
// is still awaiting activation, so submitting it keeps resolving to that
// owner and triggers a replacement instead of activating someone else.
func (s *ActivationService) isReserved(ctx context.Context, tx bun.IDB, value string, now time.Time) (bool, error) {
	existing, err := s.repo.ActivationCodes().FindByCodeTx(ctx, tx, value)
	if err != nil {
		if goerrors.IsNotFound(err) {
			return false, nil
		}
		return false, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check activation code uniqueness")
	}

	if existing.Consumed() {
		return false, nil
	}
	if !existing.ExpiredAt(now) {
		return true, nil
	}

	owner, err := s.repo.Credentials().FindByIDTx(ctx, tx, existing.UserID)
	if err != nil {
		if goerrors.IsNotFound(err) {
			return false, nil
		}
		return false, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load activation code owner")
	}
	return CurrentAccountState(owner) != AccountStateActive, nil
}
