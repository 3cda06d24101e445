package auth

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// TokenCodec issues and verifies signed, expiring tokens
type TokenCodec struct {
	secret *SigningSecret
	issuer string
	now    func() time.Time
	logger Logger
}

// NewTokenCodec creates a codec bound to the given secret
func NewTokenCodec(secret *SigningSecret, issuer string) *TokenCodec {
	return &TokenCodec{
		secret: secret,
		issuer: issuer,
		now:    time.Now,
		logger: NewDefaultLogger(),
	}
}

// WithClock overrides the time source
func (tc *TokenCodec) WithClock(now func() time.Time) *TokenCodec {
	if now != nil {
		tc.now = now
	}
	return tc
}

func (tc *TokenCodec) WithLogger(logger Logger) *TokenCodec {
	tc.logger = normalizeLogger(logger)
	return tc
}

// Issue signs a token for subject carrying claims. Issued-at is now and
// expiry is now + ttl.
func (tc *TokenCodec) Issue(subject string, claims Claims, kind TokenKind, ttl time.Duration) (string, error) {
	if subject == "" {
		return "", errors.New("token subject is required", errors.CategoryBadInput)
	}

	if !kind.IsValid() {
		return "", errors.New("unknown token kind", errors.CategoryBadInput).
			WithMetadata(map[string]any{"kind": string(kind)})
	}

	if ttl <= 0 {
		return "", errors.New("token ttl must be positive", errors.CategoryBadInput).
			WithMetadata(map[string]any{"ttl": ttl.String()})
	}

	now := tc.now()
	tokenClaims := &TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    tc.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		TokenType:   kind,
		FullName:    claims.FullName(),
		Authorities: claims.Authorities(),
	}

	return tc.secret.Sign(tokenClaims)
}

// Verify checks signature then expiry then extracts the claims. Failures are
// ErrTokenSignatureInvalid, ErrTokenExpired or ErrTokenMalformed.
func (tc *TokenCodec) Verify(token string) (*VerifiedToken, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrTokenMalformed
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{tc.secret.Algorithm()}),
		jwt.WithTimeFunc(tc.now),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	}
	if tc.issuer != "" {
		opts = append(opts, jwt.WithIssuer(tc.issuer))
	}

	claims := &TokenClaims{}
	parsed, err := jwt.NewParser(opts...).ParseWithClaims(token, claims, tc.secret.Keyfunc)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrTokenSignatureInvalid
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		default:
			tc.logger.Debug("token verification failed", "error", err)
			return nil, ErrTokenMalformed
		}
	}

	if !parsed.Valid || claims.Subject == "" || !claims.TokenType.IsValid() {
		return nil, ErrTokenMalformed
	}

	return &VerifiedToken{
		ID:        claims.ID,
		Subject:   claims.Subject,
		Kind:      claims.TokenType,
		Claims:    NewClaims(claims.FullName, claims.Authorities),
		IssuedAt:  numericTime(claims.IssuedAt),
		ExpiresAt: numericTime(claims.ExpiresAt),
	}, nil
}

// IsRefresh reads the token_type claim without validating the token. Call
// Verify first on security sensitive paths.
func (tc *TokenCodec) IsRefresh(token string) bool {
	claims, err := tc.unverified(token)
	if err != nil {
		return false
	}
	return claims.TokenType == TokenKindRefresh
}

// IsValidFor reports whether the token verifies and belongs to subject
func (tc *TokenCodec) IsValidFor(token, subject string) bool {
	verified, err := tc.Verify(token)
	if err != nil {
		return false
	}
	return verified.Subject == subject
}

// Subject decodes the subject claim without trusting the token
func (tc *TokenCodec) Subject(token string) (string, error) {
	claims, err := tc.unverified(token)
	if err != nil {
		return "", err
	}
	if claims.Subject == "" {
		return "", ErrTokenMalformed
	}
	return claims.Subject, nil
}

func (tc *TokenCodec) unverified(token string) (*TokenClaims, error) {
	claims := &TokenClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(strings.TrimSpace(token), claims); err != nil {
		return nil, ErrTokenMalformed
	}
	return claims, nil
}
