package auth

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-errors"

	"github.com/goliatone/go-shop-auth/middleware/jwtware"
)

// RequestAuthenticator turns a bearer access token into an
// AuthenticatedIdentity for protected routes.
type RequestAuthenticator struct {
	codec  *TokenCodec
	store  CredentialStore
	logger Logger
	now    func() time.Time
}

// NewRequestAuthenticator creates the per request gate
func NewRequestAuthenticator(codec *TokenCodec, store CredentialStore) *RequestAuthenticator {
	return &RequestAuthenticator{
		codec:  codec,
		store:  store,
		logger: NewDefaultLogger(),
		now:    time.Now,
	}
}

func (r *RequestAuthenticator) WithLogger(logger Logger) *RequestAuthenticator {
	r.logger = normalizeLogger(logger)
	return r
}

// Subject decodes the token subject without trusting it
func (r *RequestAuthenticator) Subject(token string) (string, error) {
	subject, err := r.codec.Subject(token)
	if err != nil {
		return "", ErrInvalidToken
	}
	return subject, nil
}

// Authenticate loads the account named by subject, verifies the token
// against it and rejects refresh tokens. Authorities come from the stored
// account, not from the token.
func (r *RequestAuthenticator) Authenticate(ctx context.Context, subject, token string) (*AuthenticatedIdentity, error) {
	credential, err := r.store.FindByIdentifier(ctx, subject)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, ErrInvalidToken
		}
		r.logger.Error("request authenticator failed to load user", "error", err)
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to load user")
	}

	verified, err := r.codec.Verify(token)
	if err != nil {
		if IsError(err, ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	if verified.Subject != credential.Identifier {
		return nil, ErrInvalidToken
	}

	if verified.IsRefresh() {
		return nil, ErrRefreshTokenNotAllowed
	}

	if credential.Locked {
		return nil, ErrAccountLocked
	}
	if !credential.Enabled {
		return nil, ErrAccountDisabled
	}

	return NewAuthenticatedIdentity(credential), nil
}

// Middleware returns the fiber handler enforcing authentication on every
// route except the configured public ones. CORS preflight requests carry no
// credentials and pass through untouched.
func (r *RequestAuthenticator) Middleware(opts Config) fiber.Handler {
	return jwtware.New(jwtware.Config{
		Filter:        isPreflight,
		PublicRoutes:  opts.GetPublicRoutes(),
		ContextKey:    opts.GetContextKey(),
		TokenLookup:   opts.GetTokenLookup(),
		AuthScheme:    opts.GetAuthScheme(),
		Authenticator: gateAuthenticator{r},
		ErrorHandler:  r.unauthorized,
		ContextEnricher: func(ctx context.Context, identity jwtware.Identity) context.Context {
			if id, ok := identity.(*AuthenticatedIdentity); ok {
				return WithIdentity(ctx, id)
			}
			return ctx
		},
	})
}

func isPreflight(c *fiber.Ctx) bool {
	return c.Method() == fiber.MethodOptions && c.Get(fiber.HeaderAccessControlRequestMethod) != ""
}

// unauthorized renders every gate failure as a 401 with the uniform body
func (r *RequestAuthenticator) unauthorized(c *fiber.Ctx, err error) error {
	if errors.Is(err, jwtware.ErrJWTMissingOrMalformed) {
		err = ErrMissingToken
	}

	var rich *errors.Error
	if !errors.As(err, &rich) || rich.Category == errors.CategoryInternal {
		err = ErrInvalidToken
	}

	res := NewErrorResponse(err, r.now())
	if res.Code == ErrorStatus(err) {
		res.Code = fiber.StatusUnauthorized
	}
	return c.Status(fiber.StatusUnauthorized).JSON(res)
}

type gateAuthenticator struct {
	r *RequestAuthenticator
}

func (g gateAuthenticator) Subject(token string) (string, error) {
	return g.r.Subject(token)
}

func (g gateAuthenticator) Authenticate(ctx context.Context, subject, token string) (jwtware.Identity, error) {
	identity, err := g.r.Authenticate(ctx, subject, token)
	if err != nil {
		return nil, err
	}
	return identity, nil
}
