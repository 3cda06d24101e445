package auth

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// HTTPControllerRoutes holds the paths served by the controller
type HTTPControllerRoutes struct {
	Register         string
	Authenticate     string
	Activate         string
	Refresh          string
	ResendActivation string
	Me               string
	ChangePassword   string
	GrantVendor      string
}

// DefaultRoutes returns the default route table
func DefaultRoutes() *HTTPControllerRoutes {
	return &HTTPControllerRoutes{
		Register:         "/api/v1/auth/register",
		Authenticate:     "/api/v1/auth/authenticate",
		Activate:         "/api/v1/auth/activate-account",
		Refresh:          "/api/v1/auth/refresh-token",
		ResendActivation: "/api/v1/auth/resend-activation",
		Me:               "/api/v1/users/me",
		ChangePassword:   "/api/v1/users/:id/password",
		GrantVendor:      "/api/v1/users/:id/vendor",
	}
}

// DefaultPublicRoutes are never gated by the request authenticator
var DefaultPublicRoutes = []string{
	"/api/v1/auth/**",
	"/v3/api-docs/**",
	"/swagger-ui/**",
	"/swagger-ui.html",
}

type HTTPController struct {
	Logger     Logger
	Auther     *Auther
	Gate       *RequestAuthenticator
	Routes     *HTTPControllerRoutes
	ContextKey string
	now        func() time.Time
}

type HTTPControllerOption func(*HTTPController) *HTTPController

func WithControllerLogger(logger Logger) HTTPControllerOption {
	return func(c *HTTPController) *HTTPController {
		c.Logger = normalizeLogger(logger)
		return c
	}
}

func WithControllerRoutes(routes *HTTPControllerRoutes) HTTPControllerOption {
	return func(c *HTTPController) *HTTPController {
		if routes != nil {
			c.Routes = routes
		}
		return c
	}
}

func WithControllerClock(now func() time.Time) HTTPControllerOption {
	return func(c *HTTPController) *HTTPController {
		if now != nil {
			c.now = now
		}
		return c
	}
}

// NewHTTPController wires the JSON endpoints around auther and gate
func NewHTTPController(auther *Auther, gate *RequestAuthenticator, opts ...HTTPControllerOption) *HTTPController {
	c := &HTTPController{
		Logger:     NewDefaultLogger(),
		Auther:     auther,
		Gate:       gate,
		Routes:     DefaultRoutes(),
		ContextKey: DefaultContextKey,
		now:        time.Now,
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Auther == nil {
		panic("Missing Auther in auth controller...")
	}

	if c.Gate == nil {
		panic("Missing RequestAuthenticator in auth controller...")
	}

	return c
}

// Register mounts the request authenticator and every route on app
func (h *HTTPController) Register(app fiber.Router, opts Config) {
	if key := opts.GetContextKey(); key != "" {
		h.ContextKey = key
	}

	app.Use(h.Gate.Middleware(opts))

	app.Post(h.Routes.Register, h.RegisterUser)
	app.Post(h.Routes.Authenticate, h.Login)
	app.Get(h.Routes.Activate, h.ActivateAccount)
	app.Post(h.Routes.Refresh, h.RefreshToken)
	app.Post(h.Routes.ResendActivation, h.ResendActivation)

	app.Get(h.Routes.Me, h.Me)
	app.Patch(h.Routes.ChangePassword, h.ChangePassword)
	app.Post(h.Routes.GrantVendor, h.GrantVendor)
}

type messageResponse struct {
	Message string `json:"message"`
}

func (h *HTTPController) RegisterUser(c *fiber.Ctx) error {
	payload := new(RegisterUserMessage)
	if err := c.BodyParser(payload); err != nil {
		return h.fail(c, badPayload(err))
	}

	res, err := h.Auther.Register(c.UserContext(), *payload)
	if err != nil {
		return h.fail(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(messageResponse{Message: res.Message})
}

func (h *HTTPController) Login(c *fiber.Ctx) error {
	payload := new(LoginMessage)
	if err := c.BodyParser(payload); err != nil {
		return h.fail(c, badPayload(err))
	}

	if err := payload.Validate(); err != nil {
		return h.fail(c, err)
	}

	tokens, err := h.Auther.Login(c.UserContext(), payload.Email, payload.Password)
	if err != nil {
		return h.fail(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(tokens)
}

func (h *HTTPController) ActivateAccount(c *fiber.Ctx) error {
	res, err := h.Auther.Activate(c.UserContext(), c.Query("token"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(res)
}

type refreshResponse struct {
	AccessToken  string          `json:"accessToken"`
	RefreshToken string          `json:"refreshToken"`
	Identity     IdentitySummary `json:"identity"`
}

// RefreshToken reads the refresh token from the bearer header
func (h *HTTPController) RefreshToken(c *fiber.Ctx) error {
	token, ok := bearerToken(c.Get(fiber.HeaderAuthorization))
	if !ok {
		return h.fail(c, ErrMissingRefreshToken)
	}

	res := h.Auther.Refresh(c.UserContext(), token)
	if !res.OK() {
		h.Logger.Debug("token refresh rejected", "status", res.Status.String())
		return h.fail(c, res.Err)
	}

	return c.Status(fiber.StatusOK).JSON(refreshResponse{
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
		Identity:     res.Identity,
	})
}

func (h *HTTPController) ResendActivation(c *fiber.Ctx) error {
	payload := new(ResendActivationMessage)
	if err := c.BodyParser(payload); err != nil {
		return h.fail(c, badPayload(err))
	}

	if err := payload.Validate(); err != nil {
		return h.fail(c, err)
	}

	res, err := h.Auther.ResendActivation(c.UserContext(), payload.Email)
	if err != nil {
		return h.fail(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(res)
}

func (h *HTTPController) Me(c *fiber.Ctx) error {
	identity, ok := IdentityFromFiber(c, h.ContextKey)
	if !ok {
		return h.fail(c, ErrMissingToken)
	}
	return c.Status(fiber.StatusOK).JSON(identity)
}

func (h *HTTPController) ChangePassword(c *fiber.Ctx) error {
	identity, ok := IdentityFromFiber(c, h.ContextKey)
	if !ok {
		return h.fail(c, ErrMissingToken)
	}

	payload := new(ChangePasswordMessage)
	if err := c.BodyParser(payload); err != nil {
		return h.fail(c, badPayload(err))
	}

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return h.fail(c, ErrCredentialNotFound)
	}
	payload.CredentialID = id

	if err := h.Auther.ChangePassword(c.UserContext(), identity, *payload); err != nil {
		return h.fail(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(messageResponse{Message: MessagePassword})
}

func (h *HTTPController) GrantVendor(c *fiber.Ctx) error {
	identity, ok := IdentityFromFiber(c, h.ContextKey)
	if !ok {
		return h.fail(c, ErrMissingToken)
	}

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return h.fail(c, ErrCredentialNotFound)
	}

	if err := h.Auther.GrantVendor(c.UserContext(), identity, id); err != nil {
		return h.fail(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(messageResponse{Message: MessageVendor})
}

func (h *HTTPController) fail(c *fiber.Ctx, err error) error {
	status := ErrorStatus(err)
	if status >= fiber.StatusInternalServerError {
		h.Logger.Error("auth request failed", "path", c.Path(), "error", err)
	}
	return c.Status(status).JSON(NewErrorResponse(err, h.now()))
}

func badPayload(err error) error {
	return goerrors.Wrap(err, goerrors.CategoryBadInput, "malformed request body").
		WithCode(goerrors.CodeBadRequest).
		WithTextCode(TextCodeValidation)
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
