package auth

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	goerrors "github.com/goliatone/go-errors"
)

// MinPasswordLength is enforced on registration and password change
const MinPasswordLength = 8

// bcrypt rejects input past 72 bytes, counted in bytes not runes
const maxPasswordBytes = 72

var passwordFitsBcrypt = validation.By(func(value any) error {
	if pw, _ := value.(string); len(pw) > maxPasswordBytes {
		return validation.NewError("validation_length_too_long", "Password must not exceed 72 bytes")
	}
	return nil
})

type RegisterUserMessage struct {
	FirstName   string     `json:"firstName"`
	LastName    string     `json:"lastName"`
	Email       string     `json:"email"`
	Password    string     `json:"password"`
	DateOfBirth *time.Time `json:"dateOfBirth,omitempty"`
}

func (e RegisterUserMessage) Type() string { return "user.register" }

// Validate checks the registration payload
func (e RegisterUserMessage) Validate() error {
	err := validation.ValidateStruct(&e,
		validation.Field(&e.FirstName, validation.Required.Error("Firstname is mandatory")),
		validation.Field(&e.LastName, validation.Required.Error("Lastname is mandatory")),
		validation.Field(&e.Email,
			validation.Required.Error("Email is mandatory"),
			is.EmailFormat.Error("Email is not well formatted"),
		),
		validation.Field(&e.Password,
			validation.Required.Error("Password is mandatory"),
			validation.RuneLength(MinPasswordLength, 0).
				Error("Password should be 8 characters long minimum"),
			passwordFitsBcrypt,
		),
	)
	return validationError(err, "invalid registration payload")
}

type LoginMessage struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (e LoginMessage) Type() string { return "user.login" }

// Validate checks the login payload
func (e LoginMessage) Validate() error {
	err := validation.ValidateStruct(&e,
		validation.Field(&e.Email,
			validation.Required.Error("Email is mandatory"),
			is.EmailFormat.Error("Email is not well formatted"),
		),
		validation.Field(&e.Password, validation.Required.Error("Password is mandatory")),
	)
	return validationError(err, "invalid login payload")
}

type ResendActivationMessage struct {
	Email string `json:"email"`
}

func (e ResendActivationMessage) Type() string { return "user.activation.resend" }

func (e ResendActivationMessage) Validate() error {
	err := validation.ValidateStruct(&e,
		validation.Field(&e.Email,
			validation.Required.Error("Email is mandatory"),
			is.EmailFormat.Error("Email is not well formatted"),
		),
	)
	return validationError(err, "invalid resend activation payload")
}

func validationError(err error, message string) error {
	if err == nil {
		return nil
	}
	return goerrors.FromOzzoValidation(err, message).
		WithCode(goerrors.CodeBadRequest).
		WithTextCode(TextCodeValidation)
}
