package auth

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
)

type ChangePasswordMessage struct {
	CredentialID uuid.UUID `json:"id"`
	OldPassword  string    `json:"oldPassword"`
	NewPassword  string    `json:"newPassword"`
}

func (e ChangePasswordMessage) Type() string { return "user.password.change" }

// Validate checks the password change payload
func (e ChangePasswordMessage) Validate() error {
	err := validation.ValidateStruct(&e,
		validation.Field(&e.CredentialID, validation.By(func(any) error {
			if e.CredentialID == uuid.Nil {
				return validation.NewError("validation_required", "Id is required")
			}
			return nil
		})),
		validation.Field(&e.OldPassword, validation.Required.Error("Old password is required")),
		validation.Field(&e.NewPassword,
			validation.Required.Error("New password is required"),
			validation.RuneLength(MinPasswordLength, 0).
				Error("Password must be at least 8 characters long"),
			passwordFitsBcrypt,
		),
	)
	return validationError(err, "invalid password change payload")
}
