package auth_test

import (
	"strings"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/goliatone/go-shop-auth"
)

func validationFields(t *testing.T, err error) map[string]string {
	t.Helper()
	require.Error(t, err)

	var rich *goerrors.Error
	require.True(t, goerrors.As(err, &rich))
	assert.Equal(t, goerrors.CategoryValidation, rich.Category)
	assert.Equal(t, auth.TextCodeValidation, rich.TextCode)
	return rich.ValidationMap()
}

func TestRegisterUserMessageValidate(t *testing.T) {
	valid := auth.RegisterUserMessage{
		FirstName: "Ada",
		LastName:  "Lovelace",
		Email:     "ada@x.com",
		Password:  "password123",
	}
	assert.NoError(t, valid.Validate())

	empty := validationFields(t, auth.RegisterUserMessage{}.Validate())
	assert.Equal(t, "Firstname is mandatory", empty["firstName"])
	assert.Equal(t, "Lastname is mandatory", empty["lastName"])
	assert.Equal(t, "Email is mandatory", empty["email"])
	assert.Equal(t, "Password is mandatory", empty["password"])

	short := valid
	short.Password = "1234567"
	assert.Equal(t, "Password should be 8 characters long minimum", validationFields(t, short.Validate())["password"])

	long := valid
	long.Password = strings.Repeat("a", 73)
	assert.Equal(t, "Password must not exceed 72 bytes", validationFields(t, long.Validate())["password"])

	atLimit := valid
	atLimit.Password = strings.Repeat("a", 72)
	assert.NoError(t, atLimit.Validate())

	// 72 runes but 144 bytes
	multibyte := valid
	multibyte.Password = strings.Repeat("é", 72)
	assert.Equal(t, "Password must not exceed 72 bytes", validationFields(t, multibyte.Validate())["password"])

	fitting := valid
	fitting.Password = strings.Repeat("é", 36)
	assert.NoError(t, fitting.Validate())

	badEmail := valid
	badEmail.Email = "ada.at.x.com"
	assert.Equal(t, "Email is not well formatted", validationFields(t, badEmail.Validate())["email"])
}

func TestLoginMessageValidate(t *testing.T) {
	assert.NoError(t, auth.LoginMessage{Email: "a@x.com", Password: "x"}.Validate())

	fields := validationFields(t, auth.LoginMessage{Email: "nope"}.Validate())
	assert.Contains(t, fields, "email")
	assert.Contains(t, fields, "password")
}

func TestResendActivationMessageValidate(t *testing.T) {
	assert.NoError(t, auth.ResendActivationMessage{Email: "a@x.com"}.Validate())
	assert.Contains(t, validationFields(t, auth.ResendActivationMessage{}.Validate()), "email")
}

func TestChangePasswordMessageValidate(t *testing.T) {
	valid := auth.ChangePasswordMessage{CredentialID: uuid.New(), OldPassword: "old-password", NewPassword: "new-password"}
	assert.NoError(t, valid.Validate())

	fields := validationFields(t, auth.ChangePasswordMessage{NewPassword: "short"}.Validate())
	assert.Equal(t, "Id is required", fields["id"])
	assert.Equal(t, "Old password is required", fields["oldPassword"])
	assert.Equal(t, "Password must be at least 8 characters long", fields["newPassword"])

	multibyte := valid
	multibyte.NewPassword = strings.Repeat("密", 30)
	assert.Equal(t, "Password must not exceed 72 bytes", validationFields(t, multibyte.Validate())["newPassword"])
}

func TestMessageTypes(t *testing.T) {
	assert.Equal(t, "user.register", auth.RegisterUserMessage{}.Type())
	assert.Equal(t, "user.login", auth.LoginMessage{}.Type())
	assert.Equal(t, "user.activation.resend", auth.ResendActivationMessage{}.Type())
	assert.Equal(t, "user.password.change", auth.ChangePasswordMessage{}.Type())
}
