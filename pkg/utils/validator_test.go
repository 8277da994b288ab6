package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/authcore/pkg/constants"
	"github.com/turtacn/authcore/pkg/errors"
)

type sample struct {
	RedirectURIs []string `json:"redirect_uris" validate:"required,min=1,max=2,dive,required"`
	Hint         string   `form:"token_type_hint" validate:"omitempty,oneof=access_token refresh_token"`
}

func TestValidateStruct(t *testing.T) {
	assert.NoError(t, ValidateStruct(&sample{RedirectURIs: []string{"https://app/cb"}}))

	err := ValidateStruct(&sample{Hint: "id_token"})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, constants.ErrCodeInvalidRequest))

	authErr, ok := errors.AsAuthError(err)
	require.True(t, ok)
	assert.Contains(t, authErr.Description(), "redirect_uris is required")
	assert.Contains(t, authErr.Description(), "token_type_hint must be one of: access_token refresh_token")
	assert.Equal(t, "is required", authErr.Metadata()["redirect_uris"])

	err = ValidateStruct(&sample{RedirectURIs: []string{"a", "b", "c"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redirect_uris must be at most 2")
}
