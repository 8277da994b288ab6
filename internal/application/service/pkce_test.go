package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/oauth2"

	"github.com/turtacn/authcore/pkg/constants"
	"github.com/turtacn/authcore/pkg/errors"
)

func TestVerifyPKCE(t *testing.T) {
	// RFC 7636 Appendix B.
	assert.True(t, VerifyPKCE("dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk", "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"))
	assert.False(t, VerifyPKCE("dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXj", "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"))

	verifier := oauth2.GenerateVerifier()
	assert.True(t, VerifyPKCE(verifier, oauth2.S256ChallengeFromVerifier(verifier)))
	assert.False(t, VerifyPKCE(verifier, verifier), "plain comparison never matches")
}

func TestValidateCodeChallenge(t *testing.T) {
	good := oauth2.S256ChallengeFromVerifier(testVerifier)
	assert.NoError(t, ValidateCodeChallenge(good, "S256"))

	for name, tc := range map[string][2]string{
		"plain":          {good, "plain"},
		"missing method": {good, ""},
		"lowercase":      {good, "s256"},
		"empty":          {"", "S256"},
		"too short":      {strings.Repeat("a", 42), "S256"},
		"too long":       {strings.Repeat("a", 129), "S256"},
		"bad characters": {strings.Repeat("a", 42) + "=", "S256"},
	} {
		err := ValidateCodeChallenge(tc[0], tc[1])
		assert.True(t, errors.IsCode(err, constants.ErrCodeInvalidRequest), name)
	}
}

func TestValidateCodeVerifier(t *testing.T) {
	assert.NoError(t, ValidateCodeVerifier(strings.Repeat("a", 43)))
	assert.NoError(t, ValidateCodeVerifier(strings.Repeat("~", 128)))
	assert.True(t, errors.IsCode(ValidateCodeVerifier(""), constants.ErrCodeInvalidRequest))
	assert.True(t, errors.IsCode(ValidateCodeVerifier(strings.Repeat("a", 42)), constants.ErrCodeInvalidGrant))
	assert.True(t, errors.IsCode(ValidateCodeVerifier(strings.Repeat("a", 129)), constants.ErrCodeInvalidGrant))
	assert.True(t, errors.IsCode(ValidateCodeVerifier(strings.Repeat("a", 42)+"+"), constants.ErrCodeInvalidGrant))
}

func TestValidateRedirectURI(t *testing.T) {
	allowed := []string{
		"https://app.example/cb",
		"https://app.example:8443/cb?x=1",
		"http://localhost:3000/cb",
		"http://127.0.0.1/cb",
		"http://[::1]:8080/cb",
		constants.OutOfBandRedirectURI,
	}
	for _, uri := range allowed {
		assert.NoError(t, ValidateRedirectURI(uri), uri)
	}

	rejected := []string{
		"",
		"/relative",
		"http://app.example/cb",
		"https://app.example/cb#frag",
		"https://*.example/cb",
		"javascript:alert(1)",
		"ftp://files.example/cb",
		"http://localhost.evil.example/cb",
	}
	for _, uri := range rejected {
		assert.True(t, errors.IsCode(ValidateRedirectURI(uri), constants.ErrCodeInvalidRequest), uri)
	}
}
