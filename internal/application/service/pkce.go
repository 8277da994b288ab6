package service

import (
	"crypto/subtle"
	"fmt"
	"net"
	"net/url"
	"strings"

	"golang.org/x/oauth2"

	"github.com/turtacn/authcore/pkg/constants"
	"github.com/turtacn/authcore/pkg/errors"
)

// ValidateCodeChallenge checks the PKCE parameters of an authorization request.
// Only S256 is accepted; plain is refused whatever the challenge looks like.
func ValidateCodeChallenge(challenge, method string) error {
	if challenge == "" {
		return errors.ErrInvalidRequest("code_challenge is required")
	}
	if method == "" {
		return errors.ErrInvalidRequest("code_challenge_method is required and must be S256")
	}
	if method != constants.CodeChallengeMethodS256 {
		return errors.ErrInvalidRequest(fmt.Sprintf("code_challenge_method %q is not supported; use S256", method))
	}
	if len(challenge) < constants.PKCEMinLength || len(challenge) > constants.PKCEMaxLength {
		return errors.ErrInvalidRequest(fmt.Sprintf("code_challenge must be %d-%d characters", constants.PKCEMinLength, constants.PKCEMaxLength))
	}
	if !isUnreserved(challenge) {
		return errors.ErrInvalidRequest("code_challenge contains invalid characters")
	}
	return nil
}

// ValidateCodeVerifier checks the RFC 7636 §4.1 length and character set.
func ValidateCodeVerifier(verifier string) error {
	if verifier == "" {
		return errors.ErrInvalidRequest("code_verifier is required")
	}
	if len(verifier) < constants.PKCEMinLength || len(verifier) > constants.PKCEMaxLength {
		return errors.ErrInvalidGrant(fmt.Sprintf("code_verifier must be %d-%d characters", constants.PKCEMinLength, constants.PKCEMaxLength))
	}
	if !isUnreserved(verifier) {
		return errors.ErrInvalidGrant("code_verifier contains invalid characters")
	}
	return nil
}

// VerifyPKCE reports whether base64url(sha256(verifier)) equals challenge.
func VerifyPKCE(verifier, challenge string) bool {
	computed := oauth2.S256ChallengeFromVerifier(verifier)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(challenge)) == 1
}

// isUnreserved reports whether s only uses [A-Za-z0-9-._~].
func isUnreserved(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		case c == '-', c == '.', c == '_', c == '~':
		default:
			return false
		}
	}
	return true
}

// ValidateRedirectURI applies the registration rules for a redirect URI: absolute, no
// fragment, no wildcard, https unless the host is a loopback address. The out-of-band
// URN is accepted for native clients.
func ValidateRedirectURI(raw string) error {
	if raw == constants.OutOfBandRedirectURI {
		return nil
	}
	if strings.Contains(raw, "*") {
		return errors.ErrInvalidRequest("redirect_uri must not contain wildcards")
	}
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return errors.ErrInvalidRequest(fmt.Sprintf("redirect_uri %q is not an absolute URI", raw))
	}
	if u.Fragment != "" || strings.Contains(raw, "#") {
		return errors.ErrInvalidRequest("redirect_uri must not contain a fragment")
	}
	switch u.Scheme {
	case "https":
		return nil
	case "http":
		if isLoopback(u.Hostname()) {
			return nil
		}
		return errors.ErrInvalidRequest("redirect_uri must use https unless it targets localhost")
	default:
		return errors.ErrInvalidRequest(fmt.Sprintf("redirect_uri scheme %q is not allowed", u.Scheme))
	}
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
