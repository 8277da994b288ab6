// Package dto provides data transfer objects for the application layer.
package dto

// ClientRegistrationRequest is the RFC 7591 dynamic client registration request.
type ClientRegistrationRequest struct {
	RedirectURIs  []string `json:"redirect_uris" validate:"required,min=1,max=10,dive,required"`
	ClientName    string   `json:"client_name,omitempty" validate:"omitempty,max=256"`
	GrantTypes    []string `json:"grant_types,omitempty"`
	ResponseTypes []string `json:"response_types,omitempty"`
	Scope         string   `json:"scope,omitempty" validate:"omitempty,max=1024"`
}

// ClientRegistrationResponse carries the only copy of the client secret ever returned.
type ClientRegistrationResponse struct {
	ClientID              string   `json:"client_id"`
	ClientSecret          string   `json:"client_secret"`
	ClientIDIssuedAt      int64    `json:"client_id_issued_at"`
	ClientSecretExpiresAt int64    `json:"client_secret_expires_at"`
	ClientName            string   `json:"client_name,omitempty"`
	RedirectURIs          []string `json:"redirect_uris"`
	GrantTypes            []string `json:"grant_types"`
	ResponseTypes         []string `json:"response_types"`
	Scope                 string   `json:"scope"`
}

// AuthorizeRequest holds the query parameters of the authorization endpoint.
type AuthorizeRequest struct {
	ClientID            string `form:"client_id" validate:"required,max=128"`
	RedirectURI         string `form:"redirect_uri" validate:"required,max=2048"`
	ResponseType        string `form:"response_type"`
	Scope               string `form:"scope"`
	State               string `form:"state" validate:"omitempty,max=512"`
	CodeChallenge       string `form:"code_challenge"`
	CodeChallengeMethod string `form:"code_challenge_method"`
}

// AuthorizeResult is a successful authorization: the client is redirected to
// RedirectURI with Code and State.
type AuthorizeResult struct {
	RedirectURI string
	Code        string
	State       string
}

// TokenRequest is the form body of the token endpoint. Client credentials may also
// arrive through HTTP Basic authentication; the handler merges them in.
type TokenRequest struct {
	GrantType    string `form:"grant_type" validate:"required"`
	ClientID     string `form:"client_id"`
	ClientSecret string `form:"client_secret"`
	Code         string `form:"code"`
	RedirectURI  string `form:"redirect_uri"`
	CodeVerifier string `form:"code_verifier"`
	RefreshToken string `form:"refresh_token"`
	Scope        string `form:"scope"`
}

// TokenResponse is the RFC 6749 §5.1 access token response.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// RevokeRequest is the RFC 7009 revocation request.
type RevokeRequest struct {
	Token         string `form:"token" validate:"required"`
	TokenTypeHint string `form:"token_type_hint" validate:"omitempty,oneof=access_token refresh_token"`
	ClientID      string `form:"client_id"`
	ClientSecret  string `form:"client_secret"`
}

// AuthorizationServerMetadata is the RFC 8414 discovery document.
type AuthorizationServerMetadata struct {
	Issuer                            string   `json:"issuer"`
	AuthorizationEndpoint             string   `json:"authorization_endpoint"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	RegistrationEndpoint              string   `json:"registration_endpoint"`
	RevocationEndpoint                string   `json:"revocation_endpoint"`
	JWKSURI                           string   `json:"jwks_uri"`
	GrantTypesSupported               []string `json:"grant_types_supported"`
	ResponseTypesSupported            []string `json:"response_types_supported"`
	CodeChallengeMethodsSupported     []string `json:"code_challenge_methods_supported"`
	ScopesSupported                   []string `json:"scopes_supported"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported"`
}
