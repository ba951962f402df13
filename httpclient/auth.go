package httpclient

import "net/http"

// AuthType identifies the authentication method.
type AuthType int

const (
	AuthNone AuthType = iota
	AuthBearer
	AuthBasic
	AuthAPIKey
)

// AuthConfig configures request authentication.
type AuthConfig struct {
	Type     AuthType
	Token    string
	Username string
	Password string
	// Key is sent in the header Name (default "X-API-Key").
	Key  string
	Name string
}

// BearerAuth authenticates with "Authorization: Bearer <token>".
func BearerAuth(token string) *AuthConfig {
	return &AuthConfig{Type: AuthBearer, Token: token}
}

// BasicAuth authenticates with HTTP basic auth. Payment providers take the
// secret key as the username and an empty password.
func BasicAuth(username, password string) *AuthConfig {
	return &AuthConfig{Type: AuthBasic, Username: username, Password: password}
}

// APIKeyAuth sends key in the given header.
func APIKeyAuth(key, header string) *AuthConfig {
	return &AuthConfig{Type: AuthAPIKey, Key: key, Name: header}
}

func (a *AuthConfig) apply(req *http.Request) {
	if a == nil {
		return
	}
	switch a.Type {
	case AuthBearer:
		req.Header.Set("Authorization", "Bearer "+a.Token)
	case AuthBasic:
		req.SetBasicAuth(a.Username, a.Password)
	case AuthAPIKey:
		name := a.Name
		if name == "" {
			name = "X-API-Key"
		}
		req.Header.Set(name, a.Key)
	}
}
