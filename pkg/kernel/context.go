package kernel

import "strings"

// AuthContext is attached to every authenticated API request.
type AuthContext struct {
	ClientID ClientID `json:"client_id"`
	Scopes   []string `json:"scopes"`
}

// IsValid reports whether the context names a caller.
func (ac *AuthContext) IsValid() bool {
	return ac != nil && !ac.ClientID.IsEmpty()
}

// HasScope matches scope exactly, against "*", or against a "prefix:*" wildcard.
func (ac *AuthContext) HasScope(scope string) bool {
	for _, s := range ac.Scopes {
		if s == scope || s == "*" {
			return true
		}
		if prefix, ok := strings.CutSuffix(s, ":*"); ok && strings.HasPrefix(scope, prefix+":") {
			return true
		}
	}
	return false
}

// HasAnyScope reports whether at least one of scopes is granted.
func (ac *AuthContext) HasAnyScope(scopes ...string) bool {
	for _, scope := range scopes {
		if ac.HasScope(scope) {
			return true
		}
	}
	return false
}

type ContextKey string

const (
	// AuthContextKey is the fiber Locals key holding *AuthContext.
	AuthContextKey ContextKey = "auth_context"

	// RequestIDKey is the fiber Locals key holding the request id.
	RequestIDKey ContextKey = "request_id"
)
