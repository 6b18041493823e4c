package adapter

import "context"

// SessionManager is the port for the authenticated-session collaborator.
type SessionManager interface {
	// GetAccessToken returns the current bearer token, or
	// derror.ErrNotSignedIn when no valid session exists.
	GetAccessToken(ctx context.Context) (string, error)
}
