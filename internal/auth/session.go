// Package auth carries the signed-in user's identity through the application.
//
// Identity itself is provided by an external collaborator (Google sign-in or a
// development stand-in); this package only verifies what that collaborator
// hands over and turns it into a Session.
package auth

import (
	"context"
	"errors"
)

// Session is the identity of the user a request acts for.
type Session struct {
	OwnerID         string `json:"ownerId"`
	Name            string `json:"name"`
	AvatarURL       string `json:"avatarUrl"`
	IsAuthenticated bool   `json:"isAuthenticated"`
}

var ErrUnauthenticated = errors.New("not signed in")

type contextKey struct{}

// Anonymous is the session of a visitor who has not signed in.
var Anonymous = Session{}

// Require returns ErrUnauthenticated unless s belongs to a signed-in user.
func (s Session) Require() error {
	if !s.IsAuthenticated || s.OwnerID == "" {
		return ErrUnauthenticated
	}
	return nil
}

// WithSession returns a copy of ctx carrying s.
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

// FromContext returns the session stored in ctx, or Anonymous.
func FromContext(ctx context.Context) Session {
	if s, ok := ctx.Value(contextKey{}).(Session); ok {
		return s
	}
	return Anonymous
}
