package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/api/idtoken"
)

// Credentials is what the sign-in form posts.
type Credentials struct {
	IDToken string `json:"id_token"`
	UserID  string `json:"user_id"`
	Name    string `json:"name"`
}

// Verifier turns credentials from the identity provider into a Session.
type Verifier interface {
	Verify(ctx context.Context, c Credentials) (Session, error)
}

var ErrInvalidCredentials = errors.New("invalid credentials")

// GoogleVerifier checks Google ID tokens issued for clientID.
type GoogleVerifier struct {
	clientID string
	validate func(ctx context.Context, token, audience string) (*idtoken.Payload, error)
}

func NewGoogleVerifier(clientID string) *GoogleVerifier {
	return &GoogleVerifier{clientID: clientID, validate: idtoken.Validate}
}

func (v *GoogleVerifier) Verify(ctx context.Context, c Credentials) (Session, error) {
	if strings.TrimSpace(c.IDToken) == "" {
		return Anonymous, ErrInvalidCredentials
	}
	payload, err := v.validate(ctx, c.IDToken, v.clientID)
	if err != nil {
		return Anonymous, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}
	if payload.Subject == "" {
		return Anonymous, ErrInvalidCredentials
	}
	return Session{
		OwnerID:         payload.Subject,
		Name:            claimString(payload.Claims, "name"),
		AvatarURL:       claimString(payload.Claims, "picture"),
		IsAuthenticated: true,
	}, nil
}

func claimString(claims map[string]interface{}, key string) string {
	if v, ok := claims[key].(string); ok {
		return v
	}
	return ""
}

// DevVerifier trusts the posted user id. Only for local development.
type DevVerifier struct{}

func (DevVerifier) Verify(_ context.Context, c Credentials) (Session, error) {
	id := strings.TrimSpace(c.UserID)
	if id == "" {
		return Anonymous, ErrInvalidCredentials
	}
	name := strings.TrimSpace(c.Name)
	if name == "" {
		name = id
	}
	return Session{OwnerID: id, Name: name, IsAuthenticated: true}, nil
}

// ChainVerifier tries each verifier in turn and returns the first success.
type ChainVerifier []Verifier

func (c ChainVerifier) Verify(ctx context.Context, cred Credentials) (Session, error) {
	var errs []error
	for _, v := range c {
		s, err := v.Verify(ctx, cred)
		if err == nil {
			return s, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return Anonymous, ErrInvalidCredentials
	}
	return Anonymous, errors.Join(errs...)
}
