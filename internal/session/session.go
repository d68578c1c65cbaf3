// Package session models the signed-in user of the portal. A session is
// populated at login, cleared at logout, and travels through request
// contexts rather than living in a global.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/medly/medly-portal/internal/clinic"
)

var ErrNotFound = errors.New("session not found")

type Session struct {
	ID        string              `json:"id"`
	Token     string              `json:"token"`
	Role      clinic.Role         `json:"role"`
	Profile   *clinic.UserProfile `json:"profile,omitempty"`
	CreatedAt time.Time           `json:"createdAt"`
}

func New(token string, role clinic.Role, profile *clinic.UserProfile, now time.Time) *Session {
	return &Session{
		ID:        uuid.NewString(),
		Token:     token,
		Role:      role,
		Profile:   profile,
		CreatedAt: now,
	}
}

func (s *Session) PatientID() string {
	if s == nil || s.Profile == nil || s.Profile.PatientProfile == nil {
		return ""
	}
	return s.Profile.PatientProfile.PatientID
}

func (s *Session) DoctorID() string {
	if s == nil || s.Profile == nil || s.Profile.DoctorProfile == nil {
		return ""
	}
	return s.Profile.DoctorProfile.DoctorID
}

func (s *Session) Name() string {
	if s == nil || s.Profile == nil {
		return ""
	}
	return s.Profile.Name
}

type Store interface {
	Save(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	Delete(ctx context.Context, id string) error
}

type contextKey struct{}

func NewContext(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

func FromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(contextKey{}).(*Session)
	return s, ok && s != nil
}
