package auth

import (
	"context"

	"github.com/gofrs/uuid"
)

type subjectKey struct{}

// WithSubject returns a copy of ctx carrying the authenticated user id.
func WithSubject(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, subjectKey{}, id)
}

// SubjectFromContext returns the user id stored by WithSubject.
func SubjectFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(subjectKey{}).(uuid.UUID)
	if !ok || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}
