package common

import "context"

// Subject identifies the authenticated caller of a request. It is attached
// to the request context by the auth middleware after the bearer token has
// been verified and the credential record loaded.
type Subject struct {
	UserID  string
	IsAdmin bool
}

type contextKey int

const subjectContextKey contextKey = iota

// WithSubject stores the authenticated subject in the request context.
func WithSubject(ctx context.Context, s *Subject) context.Context {
	return context.WithValue(ctx, subjectContextKey, s)
}

// SubjectFromContext retrieves the authenticated subject, or nil when the
// request did not pass through the auth middleware.
func SubjectFromContext(ctx context.Context) *Subject {
	s, _ := ctx.Value(subjectContextKey).(*Subject)
	return s
}
