package shared

import "context"

type subjectContextKey struct{}

// Subject identifies the account a verified bearer token was issued to.
type Subject struct {
	AccountID string
	Email     string
}

// ContextWithSubject stores the authenticated subject in context.
func ContextWithSubject(ctx context.Context, subject Subject) context.Context {
	return context.WithValue(ctx, subjectContextKey{}, subject)
}

// SubjectFromContext extracts the authenticated subject from context.
func SubjectFromContext(ctx context.Context) (Subject, bool) {
	subject, ok := ctx.Value(subjectContextKey{}).(Subject)
	return subject, ok
}
