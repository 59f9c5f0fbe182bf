package auth

import "context"

type userIDKey struct{}

type sessionErrKey struct{}

// WithUserID returns a context carrying the authenticated user's id.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

// UserID returns the authenticated user's id, or "" for anonymous callers.
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey{}).(string)
	return id
}

// WithSessionError records that the caller's session could not be resolved
// because the session store failed.
func WithSessionError(ctx context.Context, err error) context.Context {
	return context.WithValue(ctx, sessionErrKey{}, err)
}

// SessionError returns the error recorded by WithSessionError, if any.
func SessionError(ctx context.Context) error {
	err, _ := ctx.Value(sessionErrKey{}).(error)
	return err
}
