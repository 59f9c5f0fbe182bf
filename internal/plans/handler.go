package plans

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/ayush/fitness-ai/backend/internal/auth"
	"github.com/ayush/fitness-ai/backend/internal/models"
	"github.com/ayush/fitness-ai/backend/internal/rpc"
)

// Register mounts plans.getAll and plans.create on rt.
func Register(rt *rpc.Router, svc *Service) {
	rpc.Query(rt, "plans.getAll", svc.GetAll)
	rpc.Mutation(rt, "plans.create", DecodeCreateInput,
		func(ctx context.Context, in models.CreatePlanInput) (*models.Plan, error) {
			return svc.Create(ctx, auth.UserID(ctx), in)
		},
		requireCaller,
	)
}

// requireCaller rejects anonymous calls before the input is read. A session
// store failure is not an anonymous call and surfaces as an internal error.
func requireCaller(ctx context.Context) error {
	if err := auth.SessionError(ctx); err != nil {
		return fmt.Errorf("resolve session: %w", err)
	}
	if auth.UserID(ctx) == "" {
		return ErrUnauthenticated
	}
	return nil
}

// MapError converts the package's errors into rpc errors.
func MapError(err error) *rpc.Error {
	var verr *ValidationError
	var rlErr *RateLimitError
	switch {
	case errors.As(err, &verr):
		e := rpc.NewError(rpc.CodeBadRequest, verr.Error(), err)
		e.FieldErrors = verr.FieldErrors
		return e
	case errors.Is(err, ErrUnauthenticated):
		return rpc.NewError(rpc.CodeUnauthorized, "You must be signed in to post", err)
	case errors.As(err, &rlErr):
		e := rpc.NewError(rpc.CodeTooManyRequests, "You are posting too fast", err)
		e.Header = http.Header{"Retry-After": []string{retryAfter(rlErr.RetryAfter)}}
		return e
	case errors.Is(err, ErrRateLimited):
		return rpc.NewError(rpc.CodeTooManyRequests, "You are posting too fast", err)
	case errors.Is(err, ErrAuthorNotFound):
		return rpc.NewError(rpc.CodeInternal, "Author for plan not found", err)
	}
	return nil
}

func retryAfter(d time.Duration) string {
	secs := math.Ceil(d.Seconds())
	return strconv.Itoa(max(int(secs), 1))
}
