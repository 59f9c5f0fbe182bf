// Package plans assembles the plan feed and guards plan creation.
package plans

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ayush/fitness-ai/backend/internal/models"
	"github.com/ayush/fitness-ai/backend/internal/ratelimit"
)

const (
	// FeedSize caps how many plans GetAll returns.
	FeedSize = 100
	// UserBatchSize caps a single directory lookup.
	UserBatchSize = 100
)

// PlanStore defines the interface for plan persistence.
type PlanStore interface {
	ListRecentPlans(ctx context.Context, limit int) ([]models.Plan, error)
	CreatePlan(ctx context.Context, plan *models.Plan) error
}

// UserDirectory resolves user ids to identity records in one batch.
type UserDirectory interface {
	GetUserList(ctx context.Context, ids []string, limit int) ([]models.User, error)
}

// Limiter consumes one unit of a caller's quota.
type Limiter interface {
	Limit(ctx context.Context, identifier string) (ratelimit.Result, error)
}

// RateLimitError is returned by Create when the quota is exhausted.
// It matches ErrRateLimited with errors.Is.
type RateLimitError struct {
	// RetryAfter is how long until the caller may post again.
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string { return ErrRateLimited.Error() }
func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

// Service implements the feed reader and the plan writer.
type Service struct {
	plans   PlanStore
	users   UserDirectory
	limiter Limiter
}

func NewService(plans PlanStore, users UserDirectory, limiter Limiter) *Service {
	return &Service{plans: plans, users: users, limiter: limiter}
}

// FilterUserForClient strips everything but the public author fields.
func FilterUserForClient(u models.User) models.Author {
	return models.Author{
		ID:              u.ID,
		Username:        u.Username,
		ProfileImageURL: u.ProfileImageURL,
	}
}

// GetAll returns the newest plans, each joined with its author. A plan whose
// author cannot be resolved fails the whole call with ErrAuthorNotFound.
func (s *Service) GetAll(ctx context.Context) ([]models.PlanWithAuthor, error) {
	plans, err := s.plans.ListRecentPlans(ctx, FeedSize)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	if len(plans) == 0 {
		return []models.PlanWithAuthor{}, nil
	}

	users, err := s.users.GetUserList(ctx, authorIDs(plans), UserBatchSize)
	if err != nil {
		return nil, fmt.Errorf("get authors: %w", err)
	}
	authors := make(map[string]models.Author, len(users))
	for _, u := range users {
		authors[u.ID] = FilterUserForClient(u)
	}

	feed := make([]models.PlanWithAuthor, 0, len(plans))
	for _, p := range plans {
		author, ok := authors[p.AuthorID]
		if !ok {
			return nil, fmt.Errorf("plan %s author %s: %w", p.ID, p.AuthorID, ErrAuthorNotFound)
		}
		feed = append(feed, models.PlanWithAuthor{Plan: p, Author: author})
	}
	return feed, nil
}

// Create stores a new plan for authorID after checking the input and the
// author's posting quota. Nothing is written when either check fails.
func (s *Service) Create(ctx context.Context, authorID string, in models.CreatePlanInput) (*models.Plan, error) {
	if authorID == "" {
		return nil, ErrUnauthenticated
	}
	if err := ValidateCreateInput(in); err != nil {
		return nil, err
	}

	res, err := s.limiter.Limit(ctx, authorID)
	if err != nil {
		return nil, fmt.Errorf("check quota: %w", err)
	}
	if !res.Success {
		return nil, &RateLimitError{RetryAfter: res.RetryAfter}
	}

	plan := &models.Plan{
		ID:       uuid.NewString(),
		Content:  in.Content,
		AuthorID: authorID,
	}
	if err := s.plans.CreatePlan(ctx, plan); err != nil {
		return nil, fmt.Errorf("create plan: %w", err)
	}
	return plan, nil
}

// authorIDs returns the distinct author ids in first-seen order.
func authorIDs(plans []models.Plan) []string {
	seen := make(map[string]struct{}, len(plans))
	ids := make([]string, 0, len(plans))
	for _, p := range plans {
		if _, ok := seen[p.AuthorID]; ok {
			continue
		}
		seen[p.AuthorID] = struct{}{}
		ids = append(ids, p.AuthorID)
	}
	return ids
}
