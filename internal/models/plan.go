package models

import "time"

// Plan is a single user-authored post. Plans are never updated or deleted.
type Plan struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	AuthorID  string    `json:"authorId"`
	CreatedAt time.Time `json:"createdAt"`
}

// PlanWithAuthor is one feed entry.
type PlanWithAuthor struct {
	Plan   Plan   `json:"plan"`
	Author Author `json:"author"`
}

// CreatePlanInput is the JSON body for plans.create.
type CreatePlanInput struct {
	Content string `json:"content" validate:"required"`
}

// RateLimitEvent records one limiter decision.
type RateLimitEvent struct {
	Identifier string    `json:"identifier" bson:"identifier"`
	Success    bool      `json:"success"    bson:"success"`
	Limit      int       `json:"limit"      bson:"limit"`
	Remaining  int       `json:"remaining"  bson:"remaining"`
	Reset      time.Time `json:"reset"      bson:"reset"`
	At         time.Time `json:"at"         bson:"at"`
}
