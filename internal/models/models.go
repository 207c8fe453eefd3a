package models

import "time"

// Identity is the authenticated user as reported by the identity provider.
// It is request scoped and never persisted.
type Identity struct {
	UserID      string `json:"user_id"`
	Email       string `json:"email"`
	DisplayName string `json:"name"`
	AvatarURL   string `json:"avatar_url"`
}

// BillingRecord is the per-user source of truth for paid access.
type BillingRecord struct {
	UserID               string
	StripeCustomerID     string
	StripeSubscriptionID *string // nil for one-time lifetime purchases
	PlanType             string
	Status               string
	CurrentPeriodStart   *time.Time
	CurrentPeriodEnd     *time.Time // nil for lifetime
	CancelAtPeriodEnd    bool
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// SubscriptionPatch carries the provider-owned fields overwritten by a
// subscription lifecycle event.
type SubscriptionPatch struct {
	Status             string
	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time
	CancelAtPeriodEnd  bool
	UpdatedAt          time.Time
}

const (
	PlanMonthly  = "monthly"
	PlanYearly   = "yearly"
	PlanLifetime = "lifetime"
)

const (
	StatusActive  = "active"
	StatusExpired = "expired"
)

type AnalysisRequest struct {
	VideoIDs   []string `json:"video_ids" validate:"required,max=50,dive,required"`
	SearchTerm string   `json:"search_term" validate:"required"`
}

type VideoAnalysis struct {
	VideoID          string   `json:"video_id"`
	MatchRate        float64  `json:"match_rate"`
	CommentSummaries []string `json:"comment_summaries"`
	Title            string   `json:"title"`
	Description      string   `json:"description"`
}

// VideoDetails is the subset of video metadata the scorer consumes.
type VideoDetails struct {
	VideoID     string `json:"video_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
}
