package lifecycle

import (
	"context"

	"loan-club/internal/common/logger"
	"loan-club/internal/models"
	"loan-club/internal/store"
)

// Store is the persistence the lifecycle runs against.
type Store interface {
	Load(ctx context.Context) (*models.Dataset, error)
	Apply(ctx context.Context, mutate store.MutateFunc) (*models.Dataset, error)
}

// Notifier delivers decision notices. Delivery is best effort.
type Notifier interface {
	NotifyDecision(ctx context.Context, app models.Application, owner *models.User)
}

type ServiceDependencies struct {
	Store    Store
	Notifier Notifier
	Logger   logger.Logger
}

// Credentials identify a customer.
type Credentials struct {
	Email    string
	Password string
}

// SignupInput is the body of a signup, also accepted as the user of a submission.
type SignupInput struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
	Phone    string `json:"phone,omitempty"`
}

type SubmitInput struct {
	Application *models.Application
	// Credentials come from the request's basic auth, User from the body.
	Credentials *Credentials
	User        *SignupInput
}

type DecisionInput struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Comment string `json:"adminComment"`
}
