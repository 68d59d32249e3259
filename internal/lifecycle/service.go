// Package lifecycle implements the loan application state machine and the
// customer accounts it depends on. Every transition is one Store.Apply call.
package lifecycle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"loan-club/internal/common/errors"
	"loan-club/internal/common/logger"
	"loan-club/internal/common/metrics"
	"loan-club/internal/models"
	"loan-club/internal/store"

	"github.com/google/uuid"
)

type Service struct {
	config   *Config
	store    Store
	notifier Notifier
	logger   logger.Logger
	now      func() time.Time
	newID    func(prefix string) string
}

func NewService(deps ServiceDependencies, config *Config) *Service {
	if config == nil {
		config = DefaultConfig()
	}
	if config.HashCost == 0 {
		config.HashCost = DefaultConfig().HashCost
	}
	log := deps.Logger
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Service{
		config:   config,
		store:    deps.Store,
		notifier: deps.Notifier,
		logger:   log.WithFields(map[string]interface{}{"component": "lifecycle"}),
		now:      time.Now,
		newID: func(prefix string) string {
			return prefix + "-" + uuid.NewString()
		},
	}
}

// ==========================
// Customer transitions
// ==========================

// Submit appends a pending application owned by the authenticated customer.
// Basic credentials take precedence; otherwise in.User authenticates an
// existing account or signs up a new one.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (*models.Dataset, error) {
	if err := validateApplication(in.Application); err != nil {
		return nil, err
	}

	var signupHash string
	if in.Credentials == nil {
		if in.User == nil || strings.TrimSpace(in.User.Email) == "" {
			return nil, errors.NewUnauthorizedError("Authentication required")
		}
		if err := validateSignup(*in.User); err != nil {
			return nil, err
		}
		hash, err := s.hashPassword(in.User.Password)
		if err != nil {
			return nil, err
		}
		signupHash = hash
	} else if err := validateCredentials(in.Credentials); err != nil {
		return nil, err
	}

	submitted := *in.Application
	ctx = store.WithCommitMessage(ctx, "Append application via Loan Club submit")

	var created models.Application
	ds, err := s.store.Apply(ctx, func(ds *models.Dataset) error {
		owner, err := s.resolveSubmitter(ds, in, signupHash)
		if err != nil {
			return err
		}
		created = s.newApplication(ds, submitted, owner)
		ds.Applications = append(ds.Applications, created)
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.LifecycleTransitions.WithLabelValues("submit").Inc()
	s.logger.Info("application submitted", map[string]interface{}{
		"applicationId": created.ID,
		"userId":        created.UserID,
	})
	return ds.Redacted(), nil
}

// RequestWithdrawal marks an approved application of the caller for payout.
func (s *Service) RequestWithdrawal(ctx context.Context, creds *Credentials, id string) (*models.Dataset, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	if err := validateCredentials(creds); err != nil {
		return nil, err
	}

	ctx = store.WithCommitMessage(ctx, fmt.Sprintf("Withdrawal requested %s", id))
	ds, err := s.store.Apply(ctx, func(ds *models.Dataset) error {
		user, _, err := authenticate(ds, creds)
		if err != nil {
			return err
		}
		app, ok := ds.FindApplication(id)
		if !ok {
			return errors.NewNotFoundError("Application", id)
		}
		if !app.OwnedBy(user) {
			return errors.NewForbiddenError("Application belongs to another user")
		}
		if app.Status != models.StatusApproved {
			return errors.NewInvalidTransitionError(
				"Withdrawal requires an approved application",
				fmt.Sprintf("application %s is %s", id, app.Status),
			)
		}
		if app.WithdrawalRequested {
			return errors.NewInvalidTransitionError("Withdrawal already requested", id)
		}
		app.WithdrawalRequested = true
		app.WithdrawalAt = s.timestamp()
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.LifecycleTransitions.WithLabelValues("withdrawal_requested").Inc()
	s.logger.Info("withdrawal requested", map[string]interface{}{"applicationId": id})
	return ds.Redacted(), nil
}

// ==========================
// Admin transitions
// ==========================

// Decide approves, rejects or holds an application. Any status may be
// retargeted until a withdrawal has been requested.
func (s *Service) Decide(ctx context.Context, in DecisionInput) (*models.Dataset, error) {
	if err := validateDecision(in); err != nil {
		return nil, err
	}
	comment := strings.TrimSpace(in.Comment)

	ctx = store.WithCommitMessage(ctx, fmt.Sprintf("Admin: %s %s", in.Status, in.ID))

	var decided models.Application
	ds, err := s.store.Apply(ctx, func(ds *models.Dataset) error {
		app, ok := ds.FindApplication(in.ID)
		if !ok {
			return errors.NewNotFoundError("Application", in.ID)
		}
		if app.WithdrawalRequested {
			return errors.NewInvalidTransitionError(
				"Status is locked once a withdrawal is requested",
				fmt.Sprintf("application %s", in.ID),
			)
		}

		now := s.timestamp()
		app.Status = in.Status
		app.AdminComment = comment
		app.AdminAt = now
		app.AdminUpdatedAt = now
		switch in.Status {
		case models.StatusApproved:
			app.ApprovedAt = now
		case models.StatusRejected:
			app.RejectedAt = now
		case models.StatusHold:
			app.HoldAt = now
		}
		app.AdminHistory = append(app.AdminHistory, models.AdminHistoryEntry{
			Action:  in.Status,
			Comment: comment,
			At:      now,
		})
		decided = *app
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.LifecycleTransitions.WithLabelValues(in.Status).Inc()
	s.logger.Info("application decided", map[string]interface{}{
		"applicationId": in.ID,
		"status":        in.Status,
	})

	s.notify(ctx, ds, decided)
	return ds.Redacted(), nil
}

// CompleteWithdrawal closes a requested withdrawal.
func (s *Service) CompleteWithdrawal(ctx context.Context, id string) (*models.Dataset, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}

	ctx = store.WithCommitMessage(ctx, fmt.Sprintf("Admin: withdrawal completed %s", id))
	ds, err := s.store.Apply(ctx, func(ds *models.Dataset) error {
		app, ok := ds.FindApplication(id)
		if !ok {
			return errors.NewNotFoundError("Application", id)
		}
		if !app.WithdrawalRequested {
			return errors.NewInvalidTransitionError("No withdrawal was requested", id)
		}
		if app.WithdrawalCompleted {
			return errors.NewInvalidTransitionError("Withdrawal already completed", id)
		}
		now := s.timestamp()
		app.WithdrawalCompleted = true
		app.WithdrawalCompletedAt = now
		app.AdminUpdatedAt = now
		app.AdminHistory = append(app.AdminHistory, models.AdminHistoryEntry{
			Action: models.ActionWithdrawalCompleted,
			At:     now,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.LifecycleTransitions.WithLabelValues(models.ActionWithdrawalCompleted).Inc()
	s.logger.Info("withdrawal completed", map[string]interface{}{"applicationId": id})
	return ds.Redacted(), nil
}

// ==========================
// Helpers
// ==========================

func (s *Service) resolveSubmitter(ds *models.Dataset, in SubmitInput, signupHash string) (*models.User, error) {
	if in.Credentials != nil {
		user, _, err := authenticate(ds, in.Credentials)
		return user, err
	}

	if existing, ok := ds.FindUserByEmail(in.User.Email); ok {
		if match, _ := verifyPassword(existing, in.User.Password); !match {
			return nil, errors.NewUnauthorizedError("Invalid email or password")
		}
		return existing, nil
	}

	ds.Users = append(ds.Users, models.User{
		ID:           s.newID("u"),
		Email:        models.NormalizeEmail(in.User.Email),
		Name:         strings.TrimSpace(in.User.Name),
		Role:         models.RoleUser,
		Phone:        strings.TrimSpace(in.User.Phone),
		PasswordHash: signupHash,
		CreatedAt:    s.timestamp(),
	})
	return &ds.Users[len(ds.Users)-1], nil
}

func (s *Service) newApplication(ds *models.Dataset, submitted models.Application, owner *models.User) models.Application {
	id := strings.TrimSpace(submitted.ID)
	if _, taken := ds.FindApplication(id); id == "" || taken {
		id = s.newID("app")
	}

	name := owner.Name
	if name == "" {
		name = strings.TrimSpace(submitted.UserName)
	}

	return models.Application{
		ID:        id,
		UserID:    owner.ID,
		UserName:  name,
		UserEmail: models.NormalizeEmail(owner.Email),
		Requested: strings.TrimSpace(submitted.Requested),
		Purpose:   strings.TrimSpace(submitted.Purpose),
		Term:      strings.TrimSpace(submitted.Term),
		Income:    strings.TrimSpace(submitted.Income),
		Status:    models.StatusPending,
		CreatedAt: s.timestamp(),
	}
}

func (s *Service) notify(ctx context.Context, ds *models.Dataset, app models.Application) {
	if s.notifier == nil {
		return
	}
	owner, ok := ds.FindUserByID(app.UserID)
	if !ok {
		owner, ok = ds.FindUserByEmail(app.UserEmail)
	}
	if !ok {
		s.logger.Debug("no owner to notify", map[string]interface{}{"applicationId": app.ID})
		return
	}
	recipient := owner.Redacted()
	s.notifier.NotifyDecision(ctx, app, &recipient)
}

func (s *Service) timestamp() string {
	return s.now().UTC().Format(time.RFC3339)
}
