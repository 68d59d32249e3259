package lifecycle

import (
	"context"
	"crypto/subtle"
	"fmt"
	"strings"

	"loan-club/internal/common/errors"
	"loan-club/internal/common/metrics"
	"loan-club/internal/models"
	"loan-club/internal/store"
)

// Signup appends one user with a hashed password. Emails are unique
// case-insensitively.
func (s *Service) Signup(ctx context.Context, in SignupInput) (*models.User, error) {
	if err := validateSignup(in); err != nil {
		return nil, err
	}
	email := models.NormalizeEmail(in.Email)

	hash, err := s.hashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	ctx = store.WithCommitMessage(ctx, fmt.Sprintf("Signup %s", email))

	var created models.User
	_, err = s.store.Apply(ctx, func(ds *models.Dataset) error {
		if _, exists := ds.FindUserByEmail(email); exists {
			return errors.NewDuplicateUserError(email)
		}
		created = models.User{
			ID:           s.newID("u"),
			Email:        email,
			Name:         strings.TrimSpace(in.Name),
			Role:         models.RoleUser,
			Phone:        strings.TrimSpace(in.Phone),
			PasswordHash: hash,
			CreatedAt:    s.timestamp(),
		}
		ds.Users = append(ds.Users, created)
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.LifecycleTransitions.WithLabelValues("signup").Inc()
	s.logger.Info("user signed up", map[string]interface{}{"userId": created.ID})

	out := created.Redacted()
	return &out, nil
}

// Login verifies credentials. A match against a legacy cleartext password
// rehashes it in place.
func (s *Service) Login(ctx context.Context, c Credentials) (*models.User, error) {
	if strings.TrimSpace(c.Email) == "" || c.Password == "" {
		return nil, errors.NewValidationError("Email and password are required")
	}

	ds, err := s.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	user, legacy, err := authenticate(ds, &c)
	if err != nil {
		s.logger.Warn("login rejected", map[string]interface{}{"email": models.NormalizeEmail(c.Email)})
		return nil, err
	}
	if legacy {
		s.upgradePassword(ctx, user.ID, c.Password)
	}

	out := user.Redacted()
	return &out, nil
}

// Applications lists the caller's own applications.
func (s *Service) Applications(ctx context.Context, c *Credentials) ([]models.Application, error) {
	if err := validateCredentials(c); err != nil {
		return nil, err
	}
	ds, err := s.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	user, _, err := authenticate(ds, c)
	if err != nil {
		return nil, err
	}
	return ds.ApplicationsFor(user), nil
}

// Load returns the whole Dataset without password material.
func (s *Service) Load(ctx context.Context) (*models.Dataset, error) {
	ds, err := s.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	return ds.Redacted(), nil
}

// Save replaces the Dataset with an admin-edited copy. Users sent without
// password fields keep the credentials stored for them, matched by id and
// then email. Cleartext passwords in the incoming copy are hashed.
func (s *Service) Save(ctx context.Context, content *models.Dataset) (*models.Dataset, error) {
	if content == nil {
		return nil, errors.NewValidationError("Missing content in body")
	}
	next := content.Clone().Normalize()
	if err := validateDataset(next); err != nil {
		return nil, err
	}
	for i := range next.Users {
		u := &next.Users[i]
		if u.PasswordHash == "" && u.Password != "" {
			hash, err := s.hashPassword(u.Password)
			if err != nil {
				return nil, err
			}
			u.PasswordHash, u.Password = hash, ""
		}
	}

	ctx = store.WithCommitMessage(ctx, "Admin: save data.json")
	ds, err := s.store.Apply(ctx, func(ds *models.Dataset) error {
		merged := next.Clone()
		preserveCredentials(merged, ds)
		*ds = *merged
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("dataset saved", map[string]interface{}{
		"users":        len(ds.Users),
		"applications": len(ds.Applications),
	})
	return ds.Redacted(), nil
}

func (s *Service) upgradePassword(ctx context.Context, userID, password string) {
	hash, err := s.hashPassword(password)
	if err != nil {
		s.logger.Warn("password rehash failed", map[string]interface{}{"userId": userID, "error": err})
		return
	}

	ctx = store.WithCommitMessage(ctx, "Rehash legacy password")
	_, err = s.store.Apply(ctx, func(ds *models.Dataset) error {
		u, ok := ds.FindUserByID(userID)
		if !ok || u.PasswordHash != "" {
			return errLegacyPasswordGone
		}
		if subtle.ConstantTimeCompare([]byte(u.Password), []byte(password)) != 1 {
			return errLegacyPasswordGone
		}
		u.PasswordHash, u.Password = hash, ""
		return nil
	})
	if err != nil && err != errLegacyPasswordGone {
		s.logger.Warn("password rehash not stored", map[string]interface{}{"userId": userID, "error": err})
	}
}

var errLegacyPasswordGone = errors.NewInvalidTransitionError("Legacy password already replaced", "")

func preserveCredentials(next, current *models.Dataset) {
	for i := range next.Users {
		u := &next.Users[i]
		if u.HasCredentials() {
			continue
		}
		stored, ok := current.FindUserByID(u.ID)
		if !ok {
			stored, ok = current.FindUserByEmail(u.Email)
		}
		if ok {
			u.PasswordHash = stored.PasswordHash
			u.Password = stored.Password
		}
	}
}
