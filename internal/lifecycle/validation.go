package lifecycle

import (
	"fmt"
	"strings"

	"loan-club/internal/common/errors"
	"loan-club/internal/models"
)

func validateApplication(app *models.Application) error {
	if app == nil {
		return errors.NewValidationError("Missing application object")
	}
	fields := []struct {
		name  string
		value string
	}{
		{"requested", app.Requested},
		{"purpose", app.Purpose},
		{"term", app.Term},
		{"income", app.Income},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return errors.NewValidationError(fmt.Sprintf("Missing required field: %s", f.name))
		}
	}
	return nil
}

func validateDecision(in DecisionInput) error {
	if strings.TrimSpace(in.ID) == "" || strings.TrimSpace(in.Status) == "" {
		return errors.NewValidationError("Missing id or status")
	}
	if !models.IsDecisionStatus(in.Status) {
		return errors.NewValidationError(fmt.Sprintf("Invalid status %q: use approved, rejected or hold", in.Status))
	}
	if strings.TrimSpace(in.Comment) == "" {
		return errors.NewValidationError("Comment is required")
	}
	return nil
}

func validateSignup(in SignupInput) error {
	email := models.NormalizeEmail(in.Email)
	if email == "" || in.Password == "" {
		return errors.NewValidationError("Email and password are required")
	}
	if at := strings.Index(email, "@"); at <= 0 || at == len(email)-1 {
		return errors.NewValidationError(fmt.Sprintf("Invalid email address: %s", in.Email))
	}
	return nil
}

func validateCredentials(c *Credentials) error {
	if c == nil || strings.TrimSpace(c.Email) == "" || c.Password == "" {
		return errors.NewUnauthorizedError("Authentication required")
	}
	return nil
}

func validateID(id string) error {
	if strings.TrimSpace(id) == "" {
		return errors.NewValidationError("Missing application id")
	}
	return nil
}

// validateDataset checks an admin-edited Dataset before it replaces the stored one.
func validateDataset(ds *models.Dataset) error {
	emails := make(map[string]struct{}, len(ds.Users))
	for _, u := range ds.Users {
		email := models.NormalizeEmail(u.Email)
		if email == "" {
			continue
		}
		if _, dup := emails[email]; dup {
			return errors.NewValidationError(fmt.Sprintf("Duplicate user email: %s", email))
		}
		emails[email] = struct{}{}
	}

	ids := make(map[string]struct{}, len(ds.Applications))
	for _, app := range ds.Applications {
		id := strings.TrimSpace(app.ID)
		if id == "" {
			return errors.NewValidationError("Application id is required")
		}
		if _, dup := ids[id]; dup {
			return errors.NewValidationError(fmt.Sprintf("Duplicate application id: %s", id))
		}
		ids[id] = struct{}{}

		if !models.IsValidStatus(app.Status) {
			return errors.NewValidationError(fmt.Sprintf("Invalid status %q for application %s", app.Status, id))
		}
		if app.WithdrawalRequested && app.Status != models.StatusApproved {
			return errors.NewValidationError(fmt.Sprintf("Withdrawal requires an approved application: %s", id))
		}
		if app.WithdrawalCompleted && !app.WithdrawalRequested {
			return errors.NewValidationError(fmt.Sprintf("Withdrawal completed without a request: %s", id))
		}
	}
	return nil
}
