package lifecycle

import (
	"crypto/subtle"

	"loan-club/internal/common/errors"
	"loan-club/internal/models"

	"golang.org/x/crypto/bcrypt"
)

// AuthorizeAdmin compares a caller-supplied secret with the configured one.
func (s *Service) AuthorizeAdmin(credential string) error {
	if credential == "" || s.config.AdminSecret == "" {
		return errors.NewUnauthorizedError("Unauthorized: invalid admin key")
	}
	if subtle.ConstantTimeCompare([]byte(credential), []byte(s.config.AdminSecret)) != 1 {
		return errors.NewUnauthorizedError("Unauthorized: invalid admin key")
	}
	return nil
}

func (s *Service) hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.config.HashCost)
	if err != nil {
		return "", errors.NewInternalError(err)
	}
	return string(hash), nil
}

// verifyPassword reports whether password matches the user, and whether the
// match came from a legacy cleartext field that should be rehashed.
func verifyPassword(u *models.User, password string) (ok bool, legacy bool) {
	if u.PasswordHash != "" {
		return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil, false
	}
	if u.Password != "" {
		return subtle.ConstantTimeCompare([]byte(u.Password), []byte(password)) == 1, true
	}
	return false, false
}

// authenticate resolves credentials against the users of ds.
func authenticate(ds *models.Dataset, c *Credentials) (*models.User, bool, error) {
	if err := validateCredentials(c); err != nil {
		return nil, false, err
	}
	u, found := ds.FindUserByEmail(c.Email)
	if !found {
		return nil, false, errors.NewUnauthorizedError("Invalid email or password")
	}
	ok, legacy := verifyPassword(u, c.Password)
	if !ok {
		return nil, false, errors.NewUnauthorizedError("Invalid email or password")
	}
	return u, legacy, nil
}
