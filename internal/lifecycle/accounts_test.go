package lifecycle

import (
	"context"
	stdErrors "errors"
	"testing"

	"loan-club/internal/common/errors"
	"loan-club/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestSignup_AppendsOneUser(t *testing.T) {
	f := newFixture(t)

	u, err := f.svc.Signup(context.Background(), SignupInput{Email: " Ann@Example.com ", Name: "Ann", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, "ann@example.com", u.Email)
	assert.Equal(t, models.RoleUser, u.Role)
	assert.Empty(t, u.PasswordHash)

	ds := f.stored(t)
	require.Len(t, ds.Users, 1)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(ds.Users[0].PasswordHash), []byte("pw")))
	assert.Empty(t, ds.Users[0].Password)
}

func TestSignup_DuplicateEmailDoesNotMutate(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "ann@example.com")
	before := f.stored(t)
	writes := f.gw.Writes()

	_, err := f.svc.Signup(context.Background(), SignupInput{Email: "ANN@example.com", Password: "other"})
	require.Error(t, err)
	assert.True(t, stdErrors.Is(err, errors.ErrDuplicateUser))
	assert.Equal(t, "Email already exists", errors.Normalize(err).Message)

	assert.Equal(t, writes, f.gw.Writes())
	assert.Equal(t, before, f.stored(t))
}

func TestSignup_Validation(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Signup(context.Background(), SignupInput{Email: "a@b.co"})
	assert.True(t, stdErrors.Is(err, errors.ErrValidation))

	_, err = f.svc.Signup(context.Background(), SignupInput{Email: "@b.co", Password: "x"})
	assert.True(t, stdErrors.Is(err, errors.ErrValidation))
}

func TestLogin(t *testing.T) {
	f := newFixture(t)
	creds := f.seedUser(t, "ann@example.com")

	u, err := f.svc.Login(context.Background(), Credentials{Email: "ANN@example.com", Password: creds.Password})
	require.NoError(t, err)
	assert.Equal(t, "ann@example.com", u.Email)
	assert.Empty(t, u.PasswordHash)

	_, err = f.svc.Login(context.Background(), Credentials{Email: "ann@example.com", Password: "nope"})
	assert.True(t, stdErrors.Is(err, errors.ErrUnauthorized))

	_, err = f.svc.Login(context.Background(), Credentials{Email: "ann@example.com"})
	assert.True(t, stdErrors.Is(err, errors.ErrValidation))
}

func TestLogin_UpgradesLegacyPassword(t *testing.T) {
	f := newFixture(t)
	_, err := f.store.Replace(context.Background(), &models.Dataset{
		Users: []models.User{{ID: "u-legacy", Email: "old@example.com", Role: models.RoleUser, Password: "plain"}},
	})
	require.NoError(t, err)

	_, err = f.svc.Login(context.Background(), Credentials{Email: "old@example.com", Password: "wrong"})
	assert.True(t, stdErrors.Is(err, errors.ErrUnauthorized))

	_, err = f.svc.Login(context.Background(), Credentials{Email: "old@example.com", Password: "plain"})
	require.NoError(t, err)

	stored := f.stored(t).Users[0]
	assert.Empty(t, stored.Password)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("plain")))

	_, err = f.svc.Login(context.Background(), Credentials{Email: "old@example.com", Password: "plain"})
	assert.NoError(t, err)
}

func TestApplications_OnlyCallersOwn(t *testing.T) {
	f := newFixture(t)
	ann := f.seedUser(t, "ann@example.com")
	bob := f.seedUser(t, "bob@example.com")
	annApp := f.submit(t, ann)
	f.submit(t, bob)

	apps, err := f.svc.Applications(context.Background(), ann)
	require.NoError(t, err)
	require.Len(t, apps, 1)
	assert.Equal(t, annApp, apps[0].ID)

	_, err = f.svc.Applications(context.Background(), nil)
	assert.True(t, stdErrors.Is(err, errors.ErrUnauthorized))
}

func TestSave_KeepsStoredCredentials(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "ann@example.com")
	f.seedUser(t, "bob@example.com")

	loaded, err := f.svc.Load(context.Background())
	require.NoError(t, err)
	for _, u := range loaded.Users {
		assert.False(t, u.HasCredentials())
	}

	// Admin edits the redacted copy: renames Ann, changes Bob's id, adds Cy.
	loaded.Users[0].Name = "Ann B."
	loaded.Users[1].ID = "u-renamed"
	loaded.Users = append(loaded.Users, models.User{ID: "u-cy", Email: "cy@example.com", Password: "cleartext"})

	saved, err := f.svc.Save(context.Background(), loaded)
	require.NoError(t, err)
	assert.Equal(t, "Ann B.", saved.Users[0].Name)
	for _, u := range saved.Users {
		assert.False(t, u.HasCredentials(), "responses are redacted")
	}

	stored := f.stored(t)
	require.Len(t, stored.Users, 3)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.Users[0].PasswordHash), []byte("pw-ann@example.com")))
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.Users[1].PasswordHash), []byte("pw-bob@example.com")))
	assert.Empty(t, stored.Users[2].Password)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.Users[2].PasswordHash), []byte("cleartext")))

	_, err = f.svc.Save(context.Background(), nil)
	assert.True(t, stdErrors.Is(err, errors.ErrValidation))
}

func TestSave_RejectsInvalidDataset(t *testing.T) {
	app := func(id, status string) models.Application {
		return models.Application{ID: id, Status: status, Requested: "1", Purpose: "p", Term: "1", Income: "1"}
	}
	tests := []struct {
		name string
		ds   *models.Dataset
		want string
	}{
		{
			name: "duplicate email",
			ds: &models.Dataset{Users: []models.User{
				{ID: "u-1", Email: "a@x.io"}, {ID: "u-2", Email: " A@X.IO"},
			}},
			want: "Duplicate user email: a@x.io",
		},
		{
			name: "duplicate application id",
			ds:   &models.Dataset{Applications: []models.Application{app("dup", "pending"), app("dup", "hold")}},
			want: "Duplicate application id: dup",
		},
		{
			name: "missing application id",
			ds:   &models.Dataset{Applications: []models.Application{app(" ", "pending")}},
			want: "Application id is required",
		},
		{
			name: "unknown status",
			ds:   &models.Dataset{Applications: []models.Application{app("app-1", "bogus")}},
			want: `Invalid status "bogus" for application app-1`,
		},
		{
			name: "withdrawal on pending application",
			ds: &models.Dataset{Applications: []models.Application{func() models.Application {
				a := app("app-1", "pending")
				a.WithdrawalRequested = true
				return a
			}()}},
			want: "Withdrawal requires an approved application: app-1",
		},
		{
			name: "completed withdrawal without request",
			ds: &models.Dataset{Applications: []models.Application{func() models.Application {
				a := app("app-1", "approved")
				a.WithdrawalCompleted = true
				return a
			}()}},
			want: "Withdrawal completed without a request: app-1",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.seedUser(t, "ann@example.com")
			before := f.stored(t)
			writes := f.gw.Writes()

			_, err := f.svc.Save(context.Background(), tt.ds)
			require.Error(t, err)
			assert.True(t, stdErrors.Is(err, errors.ErrValidation))
			assert.Equal(t, tt.want, errors.Normalize(err).Message)
			assert.Equal(t, writes, f.gw.Writes())
			assert.Equal(t, before, f.stored(t))
		})
	}
}

func TestSave_AcceptsCompletedWithdrawal(t *testing.T) {
	f := newFixture(t)
	ds := &models.Dataset{Applications: []models.Application{{
		ID: "app-1", Status: models.StatusApproved, WithdrawalRequested: true, WithdrawalCompleted: true,
	}}}

	_, err := f.svc.Save(context.Background(), ds)
	require.NoError(t, err)
	assert.Len(t, f.stored(t).Applications, 1)
}

func TestAuthorizeAdmin(t *testing.T) {
	f := newFixture(t)

	assert.NoError(t, f.svc.AuthorizeAdmin("s3cret"))
	assert.True(t, stdErrors.Is(f.svc.AuthorizeAdmin(""), errors.ErrUnauthorized))
	assert.True(t, stdErrors.Is(f.svc.AuthorizeAdmin("s3cret "), errors.ErrUnauthorized))
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	assert.Error(t, cfg.Validate())

	cfg.AdminSecret = "x"
	assert.NoError(t, cfg.Validate())

	cfg.HashCost = 99
	assert.Error(t, cfg.Validate())
}
