package lifecycle

import (
	"context"
	stdErrors "errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"loan-club/internal/common/errors"
	"loan-club/internal/common/logger"
	"loan-club/internal/models"
	"loan-club/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// ==========================
// Test Helper Functions
// ==========================

// countingGateway records writes so tests can assert nothing was persisted.
type countingGateway struct {
	store.Gateway
	mu     sync.Mutex
	writes int
}

func (c *countingGateway) Write(ctx context.Context, ds *models.Dataset, token string) (*models.Dataset, string, error) {
	c.mu.Lock()
	c.writes++
	c.mu.Unlock()
	return c.Gateway.Write(ctx, ds, token)
}

func (c *countingGateway) Writes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writes
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []models.Application
	users []*models.User
}

func (r *recordingNotifier) NotifyDecision(ctx context.Context, app models.Application, owner *models.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, app)
	r.users = append(r.users, owner)
}

type fixture struct {
	svc      *Service
	gw       *countingGateway
	store    *store.Store
	notifier *recordingNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gw := &countingGateway{Gateway: store.NewFileGateway(filepath.Join(t.TempDir(), "data.json"))}
	st := store.New(gw, store.Options{CreateIfMissing: true}, logger.NewTestLogger(t), nil)
	n := &recordingNotifier{}

	svc := NewService(ServiceDependencies{
		Store:    st,
		Notifier: n,
		Logger:   logger.NewTestLogger(t),
	}, &Config{AdminSecret: "s3cret", HashCost: bcrypt.MinCost})

	seq := 0
	svc.newID = func(prefix string) string {
		seq++
		return fmt.Sprintf("%s-%d", prefix, seq)
	}
	svc.now = func() time.Time { return time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC) }

	return &fixture{svc: svc, gw: gw, store: st, notifier: n}
}

func validApplication() *models.Application {
	return &models.Application{Requested: "5000", Purpose: "car repair", Term: "12", Income: "2500"}
}

// seedUser signs up a user and returns basic-auth style credentials.
func (f *fixture) seedUser(t *testing.T, email string) *Credentials {
	t.Helper()
	_, err := f.svc.Signup(context.Background(), SignupInput{Email: email, Name: "Ann", Password: "pw-" + email})
	require.NoError(t, err)
	return &Credentials{Email: email, Password: "pw-" + email}
}

func (f *fixture) submit(t *testing.T, creds *Credentials) string {
	t.Helper()
	ds, err := f.svc.Submit(context.Background(), SubmitInput{Application: validApplication(), Credentials: creds})
	require.NoError(t, err)
	return ds.Applications[len(ds.Applications)-1].ID
}

func (f *fixture) stored(t *testing.T) *models.Dataset {
	t.Helper()
	ds, err := f.store.Load(context.Background())
	require.NoError(t, err)
	return ds
}

// ==========================
// Submit
// ==========================

func TestSubmit_AppendsPendingApplication(t *testing.T) {
	f := newFixture(t)
	creds := f.seedUser(t, "ann@example.com")

	before := len(f.stored(t).Applications)
	app := validApplication()
	app.Status = models.StatusApproved
	app.AdminComment = "self approved"

	ds, err := f.svc.Submit(context.Background(), SubmitInput{Application: app, Credentials: creds})
	require.NoError(t, err)

	require.Len(t, ds.Applications, before+1)
	got := ds.Applications[before]
	assert.Equal(t, models.StatusPending, got.Status)
	assert.Empty(t, got.AdminComment)
	assert.Equal(t, "app-2", got.ID)
	assert.Equal(t, "u-1", got.UserID)
	assert.Equal(t, "Ann", got.UserName)
	assert.Equal(t, "ann@example.com", got.UserEmail)
	assert.Equal(t, "2024-03-01T09:30:00Z", got.CreatedAt)

	for _, u := range ds.Users {
		assert.Empty(t, u.PasswordHash, "responses are redacted")
	}
}

func TestSubmit_WithBodyUserSignsUp(t *testing.T) {
	f := newFixture(t)

	ds, err := f.svc.Submit(context.Background(), SubmitInput{
		Application: validApplication(),
		User:        &SignupInput{Email: "Bob@Example.com", Name: "Bob", Password: "hunter2"},
	})
	require.NoError(t, err)
	require.Len(t, ds.Users, 1)
	assert.Equal(t, "bob@example.com", ds.Users[0].Email)
	assert.Equal(t, ds.Users[0].ID, ds.Applications[0].UserID)

	stored := f.stored(t)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.Users[0].PasswordHash), []byte("hunter2")))

	// Same user again with the right password does not duplicate the account.
	ds, err = f.svc.Submit(context.Background(), SubmitInput{
		Application: validApplication(),
		User:        &SignupInput{Email: "bob@example.com", Password: "hunter2"},
	})
	require.NoError(t, err)
	assert.Len(t, ds.Users, 1)
	assert.Len(t, ds.Applications, 2)

	_, err = f.svc.Submit(context.Background(), SubmitInput{
		Application: validApplication(),
		User:        &SignupInput{Email: "bob@example.com", Password: "wrong"},
	})
	assert.True(t, stdErrors.Is(err, errors.ErrUnauthorized))
}

func TestSubmit_ClientIDKeptUnlessTaken(t *testing.T) {
	f := newFixture(t)
	creds := f.seedUser(t, "ann@example.com")

	app := validApplication()
	app.ID = "app-custom"
	ds, err := f.svc.Submit(context.Background(), SubmitInput{Application: app, Credentials: creds})
	require.NoError(t, err)
	assert.Equal(t, "app-custom", ds.Applications[0].ID)

	ds, err = f.svc.Submit(context.Background(), SubmitInput{Application: app, Credentials: creds})
	require.NoError(t, err)
	assert.NotEqual(t, "app-custom", ds.Applications[1].ID)
}

func TestSubmit_ValidationHappensBeforeWrite(t *testing.T) {
	tests := []struct {
		name string
		in   SubmitInput
		want error
		msg  string
	}{
		{"missing application", SubmitInput{Credentials: &Credentials{Email: "a@b.co", Password: "x"}}, errors.ErrValidation, "Missing application object"},
		{"empty purpose", SubmitInput{Application: &models.Application{Requested: "1", Term: "2", Income: "3"}, Credentials: &Credentials{Email: "a@b.co", Password: "x"}}, errors.ErrValidation, "purpose"},
		{"no identity", SubmitInput{Application: validApplication()}, errors.ErrUnauthorized, "Authentication required"},
		{"bad signup email", SubmitInput{Application: validApplication(), User: &SignupInput{Email: "nope", Password: "x"}}, errors.ErrValidation, "Invalid email"},
		{"unknown user", SubmitInput{Application: validApplication(), Credentials: &Credentials{Email: "ghost@b.co", Password: "x"}}, errors.ErrUnauthorized, "Invalid email or password"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.svc.Submit(context.Background(), tt.in)
			require.Error(t, err)
			assert.True(t, stdErrors.Is(err, tt.want), "got %v", err)
			assert.Contains(t, err.Error(), tt.msg)
			assert.Equal(t, 0, f.gw.Writes())
		})
	}
}

// ==========================
// Decide
// ==========================

func TestDecide_ApproveSetsFieldsAndHistory(t *testing.T) {
	f := newFixture(t)
	id := f.submit(t, f.seedUser(t, "ann@example.com"))

	ds, err := f.svc.Decide(context.Background(), DecisionInput{ID: id, Status: models.StatusApproved, Comment: "  looks good "})
	require.NoError(t, err)

	app, ok := ds.FindApplication(id)
	require.True(t, ok)
	assert.Equal(t, models.StatusApproved, app.Status)
	assert.Equal(t, "looks good", app.AdminComment)
	assert.Equal(t, "2024-03-01T09:30:00Z", app.ApprovedAt)
	assert.Equal(t, app.AdminAt, app.AdminUpdatedAt)
	require.Len(t, app.AdminHistory, 1)
	assert.Equal(t, models.AdminHistoryEntry{Action: models.StatusApproved, Comment: "looks good", At: "2024-03-01T09:30:00Z"}, app.AdminHistory[0])

	require.Len(t, f.notifier.calls, 1)
	assert.Equal(t, id, f.notifier.calls[0].ID)
	assert.Equal(t, "ann@example.com", f.notifier.users[0].Email)
	assert.Empty(t, f.notifier.users[0].PasswordHash)
}

func TestDecide_EmptyCommentLeavesDatasetUnchanged(t *testing.T) {
	f := newFixture(t)
	id := f.submit(t, f.seedUser(t, "ann@example.com"))
	before := f.stored(t)
	writes := f.gw.Writes()

	for _, status := range []string{models.StatusRejected, models.StatusHold, models.StatusApproved} {
		_, err := f.svc.Decide(context.Background(), DecisionInput{ID: id, Status: status, Comment: "   "})
		assert.True(t, stdErrors.Is(err, errors.ErrValidation))
	}

	assert.Equal(t, writes, f.gw.Writes())
	assert.Equal(t, before, f.stored(t))
	assert.Empty(t, f.notifier.calls)
}

func TestDecide_HoldIsReversible(t *testing.T) {
	f := newFixture(t)
	id := f.submit(t, f.seedUser(t, "ann@example.com"))

	_, err := f.svc.Decide(context.Background(), DecisionInput{ID: id, Status: models.StatusHold, Comment: "need payslips"})
	require.NoError(t, err)
	ds, err := f.svc.Decide(context.Background(), DecisionInput{ID: id, Status: models.StatusRejected, Comment: "no payslips"})
	require.NoError(t, err)

	app, _ := ds.FindApplication(id)
	assert.Equal(t, models.StatusRejected, app.Status)
	assert.NotEmpty(t, app.HoldAt)
	assert.NotEmpty(t, app.RejectedAt)
	assert.Len(t, app.AdminHistory, 2)
}

func TestDecide_Errors(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Decide(context.Background(), DecisionInput{ID: "missing", Status: models.StatusApproved, Comment: "ok"})
	assert.True(t, stdErrors.Is(err, errors.ErrNotFound))

	_, err = f.svc.Decide(context.Background(), DecisionInput{ID: "x", Status: "deleted", Comment: "ok"})
	assert.True(t, stdErrors.Is(err, errors.ErrValidation))

	_, err = f.svc.Decide(context.Background(), DecisionInput{Status: models.StatusApproved, Comment: "ok"})
	assert.True(t, stdErrors.Is(err, errors.ErrValidation))
}

// ==========================
// Withdrawal
// ==========================

func TestRequestWithdrawal_Guards(t *testing.T) {
	f := newFixture(t)
	ann := f.seedUser(t, "ann@example.com")
	bob := f.seedUser(t, "bob@example.com")
	id := f.submit(t, ann)
	ctx := context.Background()

	_, err := f.svc.RequestWithdrawal(ctx, ann, id)
	assert.True(t, stdErrors.Is(err, errors.ErrInvalidTransition), "pending applications cannot be withdrawn")

	_, err = f.svc.Decide(ctx, DecisionInput{ID: id, Status: models.StatusApproved, Comment: "ok"})
	require.NoError(t, err)

	_, err = f.svc.RequestWithdrawal(ctx, bob, id)
	assert.True(t, stdErrors.Is(err, errors.ErrForbidden))

	_, err = f.svc.RequestWithdrawal(ctx, &Credentials{Email: "ann@example.com", Password: "bad"}, id)
	assert.True(t, stdErrors.Is(err, errors.ErrUnauthorized))

	ds, err := f.svc.RequestWithdrawal(ctx, ann, id)
	require.NoError(t, err)
	app, _ := ds.FindApplication(id)
	assert.True(t, app.WithdrawalRequested)
	assert.Equal(t, "2024-03-01T09:30:00Z", app.WithdrawalAt)

	_, err = f.svc.RequestWithdrawal(ctx, ann, id)
	assert.True(t, stdErrors.Is(err, errors.ErrInvalidTransition))

	_, err = f.svc.Decide(ctx, DecisionInput{ID: id, Status: models.StatusRejected, Comment: "changed my mind"})
	assert.True(t, stdErrors.Is(err, errors.ErrInvalidTransition), "status is locked after a withdrawal request")

	_, err = f.svc.RequestWithdrawal(ctx, ann, "missing")
	assert.True(t, stdErrors.Is(err, errors.ErrNotFound))
}

func TestCompleteWithdrawal(t *testing.T) {
	f := newFixture(t)
	ann := f.seedUser(t, "ann@example.com")
	id := f.submit(t, ann)
	ctx := context.Background()

	_, err := f.svc.CompleteWithdrawal(ctx, id)
	assert.True(t, stdErrors.Is(err, errors.ErrInvalidTransition), "requires a prior request")

	_, err = f.svc.Decide(ctx, DecisionInput{ID: id, Status: models.StatusApproved, Comment: "ok"})
	require.NoError(t, err)
	_, err = f.svc.RequestWithdrawal(ctx, ann, id)
	require.NoError(t, err)

	ds, err := f.svc.CompleteWithdrawal(ctx, id)
	require.NoError(t, err)
	app, _ := ds.FindApplication(id)
	assert.True(t, app.WithdrawalCompleted)
	assert.NotEmpty(t, app.WithdrawalCompletedAt)
	require.Len(t, app.AdminHistory, 2)
	assert.Equal(t, models.ActionWithdrawalCompleted, app.AdminHistory[1].Action)

	_, err = f.svc.CompleteWithdrawal(ctx, id)
	assert.True(t, stdErrors.Is(err, errors.ErrInvalidTransition))
}

// ==========================
// Concurrency
// ==========================

func TestConcurrentDecisionsAreBothKept(t *testing.T) {
	f := newFixture(t)
	creds := f.seedUser(t, "ann@example.com")
	first := f.submit(t, creds)
	second := f.submit(t, creds)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, id := range []string{first, second} {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_, errs[i] = f.svc.Decide(context.Background(), DecisionInput{ID: id, Status: models.StatusApproved, Comment: "ok"})
		}(i, id)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			// Two racing retries may both lose; the conflict must surface, not vanish.
			assert.True(t, stdErrors.Is(err, errors.ErrVersionConflict))
		}
	}

	ds := f.stored(t)
	for i, id := range []string{first, second} {
		app, _ := ds.FindApplication(id)
		if errs[i] == nil {
			assert.Equal(t, models.StatusApproved, app.Status)
		}
	}
}
