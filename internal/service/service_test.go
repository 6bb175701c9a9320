package service

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/transitdesk/be-concessions/internal/domain"
	"github.com/transitdesk/be-concessions/internal/errors"
	"github.com/transitdesk/be-concessions/internal/logger"
	"github.com/transitdesk/be-concessions/internal/repository"
)

// capturePublisher records every published event for assertions.
type capturePublisher struct {
	mu     sync.Mutex
	events []capturedEvent
}

type capturedEvent struct {
	applicationID  string
	previous, next domain.Status
}

func (p *capturePublisher) StatusChanged(ctx context.Context, app *domain.Application, previous, next domain.Status) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, capturedEvent{applicationID: app.ID, previous: previous, next: next})
}

func (p *capturePublisher) all() []capturedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]capturedEvent(nil), p.events...)
}

type fixture struct {
	svc       *ApplicationService
	store     *repository.MemoryStore
	history   *repository.MemoryHistoryStore
	publisher *capturePublisher
}

func newFixture() *fixture {
	store := repository.NewMemoryStore()
	history := repository.NewMemoryHistoryStore()
	publisher := &capturePublisher{}
	log := logger.New(logger.Config{Level: "error", ServiceName: "test"})
	return &fixture{
		svc:       NewApplicationService(store, history, publisher, log),
		store:     store,
		history:   history,
		publisher: publisher,
	}
}

var (
	student = Actor{Role: domain.RoleStudent, ScopeID: "stu-1"}
	college = Actor{Role: domain.RoleCollege, ScopeID: "col-1"}
	depot   = Actor{Role: domain.RoleDepot, ScopeID: "dep-1"}
)

func createPending(t *testing.T, f *fixture) *domain.Application {
	t.Helper()
	app, err := f.svc.CreateApplication(context.Background(), student, &CreateApplicationRequest{
		CollegeID:  "col-1",
		DepotID:    "dep-1",
		StartPoint: "Central",
		EndPoint:   "North Campus",
	})
	require.NoError(t, err)
	return app
}

func validPayment() *domain.PaymentDetails {
	return &domain.PaymentDetails{
		TransactionID:   "TXN1",
		TransactionDate: "2026-08-01",
		AccountHolder:   "A Student",
		Amount:          15000,
		PaymentMethod:   "upi",
	}
}

func transition(f *fixture, actor Actor, id string, to domain.Status, reason string, payment *domain.PaymentDetails) (*domain.Application, error) {
	return f.svc.RequestTransition(context.Background(), actor, &TransitionRequest{
		ApplicationID: id,
		Status:        to,
		Reason:        reason,
		Payment:       payment,
	})
}

// ── Creation ─────────────────────────────────────────────────────────────────

func TestCreateApplication(t *testing.T) {
	f := newFixture()
	app := createPending(t, f)

	assert.Equal(t, domain.StatusPending, app.Status)
	assert.Equal(t, "stu-1", app.StudentID)

	stored, err := f.store.GetByID(context.Background(), app.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, stored.Status)

	events := f.publisher.all()
	require.Len(t, events, 1)
	assert.Equal(t, domain.StatusPending, events[0].next)
}

func TestCreateApplicationRejectsNonStudents(t *testing.T) {
	f := newFixture()
	for _, actor := range []Actor{college, depot} {
		_, err := f.svc.CreateApplication(context.Background(), actor, &CreateApplicationRequest{
			CollegeID: "col-1", DepotID: "dep-1", StartPoint: "A", EndPoint: "B",
		})
		assert.Equal(t, errors.ErrCodeForbidden, errors.Code(err))
	}
}

func TestCreateApplicationValidatesFields(t *testing.T) {
	f := newFixture()
	tests := []struct {
		name string
		req  CreateApplicationRequest
	}{
		{"missing college", CreateApplicationRequest{DepotID: "d", StartPoint: "A", EndPoint: "B"}},
		{"missing depot", CreateApplicationRequest{CollegeID: "c", StartPoint: "A", EndPoint: "B"}},
		{"missing start", CreateApplicationRequest{CollegeID: "c", DepotID: "d", EndPoint: "B"}},
		{"missing end", CreateApplicationRequest{CollegeID: "c", DepotID: "d", StartPoint: "A"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateApplication(context.Background(), student, &tt.req)
			assert.Equal(t, errors.ErrCodeInvalidInput, errors.Code(err))
		})
	}
}

// ── Full lifecycle ───────────────────────────────────────────────────────────

func TestFullLifecycleToIssued(t *testing.T) {
	f := newFixture()
	app := createPending(t, f)

	app, err := transition(f, college, app.ID, domain.StatusCollegeVerified, "", nil)
	require.NoError(t, err)
	require.NotNil(t, app.CollegeVerifiedAt)

	app, err = transition(f, depot, app.ID, domain.StatusDepotApproved, "", nil)
	require.NoError(t, err)
	require.NotNil(t, app.DepotApprovedAt)

	app, err = transition(f, student, app.ID, domain.StatusPaymentPending, "", validPayment())
	require.NoError(t, err)
	require.NotNil(t, app.Payment)
	assert.Equal(t, "TXN1", app.Payment.TransactionID)
	assert.Nil(t, app.PaymentVerifiedAt)

	app, err = transition(f, depot, app.ID, domain.StatusPaymentVerified, "", nil)
	require.NoError(t, err)
	require.NotNil(t, app.PaymentVerifiedAt)

	app, err = transition(f, depot, app.ID, domain.StatusIssued, "", nil)
	require.NoError(t, err)
	require.NotNil(t, app.IssuedAt)
	assert.True(t, app.IsTerminal())

	// Milestones are monotonically ordered.
	assert.False(t, app.CollegeVerifiedAt.Before(app.ApplicationDate))
	assert.False(t, app.DepotApprovedAt.Before(*app.CollegeVerifiedAt))
	assert.False(t, app.PaymentVerifiedAt.Before(*app.DepotApprovedAt))
	assert.False(t, app.IssuedAt.Before(*app.PaymentVerifiedAt))

	// Payment snapshot persists through to issued.
	assert.Equal(t, int64(15000), app.Payment.Amount)

	// One event per state change: created + 5 transitions.
	assert.Len(t, f.publisher.all(), 6)

	// Audit trail records the 5 transitions in order.
	entries, err := f.history.GetByApplicationID(context.Background(), app.ID)
	require.NoError(t, err)
	require.Len(t, entries, 5)
	assert.Equal(t, domain.StatusPending, entries[0].StatusBefore)
	assert.Equal(t, domain.StatusIssued, entries[4].StatusAfter)
}

func TestTerminalStatesRejectAllTransitions(t *testing.T) {
	f := newFixture()
	app := createPending(t, f)
	_, err := transition(f, college, app.ID, domain.StatusCollegeRejected, "incomplete documents", nil)
	require.NoError(t, err)

	for _, attempt := range []struct {
		actor Actor
		to    domain.Status
	}{
		{college, domain.StatusCollegeVerified},
		{depot, domain.StatusDepotApproved},
		{student, domain.StatusPaymentPending},
	} {
		_, err := transition(f, attempt.actor, app.ID, attempt.to, "", validPayment())
		assert.Equal(t, errors.ErrCodeInvalidTransition, errors.Code(err))
	}

	stored, err := f.store.GetByID(context.Background(), app.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCollegeRejected, stored.Status)
}

// ── Rejection handling ───────────────────────────────────────────────────────

func TestRejectionRequiresReason(t *testing.T) {
	f := newFixture()
	app := createPending(t, f)

	for _, reason := range []string{"", "   "} {
		_, err := transition(f, college, app.ID, domain.StatusCollegeRejected, reason, nil)
		assert.Equal(t, errors.ErrCodeReasonRequired, errors.Code(err))
	}

	// No mutation happened.
	stored, err := f.store.GetByID(context.Background(), app.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, stored.Status)
	assert.Nil(t, stored.RejectionReason)
	assert.Empty(t, f.publisher.all()[1:])
}

func TestDepotRejectionStampsDecisionMilestone(t *testing.T) {
	f := newFixture()
	app := createPending(t, f)
	_, err := transition(f, college, app.ID, domain.StatusCollegeVerified, "", nil)
	require.NoError(t, err)

	app, err = transition(f, depot, app.ID, domain.StatusDepotRejected, "route not serviced", nil)
	require.NoError(t, err)

	// The depot milestone records "decision made", so it is stamped on
	// rejection too.
	require.NotNil(t, app.DepotApprovedAt)
	require.NotNil(t, app.RejectionReason)
	assert.Equal(t, "route not serviced", *app.RejectionReason)
	assert.True(t, app.IsTerminal())
}

// ── Payment handling ─────────────────────────────────────────────────────────

func TestPaymentSubmissionValidation(t *testing.T) {
	f := newFixture()
	app := createPending(t, f)
	_, err := transition(f, college, app.ID, domain.StatusCollegeVerified, "", nil)
	require.NoError(t, err)
	_, err = transition(f, depot, app.ID, domain.StatusDepotApproved, "", nil)
	require.NoError(t, err)

	tests := []struct {
		name    string
		payment *domain.PaymentDetails
	}{
		{"nil payload", nil},
		{"zero amount", &domain.PaymentDetails{TransactionID: "T", TransactionDate: "2026-08-01", AccountHolder: "A", PaymentMethod: "upi"}},
		{"missing transaction id", &domain.PaymentDetails{TransactionDate: "2026-08-01", AccountHolder: "A", Amount: 100, PaymentMethod: "upi"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := transition(f, student, app.ID, domain.StatusPaymentPending, "", tt.payment)
			assert.Equal(t, errors.ErrCodeInvalidPayment, errors.Code(err))
		})
	}

	stored, err := f.store.GetByID(context.Background(), app.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDepotApproved, stored.Status)
	assert.Nil(t, stored.Payment)
}

// ── Authorization ────────────────────────────────────────────────────────────

func TestScopeMismatchIsForbidden(t *testing.T) {
	f := newFixture()
	app := createPending(t, f)

	otherCollege := Actor{Role: domain.RoleCollege, ScopeID: "col-2"}
	otherDepot := Actor{Role: domain.RoleDepot, ScopeID: "dep-2"}

	_, err := transition(f, otherCollege, app.ID, domain.StatusCollegeVerified, "", nil)
	assert.Equal(t, errors.ErrCodeForbidden, errors.Code(err))

	_, err = transition(f, otherDepot, app.ID, domain.StatusDepotApproved, "", nil)
	assert.Equal(t, errors.ErrCodeForbidden, errors.Code(err))

	stored, err := f.store.GetByID(context.Background(), app.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, stored.Status)
}

func TestRoleGating(t *testing.T) {
	f := newFixture()
	app := createPending(t, f)

	// Right scope, wrong stage for the role.
	_, err := transition(f, depot, app.ID, domain.StatusDepotApproved, "", nil)
	assert.Equal(t, errors.ErrCodeInvalidTransition, errors.Code(err))

	_, err = transition(f, student, app.ID, domain.StatusPaymentPending, "", validPayment())
	assert.Equal(t, errors.ErrCodeInvalidTransition, errors.Code(err))

	// College cannot skip its own stage.
	_, err = transition(f, college, app.ID, domain.StatusDepotApproved, "", nil)
	assert.Equal(t, errors.ErrCodeInvalidTransition, errors.Code(err))
}

func TestTransitionUnknownApplication(t *testing.T) {
	f := newFixture()
	_, err := transition(f, college, "missing-id", domain.StatusCollegeVerified, "", nil)
	assert.Equal(t, errors.ErrCodeNotFound, errors.Code(err))
}

// ── Failure isolation ────────────────────────────────────────────────────────

func TestPersistenceFailurePropagatesWithoutSideEffects(t *testing.T) {
	store := &MockStore{}
	history := repository.NewMemoryHistoryStore()
	publisher := &capturePublisher{}
	log := logger.New(logger.Config{Level: "error", ServiceName: "test"})
	svc := NewApplicationService(store, history, publisher, log)

	app := domain.NewApplication("stu-1", "col-1", "dep-1", "A", "B", false)
	store.On("GetByID", mock.Anything, app.ID).Return(app, nil)
	store.On("ApplyTransition", mock.Anything, mock.Anything, domain.StatusPending).
		Return(errors.Wrap(fmt.Errorf("connection reset"), errors.ErrCodeInternal, "failed to apply transition"))

	_, err := svc.RequestTransition(context.Background(), college, &TransitionRequest{
		ApplicationID: app.ID,
		Status:        domain.StatusCollegeVerified,
	})
	assert.Equal(t, errors.ErrCodeInternal, errors.Code(err))

	// Neither notification nor audit fired for the failed write.
	assert.Empty(t, publisher.all())
	entries, _ := history.GetByApplicationID(context.Background(), app.ID)
	assert.Empty(t, entries)
}

func TestHistoryFailureDoesNotFailTransition(t *testing.T) {
	store := repository.NewMemoryStore()
	history := &failingHistory{}
	publisher := &capturePublisher{}
	log := logger.New(logger.Config{Level: "error", ServiceName: "test"})
	svc := NewApplicationService(store, history, publisher, log)

	app := domain.NewApplication("stu-1", "col-1", "dep-1", "A", "B", false)
	require.NoError(t, store.Create(context.Background(), app))

	updated, err := svc.RequestTransition(context.Background(), college, &TransitionRequest{
		ApplicationID: app.ID,
		Status:        domain.StatusCollegeVerified,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCollegeVerified, updated.Status)
	assert.Len(t, publisher.all(), 1)
}

type failingHistory struct{}

func (failingHistory) Append(ctx context.Context, entry *repository.StatusHistoryEntry) error {
	return fmt.Errorf("audit table unavailable")
}

func (failingHistory) GetByApplicationID(ctx context.Context, applicationID string) ([]*repository.StatusHistoryEntry, error) {
	return nil, nil
}

// ── Concurrency ──────────────────────────────────────────────────────────────

func TestConcurrentTransitionsHaveOneWinner(t *testing.T) {
	f := newFixture()
	app := createPending(t, f)
	_, err := transition(f, college, app.ID, domain.StatusCollegeVerified, "", nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]error, 2)

	wg.Add(2)
	go func() {
		defer wg.Done()
		_, results[0] = transition(f, depot, app.ID, domain.StatusDepotApproved, "", nil)
	}()
	go func() {
		defer wg.Done()
		_, results[1] = transition(f, depot, app.ID, domain.StatusDepotRejected, "duplicate submission", nil)
	}()
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
			continue
		}
		code := errors.Code(err)
		assert.Contains(t, []string{errors.ErrCodeConflict, errors.ErrCodeInvalidTransition}, code)
	}
	assert.Equal(t, 1, succeeded, "exactly one concurrent transition must win")

	stored, err := f.store.GetByID(context.Background(), app.ID)
	require.NoError(t, err)
	assert.Contains(t, []domain.Status{domain.StatusDepotApproved, domain.StatusDepotRejected}, stored.Status)
}

// ── Reads ────────────────────────────────────────────────────────────────────

func TestGetApplicationScopeChecked(t *testing.T) {
	f := newFixture()
	app := createPending(t, f)

	got, err := f.svc.GetApplication(context.Background(), student, app.ID)
	require.NoError(t, err)
	assert.Equal(t, app.ID, got.ID)

	_, err = f.svc.GetApplication(context.Background(), Actor{Role: domain.RoleStudent, ScopeID: "stu-9"}, app.ID)
	assert.Equal(t, errors.ErrCodeForbidden, errors.Code(err))
}

func TestListApplicationsScopedToActor(t *testing.T) {
	f := newFixture()
	createPending(t, f)
	createPending(t, f)

	other := Actor{Role: domain.RoleStudent, ScopeID: "stu-2"}
	_, err := f.svc.CreateApplication(context.Background(), other, &CreateApplicationRequest{
		CollegeID: "col-1", DepotID: "dep-9", StartPoint: "A", EndPoint: "B",
	})
	require.NoError(t, err)

	apps, total, err := f.svc.ListApplications(context.Background(), student, nil, 1, 50)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, apps, 2)

	apps, total, err = f.svc.ListApplications(context.Background(), college, nil, 1, 50)
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	assert.Len(t, apps, 3)

	pending := domain.StatusPending
	apps, _, err = f.svc.ListApplications(context.Background(), depot, &pending, 1, 50)
	require.NoError(t, err)
	assert.Len(t, apps, 2)
}
