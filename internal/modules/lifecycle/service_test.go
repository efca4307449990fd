package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opsconsole/internal/modules/events"
	"opsconsole/internal/modules/pricing"
)

type recordingSink struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordingSink) Append(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingSink) kinds() []events.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Kind, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Kind)
	}
	return out
}

type recordingNotifier struct {
	mu  sync.Mutex
	ids []string
}

func (n *recordingNotifier) Dispatch(_ string, id string, _ map[string]any) {
	n.mu.Lock()
	n.ids = append(n.ids, id)
	n.mu.Unlock()
}

type fixedRoute struct{}

func (fixedRoute) GetTravelEstimate(_ context.Context, _, _ string) (time.Duration, string, error) {
	return 25*time.Minute + 20*time.Second, "9.4 km", nil
}

type stepClock struct {
	mu   sync.Mutex
	t    time.Time
	step time.Duration
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(c.step)
	return c.t
}

type fixture struct {
	svc    *Service
	store  *MemoryStore
	sink   *recordingSink
	notify *recordingNotifier
	guard  *LocalGuard
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := &stepClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC), step: time.Second}
	f := &fixture{
		store:  NewMemoryStore().WithClock(clock.Now),
		sink:   &recordingSink{},
		notify: &recordingNotifier{},
		guard:  NewLocalGuard(),
	}
	f.svc = NewService(Deps{
		Store:    f.store,
		Guard:    f.guard,
		Events:   f.sink,
		Notifier: f.notify,
		Pricing:  pricing.NewService(),
		Routes:   fixedRoute{},
		Timeout:  time.Second,
	})
	return f
}

func (f *fixture) createPickDrop(t *testing.T, code int64) *Record {
	t.Helper()
	ctx := context.Background()
	rec, err := f.svc.Create(ctx, CreateCommand{
		Domain: DomainPickDrop,
		Fields: map[string]any{"senderLocation": "A", "receiverLocation": "B"},
		Actor:  Actor{UID: "u1", Name: "Asha"},
	})
	require.NoError(t, err)
	cfg, _ := LookupDomain(string(DomainPickDrop))
	require.NoError(t, f.store.Update(ctx, cfg.Ongoing, rec.ID, map[string]any{FieldDeliveryCode: code}, rec.Version()))
	rec, err = f.store.Get(ctx, cfg.Ongoing, rec.ID)
	require.NoError(t, err)
	return rec
}

func ptr(f float64) *float64 { return &f }

func TestCreateDefaults(t *testing.T) {
	f := newFixture(t)
	rec, err := f.svc.Create(context.Background(), CreateCommand{
		Domain: DomainPickDrop,
		Fields: map[string]any{
			"senderLocation":   map[string]any{"address": "A"},
			"receiverLocation": "B",
			"status":           "completed",
			"deliveredAt":      "2020-01-01T00:00:00Z",
			"deliveryFee":      int64(12000),
		},
		Actor: Actor{UID: "u1", Name: "Asha"},
	})
	require.NoError(t, err)

	assert.Len(t, rec.ID, 32)
	assert.Equal(t, StatusPending, rec.Status())
	assert.Equal(t, int64(1), rec.Version())
	assert.False(t, rec.CreatedAt().IsZero())
	assert.True(t, rec.DeliveredAt().IsZero(), "client supplied deliveredAt must be dropped")

	code, ok := rec.DeliveryCode()
	require.True(t, ok)
	assert.GreaterOrEqual(t, code, int64(1000))
	assert.LessOrEqual(t, code, int64(9999))

	assert.Equal(t, int64(2400), rec.Fields["platformFee"])
	assert.Equal(t, int64(9600), rec.Fields["earning"])
	assert.Equal(t, int64(25), rec.Fields["routeMinutes"])
	assert.Equal(t, "9.4 km", rec.Fields["routeDistance"])

	assert.Equal(t, []events.Kind{events.KindCreate}, f.sink.kinds())
	assert.Equal(t, []string{rec.ID}, f.notify.ids)
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, CreateCommand{
		Domain: DomainHireSkills,
		Fields: map[string]any{"customer": map[string]any{"name": "Ravi"}, "skill": "  "},
	})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "skill", verr.Field)

	_, err = f.svc.Create(ctx, CreateCommand{
		Domain: DomainEstoreOrders,
		Fields: map[string]any{"customer": "c1", "subtotal": "abc"},
	})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "subtotal", verr.Field)

	_, err = f.svc.Create(ctx, CreateCommand{Domain: "laundry"})
	assert.ErrorIs(t, err, ErrUnknownDomain)
	assert.Empty(t, f.notify.ids)
}

func TestCreateHireSkillsHasNoDeliveryCode(t *testing.T) {
	f := newFixture(t)
	rec, err := f.svc.Create(context.Background(), CreateCommand{
		Domain: DomainHireSkills,
		Fields: map[string]any{"customer": "c1", "skill": "plumber", "subtotal": int64(20000)},
	})
	require.NoError(t, err)
	_, ok := rec.DeliveryCode()
	assert.False(t, ok)
	assert.Equal(t, int64(3000), rec.Fields["platformFee"])
}

func TestTransitionPatchesOnlyStatus(t *testing.T) {
	f := newFixture(t)
	before := f.createPickDrop(t, 4821)

	res, err := f.svc.TransitionStatus(context.Background(), TransitionCommand{
		Domain:   DomainPickDrop,
		RecordID: before.ID,
		Status:   "out for delivery",
	})
	require.NoError(t, err)
	assert.False(t, res.Relocated)
	assert.Equal(t, "pickDropRequests", res.Collection)

	after := res.Record
	assert.Equal(t, "Out for Delivery", after.Status())
	assert.Equal(t, before.Version()+1, after.Version())
	for k, v := range before.Fields {
		switch k {
		case FieldStatus, FieldVersion, FieldUpdatedAt:
			continue
		}
		assert.Equal(t, v, after.Fields[k], k)
	}
	assert.Len(t, after.Fields, len(before.Fields))
}

func TestTransitionInvalidStatus(t *testing.T) {
	f := newFixture(t)
	rec := f.createPickDrop(t, 1111)

	_, err := f.svc.TransitionStatus(context.Background(), TransitionCommand{
		Domain: DomainPickDrop, RecordID: rec.ID, Status: "Worker Assigned",
	})
	assert.ErrorIs(t, err, ErrInvalidStatus)

	got, err := f.svc.Get(context.Background(), DomainPickDrop, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.Fields, got.Fields)
}

func TestTransitionNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.TransitionStatus(context.Background(), TransitionCommand{
		Domain: DomainEstoreOrders, RecordID: "missing", Status: "bogus",
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTransitionCompletedRequiresComplete(t *testing.T) {
	f := newFixture(t)
	rec := f.createPickDrop(t, 1111)

	_, err := f.svc.TransitionStatus(context.Background(), TransitionCommand{
		Domain: DomainPickDrop, RecordID: rec.ID, Status: "Completed",
	})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "status", verr.Field)

	_, err = f.svc.Get(context.Background(), DomainPickDrop, rec.ID)
	assert.NoError(t, err)

	hire, err := f.svc.Create(context.Background(), CreateCommand{
		Domain: DomainHireSkills,
		Fields: map[string]any{"customer": "c1", "skill": "plumber"},
	})
	require.NoError(t, err)
	_, err = f.svc.TransitionStatus(context.Background(), TransitionCommand{
		Domain: DomainHireSkills, RecordID: hire.ID, Status: "completed",
	})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "status", verr.Field)
	_, err = f.store.Get(context.Background(), "hireSkillsHistory", hire.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTransitionCancelRelocates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec := f.createPickDrop(t, 1111)

	res, err := f.svc.TransitionStatus(ctx, TransitionCommand{
		Domain:   DomainPickDrop,
		RecordID: rec.ID,
		Status:   "Cancelled",
		Actor:    Actor{UID: "op1", Name: "Meera", Image: "https://img/meera.png"},
	})
	require.NoError(t, err)
	assert.True(t, res.Relocated)
	assert.Equal(t, "pickDropCancelled", res.Collection)
	assert.Equal(t, rec.ID, res.Record.ID)
	assert.Equal(t, StatusCancelled, res.Record.Status())
	assert.Equal(t, map[string]any{"uid": "op1", "name": "Meera", "image": "https://img/meera.png"}, res.Record.Fields[FieldActor])
	assert.False(t, res.Record.CancelledAt().IsZero())
	assert.Equal(t, "A", res.Record.Fields["senderLocation"])

	_, err = f.store.Get(ctx, "pickDropRequests", rec.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, []events.Kind{events.KindCreate, events.KindCancel}, f.sink.kinds())
}

func TestPatchStatusNeverRelocates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec := f.createPickDrop(t, 1111)

	res, err := f.svc.PatchStatus(ctx, NoteCommand{Domain: DomainPickDrop, RecordID: rec.ID, Note: "Completed"})
	require.NoError(t, err)
	assert.False(t, res.Relocated)
	assert.Equal(t, "Completed", res.Record.Status())

	_, err = f.store.Get(ctx, "pickDropHistory", rec.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.PatchStatus(ctx, NoteCommand{Domain: DomainPickDrop, RecordID: rec.ID, Note: "   "})
	assert.ErrorIs(t, err, ErrValidationFailed)
}

func TestCompleteConfirmationCodeGate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec := f.createPickDrop(t, 4821)

	_, err := f.svc.Complete(ctx, CompleteCommand{
		Domain: DomainPickDrop, RecordID: rec.ID,
		Completion: Completion{ConfirmationCode: "4820"},
	})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "confirmationCode", verr.Field)

	still, err := f.svc.Get(ctx, DomainPickDrop, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.Fields, still.Fields)

	res, err := f.svc.Complete(ctx, CompleteCommand{
		Domain: DomainPickDrop, RecordID: rec.ID,
		Completion: Completion{ConfirmationCode: " 04821 ", DriverName: "Kiran", DriverContact: "98450"},
		Actor:      Actor{Name: "Meera"},
	})
	require.NoError(t, err)
	assert.True(t, res.Relocated)
	assert.Equal(t, StatusCompleted, res.Record.Status())
	assert.Equal(t, "Kiran", res.Record.Fields["driverName"])
	assert.NotContains(t, res.Record.Fields, "confirmationCode")

	_, err = f.svc.Get(ctx, DomainPickDrop, rec.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCompleteDraftValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		domain Domain
		draft  Completion
		field  string
	}{
		{"missing code", DomainPickDrop, Completion{}, "confirmationCode"},
		{"non numeric code", DomainEstoreOrders, Completion{ConfirmationCode: "12a4"}, "confirmationCode"},
		{"missing fee", DomainHireSkills, Completion{WorkerEarning: ptr(100)}, "platformFee"},
		{"missing earning", DomainHireSkills, Completion{PlatformFee: ptr(0)}, "workerEarning"},
		{"negative earning", DomainHireSkills, Completion{PlatformFee: ptr(10), WorkerEarning: ptr(-1)}, "workerEarning"},
		{"rating out of range", DomainHireSkills, Completion{PlatformFee: ptr(10), WorkerEarning: ptr(90), WorkerRating: 6}, "workerRating"},
		{"bad locality", DomainHireSkills, Completion{PlatformFee: ptr(10), WorkerEarning: ptr(90), LocalNonLocal: "abroad"}, "localNonLocal"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Complete(ctx, CompleteCommand{Domain: tc.domain, RecordID: "any", Completion: tc.draft})
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.field, verr.Field)
		})
	}
}

func TestCompleteHireSkillsAttachesMetadata(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec, err := f.svc.Create(ctx, CreateCommand{
		Domain: DomainHireSkills,
		Fields: map[string]any{"customer": "c1", "skill": "electrician"},
	})
	require.NoError(t, err)

	res, err := f.svc.Complete(ctx, CompleteCommand{
		Domain:   DomainHireSkills,
		RecordID: rec.ID,
		Completion: Completion{
			PlatformFee:   ptr(0),
			WorkerEarning: ptr(850),
			WorkerName:    "Suresh",
			LocalNonLocal: "Non-Local",
			WorkerRating:  4,
			Remark:        "on time",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "hireSkillsHistory", res.Collection)
	assert.Equal(t, 0.0, res.Record.Fields["fee"])
	assert.Equal(t, 850.0, res.Record.Fields["workerEarning"])
	assert.Equal(t, "non-local", res.Record.Fields["localNonLocal"])
	assert.Equal(t, int64(4), res.Record.Fields["workerRating"])
	assert.Equal(t, "c1", res.Record.Fields["customer"])
}

func TestDeliveredAtNotBeforeCreatedAt(t *testing.T) {
	f := newFixture(t)
	// A store clock that steps backwards must not yield deliveredAt < createdAt.
	backwards := &stepClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC), step: -time.Hour}
	f.store.WithClock(backwards.Now)
	rec := f.createPickDrop(t, 5555)

	res, err := f.svc.Complete(context.Background(), CompleteCommand{
		Domain: DomainPickDrop, RecordID: rec.ID, Completion: Completion{ConfirmationCode: "5555"},
	})
	require.NoError(t, err)
	assert.False(t, res.Record.DeliveredAt().Before(res.Record.CreatedAt()))
}

func TestResumedRelocationKeepsDestination(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec := f.createPickDrop(t, 4821)

	// Simulate an earlier relocation whose source delete never ran.
	stamped := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	leftover := cloneFields(rec.Fields)
	leftover[FieldStatus] = StatusCompleted
	leftover[FieldDeliveredAt] = stamped
	require.NoError(t, f.store.Set(ctx, "pickDropHistory", rec.ID, leftover))

	res, err := f.svc.Complete(ctx, CompleteCommand{
		Domain: DomainPickDrop, RecordID: rec.ID, Completion: Completion{ConfirmationCode: "4821"},
	})
	require.NoError(t, err)
	assert.True(t, res.Resumed)
	assert.Equal(t, stamped, res.Record.DeliveredAt())

	_, err = f.store.Get(ctx, "pickDropRequests", rec.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, f.sink.kinds(), events.KindResume)
}

func TestResumedRelocationStillChecksCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec := f.createPickDrop(t, 4821)

	leftover := cloneFields(rec.Fields)
	leftover[FieldStatus] = StatusCompleted
	require.NoError(t, f.store.Set(ctx, "pickDropHistory", rec.ID, leftover))

	_, err := f.svc.Complete(ctx, CompleteCommand{
		Domain: DomainPickDrop, RecordID: rec.ID, Completion: Completion{ConfirmationCode: "1234"},
	})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "confirmationCode", verr.Field)

	still, err := f.store.Get(ctx, "pickDropRequests", rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.Fields, still.Fields)
	assert.NotContains(t, f.sink.kinds(), events.KindResume)
}

// Create, patch, reject a wrong code, then complete with the right one.
func TestPickDropEndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec := f.createPickDrop(t, 4821)
	assert.Equal(t, "Pending", rec.Status())

	res, err := f.svc.TransitionStatus(ctx, TransitionCommand{Domain: DomainPickDrop, RecordID: rec.ID, Status: "Out for Delivery"})
	require.NoError(t, err)
	assert.Equal(t, "pickDropRequests", res.Collection)

	_, err = f.svc.Complete(ctx, CompleteCommand{Domain: DomainPickDrop, RecordID: rec.ID, Completion: Completion{ConfirmationCode: "4820"}})
	require.ErrorIs(t, err, ErrValidationFailed)
	current, err := f.svc.Get(ctx, DomainPickDrop, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "Out for Delivery", current.Status())

	res, err = f.svc.Complete(ctx, CompleteCommand{Domain: DomainPickDrop, RecordID: rec.ID, Completion: Completion{ConfirmationCode: "4821"}})
	require.NoError(t, err)

	_, err = f.svc.Get(ctx, DomainPickDrop, rec.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	done, err := f.store.Get(ctx, "pickDropHistory", rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, done.ID)
	assert.Equal(t, "completed", done.Status())
	assert.False(t, done.DeliveredAt().IsZero())
	assert.Equal(t, "A", done.Fields["senderLocation"])
	assert.Equal(t, rec.CreatedAt(), done.CreatedAt())

	assert.Equal(t, []events.Kind{events.KindCreate, events.KindPatch, events.KindComplete}, f.sink.kinds())
}

type failingRelocate struct {
	*MemoryStore
}

func (s failingRelocate) Relocate(context.Context, RelocateOp) (RelocateResult, error) {
	return RelocateResult{}, errors.New("rpc error: connection reset by peer")
}

type hangingStore struct {
	*MemoryStore
}

func (s hangingStore) Get(ctx context.Context, _, _ string) (*Record, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestStoreFaultsSurfaceAsUnavailable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec := f.createPickDrop(t, 4821)

	svc := NewService(Deps{Store: failingRelocate{f.store}})
	_, err := svc.Complete(ctx, CompleteCommand{Domain: DomainPickDrop, RecordID: rec.ID, Completion: Completion{ConfirmationCode: "4821"}})
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.True(t, Retryable(err))

	_, err = f.svc.Get(ctx, DomainPickDrop, rec.ID)
	assert.NoError(t, err, "record must stay in the ongoing collection")

	slow := NewService(Deps{Store: hangingStore{f.store}, Timeout: 20 * time.Millisecond})
	_, err = slow.TransitionStatus(ctx, TransitionCommand{Domain: DomainPickDrop, RecordID: rec.ID, Status: "Delivering Today"})
	assert.ErrorIs(t, err, ErrStoreUnavailable)

	current, err := f.svc.Get(ctx, DomainPickDrop, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "Pending", current.Status())
}

func TestSecondSubmissionIsInFlight(t *testing.T) {
	f := newFixture(t)
	rec := f.createPickDrop(t, 4821)

	release, err := f.guard.Acquire(context.Background(), guardKey(DomainPickDrop, rec.ID))
	require.NoError(t, err)

	_, err = f.svc.Complete(context.Background(), CompleteCommand{Domain: DomainPickDrop, RecordID: rec.ID, Completion: Completion{ConfirmationCode: "4821"}})
	assert.ErrorIs(t, err, ErrInFlight)

	release()
	_, err = f.svc.Complete(context.Background(), CompleteCommand{Domain: DomainPickDrop, RecordID: rec.ID, Completion: Completion{ConfirmationCode: "4821"}})
	assert.NoError(t, err)
}

func TestConcurrentCompletesRelocateOnce(t *testing.T) {
	f := newFixture(t)
	rec := f.createPickDrop(t, 4821)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Complete(context.Background(), CompleteCommand{Domain: DomainPickDrop, RecordID: rec.ID, Completion: Completion{ConfirmationCode: "4821"}})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			if !errors.Is(err, ErrInFlight) && !errors.Is(err, ErrNotFound) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, succeeded)
}

func TestListOngoingPagination(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created := map[string]bool{}
	for i := 0; i < 5; i++ {
		rec, err := f.svc.Create(ctx, CreateCommand{Domain: DomainEstoreOrders, Fields: map[string]any{"customer": "c"}})
		require.NoError(t, err)
		created[rec.ID] = true
	}

	var (
		seen   []*Record
		cursor string
		pages  int
	)
	for {
		page, err := f.svc.ListOngoing(ctx, DomainEstoreOrders, PageRequest{Limit: 2, Cursor: cursor})
		require.NoError(t, err)
		seen = append(seen, page.Records...)
		pages++
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}
	assert.Equal(t, 3, pages)
	require.Len(t, seen, 5)
	for i := 1; i < len(seen); i++ {
		assert.True(t, seen[i-1].CreatedAt().After(seen[i].CreatedAt()), "newest first")
	}
	for _, r := range seen {
		assert.True(t, created[r.ID])
	}
}

func TestHistoryByKind(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var completed []string
	for i := 0; i < 3; i++ {
		rec := f.createPickDrop(t, 1234)
		_, err := f.svc.Complete(ctx, CompleteCommand{Domain: DomainPickDrop, RecordID: rec.ID, Completion: Completion{ConfirmationCode: "1234"}})
		require.NoError(t, err)
		completed = append(completed, rec.ID)
	}
	cancelled := f.createPickDrop(t, 1234)
	_, err := f.svc.TransitionStatus(ctx, TransitionCommand{Domain: DomainPickDrop, RecordID: cancelled.ID, Status: "cancelled"})
	require.NoError(t, err)

	page, err := f.svc.History(ctx, DomainPickDrop, KindCompleted, PageRequest{})
	require.NoError(t, err)
	require.Len(t, page.Records, 3)
	assert.Equal(t, completed[2], page.Records[0].ID, "latest completion first")

	page, err = f.svc.History(ctx, DomainPickDrop, "Cancelled", PageRequest{})
	require.NoError(t, err)
	require.Len(t, page.Records, 1)
	assert.Equal(t, cancelled.ID, page.Records[0].ID)

	_, err = f.svc.History(ctx, DomainPickDrop, "archived", PageRequest{})
	assert.ErrorIs(t, err, ErrValidationFailed)

	_, err = f.svc.History(ctx, DomainPickDrop, KindCompleted, PageRequest{Cursor: "gone"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReconcile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dup := f.createPickDrop(t, 4821)
	clean := f.createPickDrop(t, 4821)
	require.NoError(t, f.store.Set(ctx, "pickDropHistory", dup.ID, map[string]any{FieldStatus: StatusCompleted}))

	rep, err := f.svc.Reconcile(ctx, DomainPickDrop, false)
	require.NoError(t, err)
	assert.Equal(t, []Duplicate{{ID: dup.ID, Collection: "pickDropHistory"}}, rep.Duplicates)
	assert.Zero(t, rep.Removed)
	_, err = f.store.Get(ctx, "pickDropRequests", dup.ID)
	require.NoError(t, err, "dry run must not delete")

	rep, err = f.svc.Reconcile(ctx, DomainPickDrop, true)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Removed)
	_, err = f.store.Get(ctx, "pickDropRequests", dup.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.store.Get(ctx, "pickDropHistory", dup.ID)
	assert.NoError(t, err)
	_, err = f.store.Get(ctx, "pickDropRequests", clean.ID)
	assert.NoError(t, err)
}

func TestRunReconcilerStopsWithContext(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.svc.RunReconciler(ctx, 5*time.Millisecond, false)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reconciler did not stop")
	}
}
