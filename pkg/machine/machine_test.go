package machine_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/choreo/pkg/adapters/memory"
	"github.com/aretw0/choreo/pkg/adapters/redis"
	"github.com/aretw0/choreo/pkg/adapters/sqlite"
	"github.com/aretw0/choreo/pkg/domain"
	"github.com/aretw0/choreo/pkg/dsl"
	"github.com/aretw0/choreo/pkg/machine"
	"github.com/aretw0/choreo/pkg/ports"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func homeRepair() *domain.Template {
	b := dsl.New("Home Repair").AutoComplete()
	b.Role("requester").Max(1).Can(domain.CapCreate, domain.CapRead, domain.CapUpdate, domain.CapApprove, domain.CapReject)
	b.Role("provider").Can(domain.CapRead, domain.CapUpdate, domain.CapUpload)

	b.Slot("address", domain.SlotText).Required().EditableBy("requester")
	b.Slot("quote", domain.SlotCurrency).Rule("min", 0).EditableBy("provider")
	b.Slot("proof", domain.SlotFile).EditableBy("provider")
	b.Slot("rating", domain.SlotNumber).Rule("min", 1).Rule("max", 5).EditableBy("requester")

	b.State("intake", domain.KindCollect).Require("address").Allow("requester").Go("quote")
	b.State("quote", domain.KindNegotiate).Require("quote").Allow("requester", "provider").
		On(domain.ConditionApproved, "work").
		On(domain.ConditionRejected, "intake", "cancelled").
		Timeout(60, "cancelled")
	b.State("work", domain.KindCommit).Require("proof").Allow("provider").Go("signoff")
	b.State("signoff", domain.KindSignoff).Require("rating").Allow("requester")
	b.State("cancelled", domain.KindSignoff)
	return b.MustBuild()
}

func people() []domain.Participant {
	return []domain.Participant{
		{ID: "alice", Role: "requester", Name: "Alice"},
		{ID: "bob", Role: "provider", Name: "Bob"},
	}
}

func newMachine(t *testing.T, repo ports.Repository, opts ...machine.Option) (*machine.Machine, *clock) {
	t.Helper()
	c := &clock{now: epoch}
	m, err := machine.New(repo, append([]machine.Option{machine.WithClock(c.Now)}, opts...)...)
	require.NoError(t, err)
	return m, c
}

func stateIDs(visits []*domain.RunState) []string {
	out := make([]string, len(visits))
	for i, v := range visits {
		out[i] = v.StateID
	}
	return out
}

func TestMachine_HappyPath(t *testing.T) {
	repos := map[string]func(t *testing.T) ports.Repository{
		"memory": func(t *testing.T) ports.Repository { return memory.NewStore() },
		"redis": func(t *testing.T) ports.Repository {
			mr := miniredis.RunT(t)
			client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
			t.Cleanup(func() { _ = client.Close() })
			return redis.NewFromClient(client)
		},
		"sqlite": func(t *testing.T) ports.Repository {
			store, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "choreo.db"))
			require.NoError(t, err)
			t.Cleanup(func() { _ = store.Close() })
			return store
		},
	}

	for name, newRepo := range repos {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			m, c := newMachine(t, newRepo(t))

			run, err := m.Start(ctx, homeRepair(), people())
			require.NoError(t, err)
			assert.Equal(t, domain.RunInProgress, run.Status)
			assert.Equal(t, "intake", run.CurrentStateID)

			out, err := m.SubmitSlot(ctx, run.ID, "address", "1 Main St", "requester")
			require.NoError(t, err)
			assert.True(t, out.Transitioned)
			assert.Equal(t, "quote", out.To)
			assert.Equal(t, domain.ConditionAlways, out.Condition)

			c.Advance(10 * time.Minute)
			out, err = m.SubmitSlot(ctx, run.ID, "quote", 150, "provider")
			require.NoError(t, err)
			assert.False(t, out.Transitioned, "quote waits for a decision")

			out, err = m.Raise(ctx, run.ID, "requester", domain.ConditionApproved, "")
			require.NoError(t, err)
			assert.Equal(t, "work", out.To)

			_, err = m.SubmitSlot(ctx, run.ID, "proof", "photo.jpg", "provider")
			require.NoError(t, err)

			out, err = m.SubmitSlot(ctx, run.ID, "rating", 5, "requester")
			require.NoError(t, err)
			assert.True(t, out.Transitioned)
			assert.Empty(t, out.To)
			assert.Equal(t, domain.RunCompleted, out.Run.Status)
			require.NotNil(t, out.Run.CompletedAt)

			visits, err := m.History(ctx, run.ID)
			require.NoError(t, err)
			assert.Equal(t, []string{"intake", "quote", "work", "signoff"}, stateIDs(visits))
			for _, v := range visits {
				assert.False(t, v.Open(), "visit %s left open", v.StateID)
			}

			values, err := m.Slots(ctx, run.ID, "requester")
			require.NoError(t, err)
			assert.Equal(t, "1 Main St", values["address"])
			assert.EqualValues(t, 5, values["rating"])

			_, err = m.SubmitSlot(ctx, run.ID, "rating", 4, "requester")
			assert.ErrorIs(t, err, domain.ErrStaleRun)
			_, err = m.Tick(ctx, run.ID, c.Now())
			assert.ErrorIs(t, err, domain.ErrStaleRun)
		})
	}
}

func TestMachine_StartRequiresSealedTemplate(t *testing.T) {
	m, _ := newMachine(t, memory.NewStore())

	draft := dsl.New("Draft")
	draft.Role("requester")
	draft.State("only", domain.KindCollect)

	_, err := m.Start(context.Background(), draft.Draft(), nil)
	assert.ErrorIs(t, err, domain.ErrTemplateNotReady)
	assert.Equal(t, domain.CodeInvalidConfig, domain.Code(err))

	_, err = m.Start(context.Background(), nil, nil)
	assert.ErrorIs(t, err, domain.ErrTemplateNotReady)
}

func TestMachine_StartTemplateReseals(t *testing.T) {
	repo := memory.NewStore()
	tmpl := homeRepair()
	require.NoError(t, repo.SaveTemplate(context.Background(), tmpl))

	m, _ := newMachine(t, repo)
	run, err := m.StartTemplate(context.Background(), tmpl.ID, people())
	require.NoError(t, err)
	assert.Equal(t, tmpl.ID, run.TemplateID)

	_, err = m.StartTemplate(context.Background(), "missing", people())
	assert.ErrorIs(t, err, domain.ErrTemplateNotFound)
}

func TestMachine_StartParticipants(t *testing.T) {
	m, _ := newMachine(t, memory.NewStore())
	ctx := context.Background()

	tests := []struct {
		name         string
		participants []domain.Participant
		want         error
	}{
		{"missing requester", []domain.Participant{{Role: "provider"}}, domain.ErrParticipants},
		{"too many requesters", []domain.Participant{{Role: "requester"}, {Role: "requester"}, {Role: "provider"}}, domain.ErrParticipants},
		{"unknown role", []domain.Participant{{Role: "requester"}, {Role: "provider"}, {Role: "judge"}}, domain.ErrUnknownRole},
		{"duplicate id", []domain.Participant{{ID: "x", Role: "requester"}, {ID: "x", Role: "provider"}}, domain.ErrParticipants},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Start(ctx, homeRepair(), tt.participants)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	run, err := m.Start(ctx, homeRepair(), []domain.Participant{{Role: "requester"}, {Role: "provider"}})
	require.NoError(t, err)
	for _, p := range run.Participants {
		assert.NotEmpty(t, p.ID)
		assert.NotEmpty(t, p.Token)
	}
}

func TestMachine_RejectedSubmissionLeavesRunUntouched(t *testing.T) {
	m, _ := newMachine(t, memory.NewStore())
	ctx := context.Background()
	run, err := m.Start(ctx, homeRepair(), people())
	require.NoError(t, err)

	_, err = m.SubmitSlot(ctx, run.ID, "address", "1 Main St", "provider")
	assert.ErrorIs(t, err, domain.ErrAuthorization)
	_, err = m.SubmitSlot(ctx, run.ID, "ghost", "x", "requester")
	assert.ErrorIs(t, err, domain.ErrUnknownSlot)
	_, err = m.SubmitSlot(ctx, run.ID, "address", 42, "requester")
	assert.ErrorIs(t, err, domain.ErrInvalidSlotValue)
	_, err = m.SubmitSlot(ctx, "nope", "address", "x", "requester")
	assert.ErrorIs(t, err, domain.ErrRunNotFound)

	got, err := m.Run(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, "intake", got.CurrentStateID)

	visits, err := m.History(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, visits, 1)
	assert.Empty(t, visits[0].SlotData)
}

func toQuote(t *testing.T, m *machine.Machine) *domain.Run {
	t.Helper()
	ctx := context.Background()
	run, err := m.Start(ctx, homeRepair(), people())
	require.NoError(t, err)
	_, err = m.SubmitSlot(ctx, run.ID, "address", "1 Main St", "requester")
	require.NoError(t, err)
	return run
}

func TestMachine_TimeoutFires(t *testing.T) {
	m, c := newMachine(t, memory.NewStore())
	ctx := context.Background()
	run := toQuote(t, m)

	out, err := m.Tick(ctx, run.ID, c.Now().Add(59*time.Minute))
	require.NoError(t, err)
	assert.False(t, out.Transitioned)

	out, err = m.Tick(ctx, run.ID, c.Now().Add(60*time.Minute))
	require.NoError(t, err)
	assert.True(t, out.Transitioned)
	assert.Equal(t, domain.ConditionTimeout, out.Condition)
	assert.Equal(t, "cancelled", out.To)
	assert.Equal(t, domain.RunCompleted, out.Run.Status, "cancelled auto-completes")
}

func TestMachine_EventBeatsElapsedTimeout(t *testing.T) {
	m, c := newMachine(t, memory.NewStore())
	ctx := context.Background()
	run := toQuote(t, m)

	c.Advance(2 * time.Hour)
	out, err := m.Raise(ctx, run.ID, "requester", domain.ConditionApproved, "")
	require.NoError(t, err)
	assert.Equal(t, "work", out.To)
}

func TestMachine_SlotWriteAfterTimeoutTakesTimeout(t *testing.T) {
	m, c := newMachine(t, memory.NewStore())
	ctx := context.Background()
	run := toQuote(t, m)

	c.Advance(2 * time.Hour)
	out, err := m.SubmitSlot(ctx, run.ID, "quote", 99, "provider")
	require.NoError(t, err)
	assert.Equal(t, domain.ConditionTimeout, out.Condition)
	assert.Equal(t, "cancelled", out.To)
}

func TestMachine_BranchAndCapabilities(t *testing.T) {
	m, _ := newMachine(t, memory.NewStore())
	ctx := context.Background()
	run := toQuote(t, m)

	_, err := m.Raise(ctx, run.ID, "requester", domain.ConditionRejected, "")
	assert.ErrorIs(t, err, domain.ErrBranchRequired)

	_, err = m.Raise(ctx, run.ID, "provider", domain.ConditionApproved, "")
	assert.ErrorIs(t, err, domain.ErrAuthorization, "provider lacks approve")

	_, err = m.Raise(ctx, run.ID, "requester", domain.ConditionTimeout, "")
	assert.ErrorIs(t, err, domain.ErrAuthorization, "timeout is internal")

	out, err := m.Raise(ctx, run.ID, "requester", domain.ConditionRejected, "intake")
	require.NoError(t, err)
	assert.Equal(t, "intake", out.To)

	visits, err := m.History(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"intake", "quote", "intake"}, stateIDs(visits))
	assert.Empty(t, visits[2].SlotData, "a revisit starts empty")
}

func TestMachine_Fail(t *testing.T) {
	m, _ := newMachine(t, memory.NewStore())
	ctx := context.Background()
	run := toQuote(t, m)

	failed, err := m.Fail(ctx, run.ID, "customer left")
	require.NoError(t, err)
	assert.Equal(t, domain.RunFailed, failed.Status)
	assert.Equal(t, "customer left", failed.FailureReason)

	visits, err := m.History(ctx, run.ID)
	require.NoError(t, err)
	for _, v := range visits {
		assert.False(t, v.Open())
	}

	_, err = m.SubmitSlot(ctx, run.ID, "quote", 10, "provider")
	var stale *domain.StaleRunError
	require.ErrorAs(t, err, &stale)
	assert.Equal(t, domain.RunFailed, stale.Status)

	_, err = m.Fail(ctx, run.ID, "again")
	assert.ErrorIs(t, err, domain.ErrStaleRun)
}

func TestMachine_ExpectStateIsNoOp(t *testing.T) {
	m, _ := newMachine(t, memory.NewStore())
	ctx := context.Background()
	run := toQuote(t, m)

	out, err := m.Submit(ctx, machine.Submission{
		RunID: run.ID, Role: "requester", Slot: "address", Value: "2 Side St", ExpectState: "intake",
	})
	require.NoError(t, err)
	assert.True(t, out.Stale)
	assert.False(t, out.Transitioned)

	values, err := m.Slots(ctx, run.ID, "requester")
	require.NoError(t, err)
	assert.Equal(t, "1 Main St", values["address"])
}

func TestMachine_SubmitNeedsSlotOrEvent(t *testing.T) {
	m, _ := newMachine(t, memory.NewStore())
	_, err := m.Submit(context.Background(), machine.Submission{RunID: "x", Role: "requester"})
	assert.Error(t, err)
}

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, s)
}

func (r *recorder) hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnRunStart:   func(_ context.Context, e *domain.RunEvent) { r.add("start") },
		OnStateEnter: func(_ context.Context, e *domain.StateEvent) { r.add("enter:" + e.StateID) },
		OnStateExit: func(_ context.Context, e *domain.StateEvent) {
			r.add("exit:" + e.StateID + ":" + string(e.Condition))
		},
		OnSlotWrite: func(_ context.Context, e *domain.SlotEvent) { r.add("slot:" + e.Slot + ":" + e.Role) },
		OnRunFinish: func(_ context.Context, e *domain.RunEvent) { r.add("finish:" + string(e.Status)) },
	}
}

type composer struct{ fail bool }

func (c composer) Compose(_ context.Context, runID string, rc ports.RoleContext) (string, error) {
	if c.fail {
		return "", errors.New("model unavailable")
	}
	return rc.Participant.Name + " please act in " + rc.State, nil
}

type sent struct {
	participant, message string
	opts                 ports.SendOptions
}

type notifier struct {
	mu   sync.Mutex
	sent []sent
}

func (n *notifier) Send(_ context.Context, participantID, message string, opts ports.SendOptions) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sent{participantID, message, opts})
	return "delivery-1", nil
}

func TestMachine_HooksAndOutbound(t *testing.T) {
	rec := &recorder{}
	n := &notifier{}
	m, _ := newMachine(t, memory.NewStore(),
		machine.WithHooks(rec.hooks()),
		machine.WithComposer(composer{}),
		machine.WithNotifier(n),
	)
	ctx := context.Background()

	run, err := m.Start(ctx, homeRepair(), people())
	require.NoError(t, err)
	require.Len(t, n.sent, 1, "only the requester acts in intake")
	assert.Equal(t, "alice", n.sent[0].participant)
	assert.Equal(t, "Alice please act in intake", n.sent[0].message)
	assert.Equal(t, run.Participants[0].Token, n.sent[0].opts.Token)

	_, err = m.SubmitSlot(ctx, run.ID, "address", "1 Main St", "requester")
	require.NoError(t, err)
	assert.Len(t, n.sent, 3, "both roles act in quote")

	_, err = m.Fail(ctx, run.ID, "stop")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"start", "enter:intake",
		"slot:address:requester", "exit:intake:always", "enter:quote",
		"exit:quote:", "finish:failed",
	}, rec.events)
}

func TestMachine_OutboundFailureDoesNotBlock(t *testing.T) {
	n := &notifier{}
	m, _ := newMachine(t, memory.NewStore(), machine.WithComposer(composer{fail: true}), machine.WithNotifier(n))

	run, err := m.Start(context.Background(), homeRepair(), people())
	require.NoError(t, err)
	assert.Empty(t, n.sent)

	out, err := m.SubmitSlot(context.Background(), run.ID, "address", "1 Main St", "requester")
	require.NoError(t, err)
	assert.Equal(t, "quote", out.To)
}

func TestMachine_Deterministic(t *testing.T) {
	script := func() ([]string, domain.RunStatus) {
		m, c := newMachine(t, memory.NewStore())
		ctx := context.Background()
		run := toQuote(t, m)
		_, err := m.Raise(ctx, run.ID, "requester", domain.ConditionRejected, "intake")
		require.NoError(t, err)
		_, err = m.SubmitSlot(ctx, run.ID, "address", "3 High St", "requester")
		require.NoError(t, err)
		_, err = m.Tick(ctx, run.ID, c.Now().Add(time.Hour))
		require.NoError(t, err)

		visits, err := m.History(ctx, run.ID)
		require.NoError(t, err)
		got, err := m.Run(ctx, run.ID)
		require.NoError(t, err)
		return stateIDs(visits), got.Status
	}

	first, status := script()
	second, status2 := script()
	assert.Equal(t, first, second)
	assert.Equal(t, status, status2)
	assert.Equal(t, []string{"intake", "quote", "intake", "quote", "cancelled"}, first)
	assert.Equal(t, domain.RunCompleted, status)
}

func TestMachine_AmbiguousTransitionFailsRun(t *testing.T) {
	b := dsl.New("Broken Routing")
	b.Role("requester")
	b.Slot("x", domain.SlotText)
	b.State("a", domain.KindCollect).Require("x").Go("b").On(domain.ConditionManual, "c")
	b.State("b", domain.KindSignoff)
	b.State("c", domain.KindSignoff)
	tmpl := b.MustBuild()
	// Corrupt the sealed template the way a hand-edited store would.
	a, _ := tmpl.State("a")
	a.Transitions[domain.ConditionAlways] = domain.Targets{"b", "c"}

	m, _ := newMachine(t, memory.NewStore())
	ctx := context.Background()
	run, err := m.Start(ctx, tmpl, []domain.Participant{{Role: "requester"}})
	require.NoError(t, err)

	_, err = m.SubmitSlot(ctx, run.ID, "x", "go", "requester")
	assert.ErrorIs(t, err, domain.ErrTimeoutResolution)

	got, err := m.Run(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunFailed, got.Status)
}

// brokenAppends fails every AppendRunState once armed.
type brokenAppends struct {
	ports.Repository
	mu    sync.Mutex
	armed bool
}

func (r *brokenAppends) arm() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.armed = true
}

func (r *brokenAppends) AppendRunState(ctx context.Context, rs *domain.RunState) error {
	r.mu.Lock()
	armed := r.armed
	r.mu.Unlock()
	if armed {
		return errors.New("disk full")
	}
	return r.Repository.AppendRunState(ctx, rs)
}

func TestMachine_FailedAppendFailsRun(t *testing.T) {
	repo := &brokenAppends{Repository: memory.NewStore()}
	m, _ := newMachine(t, repo)
	ctx := context.Background()

	run, err := m.Start(ctx, homeRepair(), people())
	require.NoError(t, err)

	repo.arm()
	_, err = m.SubmitSlot(ctx, run.ID, "address", "221B Baker Street", "requester")
	require.ErrorContains(t, err, "disk full")

	got, err := m.Run(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunFailed, got.Status)
	assert.Empty(t, got.OpenRunStateID)
	assert.Contains(t, got.FailureReason, `failed to open state "quote"`)

	visits, err := m.History(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, visits, 1)
	assert.False(t, visits[0].Open())

	_, err = m.SubmitSlot(ctx, run.ID, "address", "again", "requester")
	assert.ErrorIs(t, err, domain.ErrStaleRun)
}
