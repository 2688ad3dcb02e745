package dispatch

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/suite"

	"beacon/internal/audit"
	auditmemory "beacon/internal/audit/store/memory"
	"beacon/internal/ratelimit"
	"beacon/internal/routing"
	id "beacon/pkg/domain"
)

// scriptedSender replays a per-channel list of outcomes, then delivers.
type scriptedSender struct {
	mu      sync.Mutex
	scripts map[id.ChannelID][]Outcome
	sent    []Task
}

func newScriptedSender() *scriptedSender {
	return &scriptedSender{scripts: make(map[id.ChannelID][]Outcome)}
}

func (f *scriptedSender) script(channel id.ChannelID, outcomes ...Outcome) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts[channel] = append(f.scripts[channel], outcomes...)
}

func (f *scriptedSender) Send(_ context.Context, channel routing.Channel, payload []byte) Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, Task{Channel: channel.ID})
	if queued := f.scripts[channel.ID]; len(queued) > 0 {
		next := queued[0]
		f.scripts[channel.ID] = queued[1:]
		return next
	}
	return Outcome{Class: ClassDelivered, StatusCode: 200}
}

func (f *scriptedSender) sendCount(channel id.ChannelID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, t := range f.sent {
		if t.Channel == channel {
			n++
		}
	}
	return n
}

// tableResolver serves a fixed channel set per stakeholder group.
type tableResolver struct {
	channels map[id.StakeholderGroup][]routing.Channel
}

func (r *tableResolver) Channels(_ context.Context, group id.StakeholderGroup) ([]routing.Channel, error) {
	return r.channels[group], nil
}

type DispatcherSuite struct {
	suite.Suite
	store      *auditmemory.Store
	records    *audit.Service
	sender     *scriptedSender
	resolver   *tableResolver
	dispatcher *Dispatcher
}

func TestDispatcherSuite(t *testing.T) {
	suite.Run(t, new(DispatcherSuite))
}

func (s *DispatcherSuite) SetupTest() {
	s.store = auditmemory.New()
	s.records = audit.NewService(s.store)
	s.sender = newScriptedSender()
	s.resolver = &tableResolver{channels: map[id.StakeholderGroup][]routing.Channel{
		"oncall_sre": {
			{ID: "chan-a", Group: "oncall_sre", WebhookURL: "http://chan-a", Secret: "sa", RatePerMinute: 600, Burst: 100},
			{ID: "chan-b", Group: "oncall_sre", WebhookURL: "http://chan-b", Secret: "sb", RatePerMinute: 600, Burst: 100},
		},
	}}
	s.dispatcher = New(testDispatchConfig(), s.sender, s.resolver, ratelimit.NewMemory(0), s.records)
}

func (s *DispatcherSuite) TearDownTest() {
	s.dispatcher.Stop()
}

func (s *DispatcherSuite) seed(corr id.CorrelationID, channel id.ChannelID) {
	_, _, err := s.records.Create(context.Background(), &audit.Record{
		CorrelationID: corr,
		EventType:     "job_failure",
		Priority:      id.PriorityHigh,
		Stakeholders:  []id.StakeholderGroup{"oncall_sre"},
		Channel:       channel,
		Payload:       []byte(`{"title":"x"}`),
	})
	s.Require().NoError(err)
}

func (s *DispatcherSuite) enqueue(corr id.CorrelationID, channel id.ChannelID) {
	s.Require().NoError(s.dispatcher.Enqueue(context.Background(), Task{CorrelationID: corr, Channel: channel}))
}

func (s *DispatcherSuite) waitTerminal(corr id.CorrelationID, channel id.ChannelID) *audit.Record {
	var rec *audit.Record
	s.Require().Eventually(func() bool {
		var err error
		rec, err = s.records.Get(context.Background(), corr, channel)
		return err == nil && rec.Status.Terminal()
	}, 5*time.Second, 5*time.Millisecond)
	return rec
}

func (s *DispatcherSuite) TestDeliversOnFirstAttempt() {
	s.seed("evt-1", "chan-a")
	s.enqueue("evt-1", "chan-a")

	rec := s.waitTerminal("evt-1", "chan-a")
	s.Equal(audit.StatusDelivered, rec.Status)
	s.Equal(200, rec.LastStatusCode)
	s.Equal(0, rec.RetryCount)
	s.NotEmpty(rec.PayloadHash)
	s.False(rec.SentAt.IsZero())
}

func (s *DispatcherSuite) TestRetriesTransientFailuresThenDelivers() {
	s.sender.script("chan-a",
		Outcome{Class: ClassRetryable, StatusCode: 503},
		Outcome{Class: ClassRetryable, StatusCode: 429, RetryAfter: time.Millisecond},
	)
	s.seed("evt-1", "chan-a")
	s.enqueue("evt-1", "chan-a")

	rec := s.waitTerminal("evt-1", "chan-a")
	s.Equal(audit.StatusDelivered, rec.Status)
	s.Equal(2, rec.RetryCount)
	s.Equal(3, s.sender.sendCount("chan-a"))
}

func (s *DispatcherSuite) TestPermanentRejectionFailsWithoutRetry() {
	s.sender.script("chan-a", Outcome{Class: ClassPermanent, StatusCode: 400})
	s.seed("evt-1", "chan-a")
	s.enqueue("evt-1", "chan-a")

	rec := s.waitTerminal("evt-1", "chan-a")
	s.Equal(audit.StatusFailed, rec.Status)
	s.Equal(400, rec.LastStatusCode)
	s.Equal(1, s.sender.sendCount("chan-a"))
}

func (s *DispatcherSuite) TestExhaustsRetryBudget() {
	for i := 0; i < 3; i++ {
		s.sender.script("chan-a", Outcome{Class: ClassRetryable, StatusCode: 500})
	}
	s.seed("evt-1", "chan-a")
	s.enqueue("evt-1", "chan-a")

	rec := s.waitTerminal("evt-1", "chan-a")
	s.Equal(audit.StatusFailed, rec.Status)
	s.Equal(3, rec.RetryCount)
	s.Contains(rec.ErrorMessage, "retry budget exhausted")
	// MaxRetries bounds total attempts; the third failure is terminal.
	s.Equal(3, s.sender.sendCount("chan-a"))
}

func (s *DispatcherSuite) TestThirdFailureIsTerminalEvenIfNextAttemptWouldSucceed() {
	// chan-b would return 200 on a 4th attempt; the budget forbids making it.
	s.sender.script("chan-b",
		Outcome{Class: ClassRetryable, StatusCode: 500},
		Outcome{Class: ClassRetryable, StatusCode: 500},
		Outcome{Class: ClassRetryable, StatusCode: 500},
		Outcome{Class: ClassDelivered, StatusCode: 200},
	)
	s.seed("evt-1", "chan-a")
	s.seed("evt-1", "chan-b")
	s.enqueue("evt-1", "chan-a")
	s.enqueue("evt-1", "chan-b")

	recA := s.waitTerminal("evt-1", "chan-a")
	s.Equal(audit.StatusDelivered, recA.Status)
	s.Equal(0, recA.RetryCount)

	recB := s.waitTerminal("evt-1", "chan-b")
	s.Equal(audit.StatusFailed, recB.Status)
	s.Equal(3, recB.RetryCount)
	s.Equal(3, s.sender.sendCount("chan-b"))
}

func (s *DispatcherSuite) TestChannelFailuresAreIndependent() {
	s.sender.script("chan-a", Outcome{Class: ClassPermanent, StatusCode: 403})
	s.seed("evt-1", "chan-a")
	s.seed("evt-1", "chan-b")
	s.enqueue("evt-1", "chan-a")
	s.enqueue("evt-1", "chan-b")

	recA := s.waitTerminal("evt-1", "chan-a")
	recB := s.waitTerminal("evt-1", "chan-b")
	s.Equal(audit.StatusFailed, recA.Status)
	s.Equal(audit.StatusDelivered, recB.Status)
}

func (s *DispatcherSuite) TestUnresolvableChannelFailsTheUnit() {
	s.seed("evt-1", "chan-ghost")
	s.enqueue("evt-1", "chan-ghost")

	rec := s.waitTerminal("evt-1", "chan-ghost")
	s.Equal(audit.StatusFailed, rec.Status)
	s.Contains(rec.ErrorMessage, "channel configuration unavailable")
	s.Equal(0, s.sender.sendCount("chan-ghost"))
}

func (s *DispatcherSuite) TestStartResumesNonTerminalRecords() {
	s.seed("evt-1", "chan-a")
	s.seed("evt-2", "chan-a")
	_, err := s.store.RecordAttempt(context.Background(), "evt-2", "chan-a", audit.Attempt{
		Status: audit.StatusRetrying, RetryCount: 1,
	})
	s.Require().NoError(err)

	s.Require().NoError(s.dispatcher.Start(context.Background()))

	s.Equal(audit.StatusDelivered, s.waitTerminal("evt-1", "chan-a").Status)
	s.Equal(audit.StatusDelivered, s.waitTerminal("evt-2", "chan-a").Status)
}

func (s *DispatcherSuite) TestChannelQueueIsFIFO() {
	for _, corr := range []id.CorrelationID{"evt-1", "evt-2", "evt-3"} {
		s.seed(corr, "chan-a")
		s.enqueue(corr, "chan-a")
	}

	for _, corr := range []id.CorrelationID{"evt-1", "evt-2", "evt-3"} {
		s.waitTerminal(corr, "chan-a")
	}

	var order []string
	for _, rec := range s.listDelivered() {
		order = append(order, rec.CorrelationID.String())
	}
	s.Equal([]string{"evt-1", "evt-2", "evt-3"}, order)
}

// listDelivered returns delivered records ordered by send time.
func (s *DispatcherSuite) listDelivered() []*audit.Record {
	records, err := s.records.ByCorrelation(context.Background(), "evt-1")
	s.Require().NoError(err)
	for _, corr := range []id.CorrelationID{"evt-2", "evt-3"} {
		more, err := s.records.ByCorrelation(context.Background(), corr)
		s.Require().NoError(err)
		records = append(records, more...)
	}
	out := records[:0]
	for _, rec := range records {
		if rec.Status == audit.StatusDelivered {
			out = append(out, rec)
		}
	}
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].SentAt.Before(out[i].SentAt) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out
}

func (s *DispatcherSuite) TestRateLimitBoundsThroughput() {
	// One token per minute and no burst headroom beyond the first send: the
	// second unit must still be waiting when we stop.
	s.resolver.channels["oncall_sre"] = []routing.Channel{
		{ID: "chan-slow", Group: "oncall_sre", WebhookURL: "http://chan-slow", Secret: "s", RatePerMinute: 1, Burst: 1},
	}
	s.seed("evt-1", "chan-slow")
	s.seed("evt-2", "chan-slow")
	s.enqueue("evt-1", "chan-slow")
	s.enqueue("evt-2", "chan-slow")

	s.Equal(audit.StatusDelivered, s.waitTerminal("evt-1", "chan-slow").Status)

	time.Sleep(50 * time.Millisecond)
	rec, err := s.records.Get(context.Background(), "evt-2", "chan-slow")
	s.Require().NoError(err)
	s.False(rec.Status.Terminal(), "second unit should still be throttled, got %s", rec.Status)
}

func TestFailedRecordSurfacesInFailureQuery(t *testing.T) {
	store := auditmemory.New()
	records := audit.NewService(store)
	sender := newScriptedSender()
	for i := 0; i < 3; i++ {
		sender.script("chan-a", Outcome{Class: ClassRetryable, StatusCode: 500})
	}
	resolver := &tableResolver{channels: map[id.StakeholderGroup][]routing.Channel{
		"oncall_sre": {{ID: "chan-a", Group: "oncall_sre", WebhookURL: "http://chan-a", Secret: "s", RatePerMinute: 600, Burst: 100}},
	}}
	d := New(testDispatchConfig(), sender, resolver, ratelimit.NewMemory(0), records)
	defer d.Stop()

	_, _, err := records.Create(context.Background(), &audit.Record{
		CorrelationID: "evt-crit",
		EventType:     "security_incident",
		Priority:      id.PriorityCritical,
		Stakeholders:  []id.StakeholderGroup{"oncall_sre"},
		Channel:       "chan-a",
		Payload:       []byte(`{}`),
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Enqueue(context.Background(), Task{CorrelationID: "evt-crit", Channel: "chan-a"}); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		failed, err := records.Failures(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if len(failed) == 1 {
			if !strings.Contains(failed[0].ErrorMessage, "retry budget exhausted") {
				t.Fatalf("unexpected error message %q", failed[0].ErrorMessage)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("failed record never surfaced in the failure query")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// fakeClockDispatcher wires a dispatcher onto a fake clock with one seeded
// unit, for tests that control the retry sleep directly.
func fakeClockDispatcher(t *testing.T, cfg fakeClockConfig) (*Dispatcher, *scriptedSender, *audit.Service, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	store := auditmemory.New()
	records := audit.NewService(store)
	sender := newScriptedSender()
	resolver := &tableResolver{channels: map[id.StakeholderGroup][]routing.Channel{
		"oncall_sre": {{ID: "chan-a", Group: "oncall_sre", WebhookURL: "http://chan-a", Secret: "s", RatePerMinute: 600, Burst: 100}},
	}}
	dispatchCfg := testDispatchConfig()
	dispatchCfg.BackoffMax = cfg.backoffMax
	d := New(dispatchCfg, sender, resolver, ratelimit.NewMemory(0), records, WithClock(clock))
	t.Cleanup(d.Stop)

	_, _, err := records.Create(context.Background(), &audit.Record{
		CorrelationID: "evt-1",
		EventType:     "job_failure",
		Priority:      id.PriorityHigh,
		Stakeholders:  []id.StakeholderGroup{"oncall_sre"},
		Channel:       "chan-a",
		Payload:       []byte(`{}`),
	})
	if err != nil {
		t.Fatal(err)
	}
	return d, sender, records, clock
}

type fakeClockConfig struct {
	backoffMax time.Duration
}

func waitForSends(t *testing.T, sender *scriptedSender, channel id.ChannelID, want int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for sender.sendCount(channel) < want {
		if time.Now().After(deadline) {
			t.Fatalf("never reached %d sends on %s, got %d", want, channel, sender.sendCount(channel))
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestWaitsAtLeastRetryAfterHint(t *testing.T) {
	d, sender, records, clock := fakeClockDispatcher(t, fakeClockConfig{backoffMax: time.Minute})
	sender.script("chan-a", Outcome{Class: ClassRetryable, StatusCode: 429, RetryAfter: 5 * time.Second})

	if err := d.Enqueue(context.Background(), Task{CorrelationID: "evt-1", Channel: "chan-a"}); err != nil {
		t.Fatal(err)
	}
	waitForSends(t, sender, "chan-a", 1)
	clock.BlockUntil(1)

	// One second short of the hint: the next attempt must not have happened.
	clock.Advance(4 * time.Second)
	time.Sleep(20 * time.Millisecond)
	if n := sender.sendCount("chan-a"); n != 1 {
		t.Fatalf("attempt made before the retry-after hint elapsed, sends=%d", n)
	}

	clock.Advance(time.Second)
	waitForSends(t, sender, "chan-a", 2)

	deadline := time.Now().Add(5 * time.Second)
	for {
		rec, err := records.Get(context.Background(), "evt-1", "chan-a")
		if err != nil {
			t.Fatal(err)
		}
		if rec.Status == audit.StatusDelivered {
			if rec.RetryCount != 1 {
				t.Fatalf("retry count = %d, want 1", rec.RetryCount)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("unit never delivered, status %s", rec.Status)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestCapsRetryAfterHintAtBackoffMax(t *testing.T) {
	d, sender, _, clock := fakeClockDispatcher(t, fakeClockConfig{backoffMax: 10 * time.Millisecond})
	// An abusive day-long hint must not stall the channel loop past the cap.
	sender.script("chan-a", Outcome{Class: ClassRetryable, StatusCode: 429, RetryAfter: 24 * time.Hour})

	if err := d.Enqueue(context.Background(), Task{CorrelationID: "evt-1", Channel: "chan-a"}); err != nil {
		t.Fatal(err)
	}
	waitForSends(t, sender, "chan-a", 1)
	clock.BlockUntil(1)

	clock.Advance(10 * time.Millisecond)
	waitForSends(t, sender, "chan-a", 2)
}
