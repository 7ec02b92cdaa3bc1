package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"battle-tracker/internal/config"
	"battle-tracker/internal/constants"
	"battle-tracker/internal/domain"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type scriptedProcessor struct {
	mu      sync.Mutex
	calls   []int64
	outcome func(id int64) domain.ProcessResult
}

func (p *scriptedProcessor) Process(_ context.Context, id int64) domain.ProcessResult {
	p.mu.Lock()
	p.calls = append(p.calls, id)
	p.mu.Unlock()
	res := p.outcome(id)
	res.BattleID = id
	return res
}

func (p *scriptedProcessor) Calls() []int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int64(nil), p.calls...)
}

func merged(int64) domain.ProcessResult {
	return domain.ProcessResult{Status: domain.StatusMerged, Outcome: domain.OutcomeSuccess}
}

func notFound(int64) domain.ProcessResult {
	return domain.ProcessResult{Status: domain.StatusFetchFailed, Outcome: domain.OutcomeNotFound, StatusCode: 404}
}

type fixedResolver struct {
	id  int64
	err error
}

func (r fixedResolver) Resolve(context.Context) (int64, error) { return r.id, r.err }

type memCheckpoints struct {
	saved []int64
	fail  func(id int64) bool
}

func (c *memCheckpoints) Save(id int64) error {
	if c.fail != nil && c.fail(id) {
		return errors.New("read-only file system")
	}
	c.saved = append(c.saved, id)
	return nil
}

type countingReporter struct {
	reports int
}

func (r *countingReporter) Report(context.Context, domain.Snapshot) error {
	r.reports++
	return nil
}

type staticLedger struct {
	ids []int64
}

func (l staticLedger) Snapshot() domain.Snapshot { return domain.Snapshot{} }
func (l staticLedger) ProcessedIDs() []int64     { return l.ids }

// recordingClock never blocks. It calls onSleep after each wait so tests can
// stop the loop at a chosen point.
type recordingClock struct {
	waits   []time.Duration
	onSleep func(n int)
}

func (c *recordingClock) Sleep(ctx context.Context, d time.Duration) error {
	c.waits = append(c.waits, d)
	if c.onSleep != nil {
		c.onSleep(len(c.waits))
	}
	return ctx.Err()
}

type fixture struct {
	poller      *Poller
	processor   *scriptedProcessor
	checkpoints *memCheckpoints
	reporter    *countingReporter
	clock       *recordingClock
}

func newFixture(start int64, outcome func(int64) domain.ProcessResult) *fixture {
	cfg := config.Default()
	cfg.PollInterval = 300 * time.Millisecond
	cfg.ReportEvery = 10

	f := &fixture{
		processor:   &scriptedProcessor{outcome: outcome},
		checkpoints: &memCheckpoints{},
		reporter:    &countingReporter{},
		clock:       &recordingClock{},
	}
	f.poller = New(cfg, f.processor, fixedResolver{id: start}, f.checkpoints, f.reporter, staticLedger{}, zerolog.Nop())
	f.poller.clock = f.clock
	return f
}

func (f *fixture) stopAfter(sleeps int) {
	f.clock.onSleep = func(n int) {
		if n >= sleeps {
			f.poller.Stop()
		}
	}
}

func TestBackoffDelay(t *testing.T) {
	tests := []struct {
		failures int
		want     time.Duration
	}{
		{0, 0},
		{1, 0},
		{20, 0},
		{21, constants.ShortBackoffDelay},
		{50, constants.ShortBackoffDelay},
		{51, constants.LongBackoffDelay},
		{99, constants.LongBackoffDelay},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, BackoffDelay(tt.failures), "failures=%d", tt.failures)
	}
	require.Greater(t, BackoffDelay(51), BackoffDelay(21))
	require.Greater(t, BackoffDelay(21), BackoffDelay(20))
}

func TestRunStopsAtFailureCeiling(t *testing.T) {
	f := newFixture(1000, notFound)

	err := f.poller.Run(context.Background())
	require.ErrorIs(t, err, ErrFailureCeiling)

	calls := f.processor.Calls()
	require.Len(t, calls, constants.MaxConsecutiveFailures)
	require.Equal(t, int64(1000), calls[0])
	require.Equal(t, int64(1099), calls[len(calls)-1])
	require.Empty(t, f.checkpoints.saved)
	require.Equal(t, StateStopped, f.poller.Status().State)
	require.Equal(t, 1, f.reporter.reports, "final report only")

	// one wait between consecutive fetches, none after the last
	require.Len(t, f.clock.waits, constants.MaxConsecutiveFailures-1)
	require.Equal(t, 300*time.Millisecond, f.clock.waits[19])
	require.Equal(t, 300*time.Millisecond+constants.ShortBackoffDelay, f.clock.waits[20])
	require.Equal(t, 300*time.Millisecond+constants.ShortBackoffDelay, f.clock.waits[49])
	require.Equal(t, 300*time.Millisecond+constants.LongBackoffDelay, f.clock.waits[50])
}

func TestSuccessResetsBackoff(t *testing.T) {
	// ids 1..25 fail, 26 succeeds, 27 fails
	f := newFixture(1, func(id int64) domain.ProcessResult {
		if id == 26 {
			return merged(id)
		}
		return notFound(id)
	})
	f.stopAfter(27)

	require.NoError(t, f.poller.Run(context.Background()))

	require.Equal(t, 300*time.Millisecond+constants.ShortBackoffDelay, f.clock.waits[24])
	require.Equal(t, 300*time.Millisecond, f.clock.waits[25], "success resets to the base interval")
	require.Equal(t, 300*time.Millisecond, f.clock.waits[26])
	require.Equal(t, []int64{26}, f.checkpoints.saved)

	st := f.poller.Status()
	require.Equal(t, int64(26), st.LastSuccessfulID)
	require.Equal(t, 1, st.ConsecutiveFailures)
	require.Equal(t, int64(28), st.CurrentID)
}

func TestCheckpointEverySuccessAndPeriodicReport(t *testing.T) {
	f := newFixture(500, merged)
	f.stopAfter(25)

	require.NoError(t, f.poller.Run(context.Background()))

	require.Len(t, f.checkpoints.saved, 25)
	require.Equal(t, int64(500), f.checkpoints.saved[0])
	require.Equal(t, int64(524), f.checkpoints.saved[24])
	// two periodic reports at 10 and 20 merges plus the final one
	require.Equal(t, 3, f.reporter.reports)
	require.Equal(t, 25, f.poller.Status().Merged)
}

func TestKnownIDsAreNotProcessedAgain(t *testing.T) {
	f := newFixture(10, merged)
	f.poller.ledger = staticLedger{ids: []int64{10, 11}}
	f.stopAfter(3)

	require.NoError(t, f.poller.Run(context.Background()))

	require.Equal(t, []int64{12}, f.processor.Calls())
	require.Equal(t, []int64{10, 11, 12}, f.checkpoints.saved)
}

func TestCheckpointFailureRetriesSameID(t *testing.T) {
	f := newFixture(40, merged)
	attempts := 0
	f.checkpoints.fail = func(id int64) bool {
		if id == 40 {
			attempts++
			return attempts == 1
		}
		return false
	}
	f.stopAfter(3)

	require.NoError(t, f.poller.Run(context.Background()))

	// 40 is fetched once; the retry only rewrites the checkpoint
	require.Equal(t, []int64{40, 41}, f.processor.Calls())
	require.Equal(t, []int64{40, 41}, f.checkpoints.saved)
	require.Equal(t, 0, f.poller.Status().ConsecutiveFailures)
	require.Equal(t, 2, f.poller.Status().Merged)
}

func TestStopFromAnotherGoroutine(t *testing.T) {
	f := newFixture(1, merged)
	f.poller.clock = realClock{}
	f.poller.pollInterval = time.Millisecond

	done := make(chan error, 1)
	go func() { done <- f.poller.Run(context.Background()) }()

	require.Eventually(t, func() bool { return len(f.processor.Calls()) >= 3 }, 2*time.Second, time.Millisecond)
	f.poller.Stop()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not stop")
	}
	require.Equal(t, StateStopped, f.poller.Status().State)
}

func TestContextCancellationStopsRun(t *testing.T) {
	f := newFixture(1, notFound)
	ctx, cancel := context.WithCancel(context.Background())
	f.clock.onSleep = func(n int) {
		if n == 5 {
			cancel()
		}
	}

	require.NoError(t, f.poller.Run(ctx))
	require.Len(t, f.processor.Calls(), 5)
}

func TestPanicIsRecovered(t *testing.T) {
	f := newFixture(1, func(id int64) domain.ProcessResult {
		if id == 3 {
			panic("unexpected")
		}
		return merged(id)
	})

	err := f.poller.Run(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "panicked")
	require.Equal(t, StateStopped, f.poller.Status().State)
	require.Equal(t, []int64{1, 2}, f.checkpoints.saved)
}

func TestResolveErrorStopsRun(t *testing.T) {
	f := newFixture(0, merged)
	f.poller.resolver = fixedResolver{err: errors.New("boom")}

	require.Error(t, f.poller.Run(context.Background()))
	require.Empty(t, f.processor.Calls())
}

func TestRunTwiceConcurrently(t *testing.T) {
	f := newFixture(1, merged)
	f.poller.running.Store(true)

	require.ErrorIs(t, f.poller.Run(context.Background()), ErrAlreadyRunning)
}
