// Package poller drives the sequential walk over battle ids: resolve a start
// id once, then process one id per iteration, checkpoint every success and
// back off while failures accumulate.
package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"battle-tracker/internal/config"
	"battle-tracker/internal/constants"
	"battle-tracker/internal/domain"
	"battle-tracker/internal/telemetry"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrFailureCeiling = errors.New("too many consecutive failures")
	ErrAlreadyRunning = errors.New("poller already running")
)

type State string

const (
	StateIdle        State = "idle"
	StateResolving   State = "resolving"
	StatePolling     State = "polling"
	StateBackoffWait State = "backoff_wait"
	StateStopped     State = "stopped"
)

type Processor interface {
	Process(ctx context.Context, battleID int64) domain.ProcessResult
}

type StartResolver interface {
	Resolve(ctx context.Context) (int64, error)
}

type Checkpointer interface {
	Save(battleID int64) error
}

type Reporter interface {
	Report(ctx context.Context, snap domain.Snapshot) error
}

// Ledger is the read side of the aggregates.
type Ledger interface {
	Snapshot() domain.Snapshot
	ProcessedIDs() []int64
}

type Clock interface {
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Status is a point-in-time view of a run.
type Status struct {
	State               State  `json:"state"`
	RunID               string `json:"run_id,omitempty"`
	CurrentID           int64  `json:"current_id"`
	LastSuccessfulID    int64  `json:"last_successful_id"`
	ConsecutiveFailures int    `json:"consecutive_failures"`
	Merged              int    `json:"merged"`
}

type Poller struct {
	processor   Processor
	resolver    StartResolver
	checkpoints Checkpointer
	reporter    Reporter
	ledger      Ledger
	clock       Clock

	pollInterval time.Duration
	reportEvery  int

	running     atomic.Bool
	keepRunning atomic.Bool

	mu     sync.RWMutex
	status Status

	results metric.Int64Counter
	merged  metric.Int64Counter
	backoff metric.Int64Counter

	logger zerolog.Logger
}

func New(cfg *config.Config, processor Processor, resolver StartResolver, checkpoints Checkpointer, reporter Reporter, ledger Ledger, logger zerolog.Logger) *Poller {
	p := &Poller{
		processor:    processor,
		resolver:     resolver,
		checkpoints:  checkpoints,
		reporter:     reporter,
		ledger:       ledger,
		clock:        realClock{},
		pollInterval: cfg.PollInterval,
		reportEvery:  cfg.ReportEvery,
		status:       Status{State: StateIdle},
		logger:       logger,
	}
	if p.reportEvery <= 0 {
		p.reportEvery = constants.ReportEvery
	}

	meter := telemetry.Meter("battle-tracker/poller")
	p.results = telemetry.Int64Counter(meter, "battle_tracker.poller.results",
		"Processed battle ids by status", logger)
	p.merged = telemetry.Int64Counter(meter, "battle_tracker.poller.merged",
		"Battles merged into the aggregates", logger)
	p.backoff = telemetry.Int64Counter(meter, "battle_tracker.poller.backoff",
		"Iterations that waited in a backoff tier", logger)

	return p
}

// BackoffDelay is the extra wait added to the poll interval for a given run
// of consecutive failures.
func BackoffDelay(failures int) time.Duration {
	switch {
	case failures > constants.LongBackoffThreshold:
		return constants.LongBackoffDelay
	case failures > constants.ShortBackoffThreshold:
		return constants.ShortBackoffDelay
	default:
		return 0
	}
}

func (p *Poller) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status
}

func (p *Poller) update(fn func(s *Status)) {
	p.mu.Lock()
	fn(&p.status)
	p.mu.Unlock()
}

func (p *Poller) setState(state State) {
	p.update(func(s *Status) { s.State = state })
}

// Stop asks a running loop to exit. The loop finishes the current id first.
func (p *Poller) Stop() {
	p.keepRunning.Store(false)
}

// Run blocks until the loop stops. It returns nil after Stop or ctx
// cancellation and ErrFailureCeiling once the failure limit is reached.
func (p *Poller) Run(ctx context.Context) (err error) {
	if !p.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer p.running.Store(false)
	p.keepRunning.Store(true)

	runID := uuid.NewString()
	log := p.logger.With().Str("run_id", runID).Logger()
	p.update(func(s *Status) { *s = Status{State: StateResolving, RunID: runID} })

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("poller panicked: %v", r)
			log.Error().Interface("panic", r).Msg("poller loop crashed")
		}
		p.setState(StateStopped)
		p.report(ctx, log, "final")
		log.Info().Err(err).Msg("poller stopped")
	}()

	start, err := p.resolver.Resolve(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("failed to resolve start id: %w", err)
	}

	state := domain.ProcessingState{ProcessedIDs: make(map[int64]struct{})}
	for _, id := range p.ledger.ProcessedIDs() {
		state.ProcessedIDs[id] = struct{}{}
	}

	log.Info().Int64("start_id", start).Int("known_battles", len(state.ProcessedIDs)).Msg("polling started")
	return p.loop(ctx, log, start, &state)
}

func (p *Poller) loop(ctx context.Context, log zerolog.Logger, id int64, state *domain.ProcessingState) error {
	merged := 0

	for {
		if !p.keepRunning.Load() || ctx.Err() != nil {
			log.Info().Int64("next_id", id).Msg("stop requested")
			return nil
		}

		p.update(func(s *Status) {
			s.State = StatePolling
			s.CurrentID = id
		})

		var res domain.ProcessResult
		if _, dup := state.ProcessedIDs[id]; dup {
			res = domain.ProcessResult{BattleID: id, Status: domain.StatusDuplicate, Outcome: domain.OutcomeSuccess}
		} else {
			res = p.processor.Process(ctx, id)
		}
		p.results.Add(ctx, 1, metric.WithAttributes(
			attribute.String("status", string(res.Status)),
			attribute.String("outcome", string(res.Outcome)),
		))

		if res.Status == domain.StatusMerged {
			merged++
			p.merged.Add(ctx, 1)
			log.Info().Int64("battle_id", id).Msg(constants.LogMsgBattleMerged)
			if merged%p.reportEvery == 0 {
				p.report(ctx, log, "periodic")
			}
		}

		if res.Succeeded() {
			state.ProcessedIDs[id] = struct{}{}
			if err := p.checkpoints.Save(id); err != nil {
				// the id stays current; next time it short-circuits as a duplicate
				state.ConsecutiveFailures++
				log.Error().Err(err).Int64("battle_id", id).Int("failures", state.ConsecutiveFailures).Msg("checkpoint save failed")
			} else {
				state.LastSuccessfulID = id
				state.ConsecutiveFailures = 0
				id++
			}
		} else {
			state.ConsecutiveFailures++
			log.Debug().
				Err(res.Err).
				Int64("battle_id", id).
				Str("status", string(res.Status)).
				Str("outcome", string(res.Outcome)).
				Int("status_code", res.StatusCode).
				Int("failures", state.ConsecutiveFailures).
				Msg("battle skipped")
			id++
		}

		p.update(func(s *Status) {
			s.CurrentID = id
			s.LastSuccessfulID = state.LastSuccessfulID
			s.ConsecutiveFailures = state.ConsecutiveFailures
			s.Merged = merged
		})

		if state.ConsecutiveFailures >= constants.MaxConsecutiveFailures {
			log.Error().
				Int("failures", state.ConsecutiveFailures).
				Int64("last_successful_id", state.LastSuccessfulID).
				Msg("failure ceiling reached")
			return ErrFailureCeiling
		}

		wait := p.pollInterval
		if delay := BackoffDelay(state.ConsecutiveFailures); delay > 0 {
			p.setState(StateBackoffWait)
			p.backoff.Add(ctx, 1)
			log.Warn().Int("failures", state.ConsecutiveFailures).Dur("delay", delay).Msg("backing off")
			wait += delay
		}
		if err := p.clock.Sleep(ctx, wait); err != nil {
			log.Info().Int64("next_id", id).Msg("context cancelled")
			return nil
		}
	}
}

func (p *Poller) report(ctx context.Context, log zerolog.Logger, reason string) {
	if p.reporter == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), constants.RequestTimeout)
	defer cancel()

	if err := p.reporter.Report(ctx, p.ledger.Snapshot()); err != nil {
		log.Error().Err(err).Str("reason", reason).Msg("report failed")
	}
}
