// Package session wraps the workflow in the small state machine an
// interactive surface needs. Output streams while the campaign runs,
// input is swallowed until the campaign has finished, and the first
// input after the close prompt closes the session.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"fuzzforge/internal/sink"
	"fuzzforge/internal/types"
	"fuzzforge/internal/workflow"
)

type State int

const (
	Idle State = iota
	Running
	CompletedSuccess
	CompletedFailure
	AwaitingClose
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case CompletedSuccess:
		return "completed_success"
	case CompletedFailure:
		return "completed_failure"
	case AwaitingClose:
		return "awaiting_close"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// statusTTL bounds how long an abandoned session's status key lingers.
const statusTTL = 24 * time.Hour

type FactoryParams struct {
	fx.In

	Orchestrator *workflow.Orchestrator
	Redis        *redis.Client `optional:"true"`
	Logger       *zap.Logger
}

type Factory struct {
	orchestrator *workflow.Orchestrator
	redis        *redis.Client
	logger       *zap.Logger
}

func NewFactory(p FactoryParams) *Factory {
	return &Factory{
		orchestrator: p.Orchestrator,
		redis:        p.Redis,
		logger:       p.Logger.Named("session"),
	}
}

// New returns an idle session for one workspace. Nothing happens until
// Open.
func (f *Factory) New(workspace, containerRef string, out sink.OutputSink) *Session {
	if out == nil {
		out = sink.Discard{}
	}
	return &Session{
		id:           uuid.NewString(),
		workspace:    workspace,
		containerRef: containerRef,
		orchestrator: f.orchestrator,
		redis:        f.redis,
		logger:       f.logger,
		out:          out,
		state:        Idle,
		lastStage:    workflow.Stage(-1),
		done:         make(chan struct{}),
	}
}

// Session runs one campaign and controls when the surface showing it
// may go away. State moves Idle -> Running -> completion ->
// AwaitingClose -> Closed; a forced Close is legal from any state.
type Session struct {
	id           string
	workspace    string
	containerRef string
	orchestrator *workflow.Orchestrator
	redis        *redis.Client
	logger       *zap.Logger
	out          sink.OutputSink

	mu         sync.Mutex
	state      State
	completion State
	exitCode   int
	report     *types.CampaignReport
	lastStage  workflow.Stage

	closeOnce sync.Once
	done      chan struct{}
}

func (s *Session) ID() string { return s.id }

// Open runs the campaign. It blocks until the campaign finishes and
// the session is awaiting close, or until a forced Close interrupts.
// The campaign's error, if any, is returned after the state machine
// has absorbed it; crashes are a completed campaign, not an error.
func (s *Session) Open(ctx context.Context) error {
	s.mu.Lock()
	if s.state != Idle {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("session already %s", state)
	}
	s.setStateLocked(Running)
	s.mu.Unlock()

	s.logger.Info("Session opened",
		zap.String("session_id", s.id),
		zap.String("workspace", s.workspace))

	report, err := s.orchestrator.ExecuteWithRetry(ctx, s.workspace, s.containerRef, s.out, s.progress, s.confirmRetry)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Closed {
		return err
	}

	switch {
	case err != nil:
		s.completion = CompletedFailure
	case len(report.Crashes) > 0:
		s.report = report
		s.completion = CompletedFailure
	default:
		s.report = report
		s.completion = CompletedSuccess
	}
	s.setStateLocked(s.completion)
	s.setStateLocked(AwaitingClose)

	s.out.Write("")
	s.out.Write("Press any key to close this session.")
	return err
}

// HandleInput feeds one chunk of user input to the session. Input
// during an active campaign is dropped so a stray keypress cannot kill
// a running fuzzer; the first input after the close prompt closes the
// session with exit code 0. Further input is ignored.
func (s *Session) HandleInput(input string) {
	s.mu.Lock()
	if s.state != AwaitingClose {
		s.mu.Unlock()
		return
	}
	s.exitCode = 0
	s.setStateLocked(Closed)
	s.mu.Unlock()

	s.logger.Info("Session closed by user", zap.String("session_id", s.id))
	s.finish()
}

// Close force-closes the session from any state, without further
// output.
func (s *Session) Close() {
	s.mu.Lock()
	if s.state != Closed {
		s.setStateLocked(Closed)
	}
	s.mu.Unlock()
	s.finish()
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Completion reports which completion state the campaign passed
// through, or Idle when it has not completed.
func (s *Session) Completion() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completion
}

func (s *Session) ExitCode() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exitCode
}

// Report returns the finished campaign's report, nil when the campaign
// failed or has not finished.
func (s *Session) Report() *types.CampaignReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.report
}

// Done closes when the session reaches Closed.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) finish() {
	s.closeOnce.Do(func() { close(s.done) })
}

// progress announces stage changes on the sink. Fraction ticks within
// a stage stay at debug level.
func (s *Session) progress(stage workflow.Stage, fraction float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger.Debug("campaign progress",
		zap.Stringer("stage", stage),
		zap.Float64("fraction", fraction))
	if stage == s.lastStage {
		return
	}
	s.lastStage = stage
	if stage != workflow.StageDone && stage != workflow.StageFailed {
		sink.Linef(s.out, "[+] %s", stage)
	}
}

func (s *Session) confirmRetry(attempt int, lastErr error) bool {
	if s.State() == Closed {
		return false
	}
	sink.Linef(s.out, "[!] campaign attempt %d failed: %v", attempt, lastErr)
	s.out.Write("[+] retrying...")
	return true
}

// setStateLocked moves the machine and mirrors the new state into
// redis for external dashboards. Mirroring is best effort.
func (s *Session) setStateLocked(next State) {
	s.state = next
	if s.redis == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	key := "fuzzforge:session_status:" + s.id
	if err := s.redis.Set(ctx, key, next.String(), statusTTL).Err(); err != nil {
		s.logger.Debug("session status not mirrored", zap.Error(err))
	}
}
