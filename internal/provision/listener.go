package provision

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/nexushq/nexus/internal/domain"
)

// StepFeed is the push-based subscription over the step log. Subscribe
// returns an unsubscribe function.
type StepFeed interface {
	SubscribeSteps(orgID string, fn func(domain.ProvisioningStep)) (func() error, error)
}

// Listener renders provisioning progress from the step feed. Steps may
// arrive in any order; the observed step-name set, not position, is the
// source of truth. The terminal marker closes Done exactly once no
// matter how often it is delivered.
type Listener struct {
	mu    sync.Mutex
	log   zerolog.Logger
	orgID string
	seen  map[string]bool
	steps []domain.ProvisioningStep
	done  chan struct{}
	unsub func() error
}

func NewListener(orgID string, log zerolog.Logger) *Listener {
	return &Listener{
		log:   log,
		orgID: orgID,
		seen:  map[string]bool{},
		done:  make(chan struct{}),
	}
}

// Subscribe attaches the listener to the feed. No polling: every step
// is pushed as the orchestrator writes it.
func (l *Listener) Subscribe(feed StepFeed) error {
	unsub, err := feed.SubscribeSteps(l.orgID, l.Apply)
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.unsub = unsub
	l.mu.Unlock()
	return nil
}

// Apply records one observed step row. Idempotent per step name.
func (l *Listener) Apply(step domain.ProvisioningStep) {
	if step.OrganizationID != l.orgID {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.seen[step.Step] {
		l.seen[step.Step] = true
		l.steps = append(l.steps, step)
	}
	if step.Step == StepComplete {
		select {
		case <-l.done:
		default:
			close(l.done)
		}
	}
}

// StepDone reports whether a step name has been observed.
func (l *Listener) StepDone(name string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seen[name]
}

// Steps returns the observed rows in arrival order, deduplicated.
func (l *Listener) Steps() []domain.ProvisioningStep {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.ProvisioningStep, len(l.steps))
	copy(out, l.steps)
	return out
}

// Done is closed once the terminal marker has been observed.
func (l *Listener) Done() <-chan struct{} { return l.done }

// Close detaches from the feed.
func (l *Listener) Close() {
	l.mu.Lock()
	unsub := l.unsub
	l.unsub = nil
	l.mu.Unlock()
	if unsub != nil {
		if err := unsub(); err != nil {
			l.log.Error().Err(err).Msg("step feed unsubscribe failed")
		}
	}
}
