package actor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Policy decides what the supervisor does when an actor stops on its own.
type Policy int

const (
	// PolicyExit stops every actor and returns the exit as an error, ending
	// the process.
	PolicyExit Policy = iota
	// PolicyRestart rebuilds the actor from its factory after a backoff.
	PolicyRestart
	// PolicyIgnore logs the exit and lets the remaining actors run.
	PolicyIgnore
)

// ParsePolicy maps "exit", "restart" and "ignore" to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "exit":
		return PolicyExit, nil
	case "restart":
		return PolicyRestart, nil
	case "ignore":
		return PolicyIgnore, nil
	}
	return 0, fmt.Errorf("unknown restart policy %q (must be exit, restart or ignore)", s)
}

func (p Policy) String() string {
	switch p {
	case PolicyRestart:
		return "restart"
	case PolicyIgnore:
		return "ignore"
	default:
		return "exit"
	}
}

// Factory builds a fresh actor. It is called once at start and again for
// every restart, so it must mint new bus endpoints each time.
type Factory func() (Actor, error)

const defaultMaxBackoff = 30 * time.Second

type child struct {
	name     string
	factory  Factory
	attempts int
}

// Supervisor starts a fixed set of actors and reads every exit reason from a
// single channel.
type Supervisor struct {
	policy     Policy
	backoff    time.Duration
	maxBackoff time.Duration
	logger     *slog.Logger
	children   []*child

	// OnStart and OnExit, when set, are called from the supervisor loop.
	OnStart func(name string)
	OnExit  func(Exit)
}

// NewSupervisor creates a supervisor with the given policy. A nil logger uses
// slog.Default().
func NewSupervisor(policy Policy, backoff time.Duration, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	if backoff <= 0 {
		backoff = time.Second
	}
	return &Supervisor{
		policy:     policy,
		backoff:    backoff,
		maxBackoff: defaultMaxBackoff,
		logger:     logger,
	}
}

// Add registers an actor. Must be called before Run.
func (s *Supervisor) Add(name string, f Factory) {
	s.children = append(s.children, &child{name: name, factory: f})
}

// Names lists registered actors in the order they were added.
func (s *Supervisor) Names() []string {
	names := make([]string, len(s.children))
	for i, c := range s.children {
		names[i] = c.name
	}
	return names
}

// Run builds every actor, starts them, and supervises until ctx is cancelled
// (returns nil once all actors have stopped) or the policy gives up (returns
// the exit that caused it).
func (s *Supervisor) Run(ctx context.Context) error {
	// Build everything before starting anything, so every receiver is
	// subscribed before the first publish.
	actors := make([]Actor, len(s.children))
	for i, c := range s.children {
		a, err := c.factory()
		if err != nil {
			return fmt.Errorf("build actor %s: %w", c.name, err)
		}
		actors[i] = a
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	exits := make(chan Exit, len(s.children))
	restarts := make(chan *child)
	byName := make(map[string]*child, len(s.children))
	running := 0

	start := func(c *child, a Actor) {
		h := Start(ctx, c.name, a)
		running++
		s.logger.Debug("actor started", "actor", c.name)
		if s.OnStart != nil {
			s.OnStart(c.name)
		}
		go func() { exits <- h.Wait() }()
	}
	for i, c := range s.children {
		byName[c.name] = c
		start(c, actors[i])
	}

	var failure error
	pending := 0
	for running > 0 || pending > 0 {
		select {
		case exit := <-exits:
			running--
			if s.OnExit != nil {
				s.OnExit(exit)
			}
			if ctx.Err() != nil {
				continue
			}
			s.logExit(exit)
			switch s.policy {
			case PolicyExit:
				failure = exit.Err
				if failure == nil {
					failure = errors.New("exited")
				}
				failure = fmt.Errorf("actor %s stopped: %w", exit.Name, failure)
				cancel()
			case PolicyRestart:
				c := byName[exit.Name]
				c.attempts++
				delay := s.delay(c.attempts)
				s.logger.Info("restarting actor", "actor", c.name, "attempt", c.attempts, "backoff", delay)
				pending++
				go func() {
					select {
					case <-time.After(delay):
						restarts <- c
					case <-ctx.Done():
						restarts <- nil
					}
				}()
			case PolicyIgnore:
			}
		case c := <-restarts:
			pending--
			if c == nil || ctx.Err() != nil {
				continue
			}
			a, err := c.factory()
			if err != nil {
				failure = fmt.Errorf("rebuild actor %s: %w", c.name, err)
				s.logger.Error("actor rebuild failed", "actor", c.name, "err", err)
				cancel()
				continue
			}
			start(c, a)
		case <-ctx.Done():
			// Wait for the remaining actors to observe cancellation.
			for running > 0 || pending > 0 {
				select {
				case exit := <-exits:
					running--
					if s.OnExit != nil {
						s.OnExit(exit)
					}
				case <-restarts:
					pending--
				}
			}
		}
	}
	return failure
}

func (s *Supervisor) delay(attempt int) time.Duration {
	d := s.backoff
	for i := 1; i < attempt && d < s.maxBackoff; i++ {
		d *= 2
	}
	return min(d, s.maxBackoff)
}

func (s *Supervisor) logExit(exit Exit) {
	switch {
	case exit.Stack != "":
		s.logger.Error("actor panicked", "actor", exit.Name, "err", exit.Err, "stack", exit.Stack)
	case exit.Err != nil:
		s.logger.Error("actor stopped", "actor", exit.Name, "err", exit.Err)
	default:
		s.logger.Warn("actor returned", "actor", exit.Name)
	}
}
