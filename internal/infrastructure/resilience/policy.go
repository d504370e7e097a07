package resilience

import "time"

// Collaborator names. They key retry policies and prefix breaker names.
const (
	CollaboratorOllama    = "ollama"
	CollaboratorWorkspace = "workspace"
	CollaboratorDrafting  = "drafting"
	CollaboratorConverter = "converter"
	CollaboratorEvents    = "nats"
)

// CollaboratorPolicy is the retry budget of one collaborator. A call to a collaborator
// that is not Idempotent gets exactly one attempt, whatever MaxAttempts says.
type CollaboratorPolicy struct {
	Idempotent bool
	// MaxAttempts of zero falls back to Config.RetryMaxAttempts.
	MaxAttempts int
}

type Config struct {
	RetryMaxAttempts    int
	RetryInitialBackoff time.Duration
	RetryMaxBackoff     time.Duration
	RetryMultiplier     float64

	BreakerEnabled          bool
	BreakerMinRequests      uint32
	BreakerFailureRatio     float64
	BreakerOpenTimeout      time.Duration
	BreakerHalfOpenMaxCalls uint32

	// Collaborators not present here are treated as non-idempotent.
	Collaborators map[string]CollaboratorPolicy
}

// DefaultCollaborators: oracle and workspace reads are safe to repeat, the converter
// deduplicates on the draft idempotency key, event publishes are at-least-once, and a
// drafting call creates a new proposal each time so it is never repeated.
func DefaultCollaborators() map[string]CollaboratorPolicy {
	return map[string]CollaboratorPolicy{
		CollaboratorOllama:    {Idempotent: true},
		CollaboratorWorkspace: {Idempotent: true},
		CollaboratorConverter: {Idempotent: true},
		CollaboratorEvents:    {Idempotent: true},
		CollaboratorDrafting:  {Idempotent: false, MaxAttempts: 1},
	}
}

func DefaultConfig() Config {
	return Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: 100 * time.Millisecond,
		RetryMaxBackoff:     800 * time.Millisecond,
		RetryMultiplier:     2.0,

		BreakerEnabled:          true,
		BreakerMinRequests:      10,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      30 * time.Second,
		BreakerHalfOpenMaxCalls: 2,

		Collaborators: DefaultCollaborators(),
	}
}

// WithMaxAttempts returns a copy of c with the attempt budget of one collaborator replaced.
// Unknown collaborators are added as non-idempotent.
func (c Config) WithMaxAttempts(collaborator string, attempts int) Config {
	base := c.Collaborators
	if base == nil {
		base = DefaultCollaborators()
	}
	out := c
	out.Collaborators = make(map[string]CollaboratorPolicy, len(base)+1)
	for name, policy := range base {
		out.Collaborators[name] = policy
	}
	policy := out.Collaborators[collaborator]
	policy.MaxAttempts = attempts
	out.Collaborators[collaborator] = policy
	return out
}

func (c Config) attemptsFor(collaborator string) int {
	policy, ok := c.Collaborators[collaborator]
	if !ok || !policy.Idempotent {
		return 1
	}
	if policy.MaxAttempts > 0 {
		return policy.MaxAttempts
	}
	return c.RetryMaxAttempts
}

func (c Config) normalize() Config {
	out := c
	def := DefaultConfig()

	if out.RetryMaxAttempts <= 0 {
		out.RetryMaxAttempts = def.RetryMaxAttempts
	}
	if out.RetryInitialBackoff <= 0 {
		out.RetryInitialBackoff = def.RetryInitialBackoff
	}
	if out.RetryMaxBackoff < out.RetryInitialBackoff {
		out.RetryMaxBackoff = out.RetryInitialBackoff
	}
	if out.RetryMultiplier < 1.0 {
		out.RetryMultiplier = def.RetryMultiplier
	}

	if out.BreakerMinRequests == 0 {
		out.BreakerMinRequests = def.BreakerMinRequests
	}
	if out.BreakerFailureRatio <= 0 || out.BreakerFailureRatio > 1 {
		out.BreakerFailureRatio = def.BreakerFailureRatio
	}
	if out.BreakerOpenTimeout <= 0 {
		out.BreakerOpenTimeout = def.BreakerOpenTimeout
	}
	if out.BreakerHalfOpenMaxCalls == 0 {
		out.BreakerHalfOpenMaxCalls = def.BreakerHalfOpenMaxCalls
	}

	if out.Collaborators == nil {
		out.Collaborators = def.Collaborators
	}
	return out
}
