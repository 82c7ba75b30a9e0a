package checkout

import (
	"strings"
	"sync"

	pkgerrors "github.com/angelmondragon/storefront-core/pkg/errors"
)

// Step is one page of the checkout wizard.
type Step int

const (
	StepPersonal Step = 1
	StepDelivery Step = 2
	StepPayment  Step = 3
)

// IsValid reports whether the value names a wizard step.
func (s Step) IsValid() bool {
	return s >= StepPersonal && s <= StepPayment
}

func (s Step) String() string {
	switch s {
	case StepPersonal:
		return "personal"
	case StepDelivery:
		return "delivery"
	case StepPayment:
		return "payment"
	}
	return "unknown"
}

// DeriveAllowedStep returns the furthest step the shopper may be on: the first step whose
// data is incomplete or invalid, or the payment step when everything before it passes.
func DeriveAllowedStep(data FormData, errs ValidationErrors) Step {
	if !personalComplete(data) || len(errs.Personal) > 0 {
		return StepPersonal
	}
	if !deliveryComplete(data) || len(errs.Address) > 0 {
		return StepDelivery
	}
	return StepPayment
}

func personalComplete(d FormData) bool {
	return d.ProfileType.IsValid() && blankless(d.Email, d.Phone)
}

func deliveryComplete(d FormData) bool {
	return blankless(d.PostalCode, d.Street, d.Number, d.City, d.State)
}

func blankless(values ...string) bool {
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			return false
		}
	}
	return true
}

// errStepLocked is the single aggregate error a refused forward move reports.
func errStepLocked(allowed Step) error {
	return pkgerrors.New(pkgerrors.CodeValidation, "complete the previous steps before continuing").
		WithDetails(map[string]any{"step": int(allowed), "name": allowed.String()})
}

// Gate tracks the current step. Moving back to personal or delivery is always allowed;
// moving forward requires every prior step to pass.
type Gate struct {
	mu      sync.Mutex
	current Step
}

// NewGate starts at the personal step.
func NewGate() *Gate {
	return &Gate{current: StepPersonal}
}

// Current returns the active step.
func (g *Gate) Current() Step {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.current
}

// Request moves to target when allowed. A refused move sends the gate to the first
// failing step and returns one validation error naming that step.
func (g *Gate) Request(target Step, data FormData, errs ValidationErrors) (Step, error) {
	if !target.IsValid() {
		return g.Current(), pkgerrors.New(pkgerrors.CodeValidation, "unknown checkout step").
			WithDetails(map[string]any{"step": int(target)})
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if target < g.current && target != StepPayment {
		g.current = target
		return g.current, nil
	}
	allowed := DeriveAllowedStep(data, errs)
	if target <= allowed {
		g.current = target
		return g.current, nil
	}
	g.current = allowed
	return g.current, errStepLocked(allowed)
}

// Reconcile pulls the gate back when edits invalidated a step before the current one.
func (g *Gate) Reconcile(data FormData, errs ValidationErrors) Step {
	g.mu.Lock()
	defer g.mu.Unlock()
	if allowed := DeriveAllowedStep(data, errs); g.current > allowed {
		g.current = allowed
	}
	return g.current
}

// Reset returns the gate to the first step.
func (g *Gate) Reset() {
	g.mu.Lock()
	g.current = StepPersonal
	g.mu.Unlock()
}
