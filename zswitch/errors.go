package zswitch

import (
	"fmt"

	"github.com/pkg/errors"
)

// Validation faults. They are reported before any motion happens.
var (
	ErrNotHomed       = errors.New("must home first")
	ErrSwitchPosition = errors.New("z switch position invalid")
	ErrNoTools        = errors.New("no tools available")
	ErrNoValidTools   = errors.New("no valid tools selected")
	ErrInvalidMethod  = errors.New("invalid Z_CALC, use median, average or trimmed")
	ErrInvalidOptions = errors.New("invalid sample options")
)

var validation = []error{
	ErrNotHomed,
	ErrSwitchPosition,
	ErrNoTools,
	ErrNoValidTools,
	ErrInvalidMethod,
	ErrInvalidOptions,
}

// IsValidation reports if err is a user-correctable validation fault.
func IsValidation(err error) bool {
	for _, v := range validation {
		if errors.Is(err, v) {
			return true
		}
	}
	return false
}

// FaultKind classifies a probe failure.
type FaultKind int

const (
	FaultOther FaultKind = iota

	// FaultPreTriggered means the switch was already active before the
	// probing move started.
	FaultPreTriggered
)

func (k FaultKind) String() string {
	if k == FaultPreTriggered {
		return "pre-triggered"
	}
	return "other"
}

// ProbeFault is returned by Probe implementations.
type ProbeFault struct {
	Kind FaultKind
	Err  error
}

func (f *ProbeFault) Error() string {
	msg := "probe failed"
	if f.Kind == FaultPreTriggered {
		msg = "probe triggered prior to movement"
	}
	if f.Err != nil {
		msg += ": " + f.Err.Error()
	}
	return msg
}

func (f *ProbeFault) Unwrap() error { return f.Err }

// IsPreTriggered reports if err is, or wraps, a pre-triggered ProbeFault.
func IsPreTriggered(err error) bool {
	var f *ProbeFault
	return errors.As(err, &f) && f.Kind == FaultPreTriggered
}

// RecoveryError is returned once every recovery attempt is spent.
type RecoveryError struct {
	Attempts int
	Last     error
}

func (e *RecoveryError) Error() string {
	return fmt.Sprintf("probe still triggered after %d recovery attempt(s): %v", e.Attempts, e.Last)
}

func (e *RecoveryError) Unwrap() error { return e.Last }

// ToleranceError is returned when no batch settled within tolerance.
type ToleranceError struct {
	Spread    float64
	Tolerance float64
	Batches   int
	Samples   int
}

func (e *ToleranceError) Error() string {
	return fmt.Sprintf("probe spread %.5f exceeds tolerance %.5f after %d batch(es) of %d samples",
		e.Spread, e.Tolerance, e.Batches, e.Samples)
}

// HookError wraps a failed hook.
type HookError struct {
	Name string
	Err  error
}

func (e *HookError) Error() string { return e.Name + " hook: " + e.Err.Error() }

func (e *HookError) Unwrap() error { return e.Err }
