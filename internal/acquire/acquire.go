// internal/acquire/acquire.go - Common contract for acquisition strategies
package acquire

import (
	"context"
	"errors"
	"fmt"

	"solarwatch/internal/config"
	"solarwatch/internal/status"
)

// Kind classifies an acquisition failure and decides what happens next in
// the cycle: Transient failures are fallback-eligible, Permanent ones end
// the strategy, Config ones end the whole cycle.
type Kind int

const (
	Transient Kind = iota // network faults, 5xx, rate limiting, navigation timeouts
	Permanent             // auth rejected, element missing, unrecognized payload
	Config                // missing credential or session artifact
)

func (k Kind) String() string {
	switch k {
	case Transient:
		return "transient"
	case Permanent:
		return "permanent"
	case Config:
		return "config"
	default:
		return "unknown"
	}
}

// Error is a typed acquisition failure.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Op)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func transientErr(op string, err error) *Error {
	return &Error{Kind: Transient, Op: op, Err: err}
}

func permanentErr(op string, err error) *Error {
	return &Error{Kind: Permanent, Op: op, Err: err}
}

func configErr(op string, err error) *Error {
	return &Error{Kind: Config, Op: op, Err: err}
}

// KindOf extracts the failure kind from an acquisition error. Untyped
// errors (cancelled contexts and the like) count as Transient.
func KindOf(err error) Kind {
	var aerr *Error
	if errors.As(err, &aerr) {
		return aerr.Kind
	}
	return Transient
}

// Strategy turns a site descriptor into a raw telemetry sample or a
// typed failure. Implementations are a closed set: one per acquisition
// kind, switched by the site's configuration.
type Strategy interface {
	Name() string
	Acquire(ctx context.Context, site *config.Site) (status.Sample, error)
}
