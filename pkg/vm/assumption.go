package vm

import (
	"log/slog"
	"sync/atomic"
)

// Assumption is a one-way flag: valid until invalidated, never valid again.
// Reads are a single atomic load.
type Assumption struct {
	name    string
	invalid atomic.Bool
}

func NewAssumption(name string) *Assumption {
	return &Assumption{name: name}
}

func (a *Assumption) Name() string { return a.name }

func (a *Assumption) Valid() bool { return !a.invalid.Load() }

// Invalidate reports whether this call was the one that invalidated a.
func (a *Assumption) Invalidate() bool { return !a.invalid.Swap(true) }

// Assumptions are the realm-wide flags the array write strategies consult.
type Assumptions struct {
	// NoPrototypeElements holds while no object used as a prototype owns
	// an indexed property.
	NoPrototypeElements *Assumption
	// FastArray holds while every array still inherits directly from the
	// realm's Array prototype.
	FastArray *Assumption

	logger *slog.Logger
}

func newAssumptions(logger *slog.Logger) *Assumptions {
	return &Assumptions{
		NoPrototypeElements: NewAssumption("NoPrototypeElements"),
		FastArray:           NewAssumption("FastArray"),
		logger:              logger,
	}
}

func (as *Assumptions) invalidatePrototypeElements(class ObjectClass) {
	if as.NoPrototypeElements.Invalidate() {
		as.logger.Info("assumption invalidated", "assumption", as.NoPrototypeElements.Name(), "prototype", class.String())
	}
}

func (as *Assumptions) invalidateFastArray() {
	if as.FastArray.Invalidate() {
		as.logger.Info("assumption invalidated", "assumption", as.FastArray.Name())
	}
}
