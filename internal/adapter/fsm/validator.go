package fsm

import (
	"context"
	"errors"
	"fmt"

	loopfsm "github.com/looplab/fsm"

	"github.com/neomorfeo/tenantdb/internal/domain"
)

// Compile-time check: Validator implements domain.TransitionValidator.
var _ domain.TransitionValidator = (*Validator)(nil)

// events converts domain.Transitions into looplab/fsm EventDesc format,
// one machine description per provisioning stage. Transitions with the
// same event and destination are consolidated into a single EventDesc
// with multiple source states.
var events = buildEvents()

func buildEvents() map[domain.Stage][]loopfsm.EventDesc {
	type key struct {
		event string
		dst   string
	}

	out := make(map[domain.Stage][]loopfsm.EventDesc, len(domain.Stages))
	for _, stage := range domain.Stages {
		grouped := make(map[key][]string)
		order := make([]key, 0)

		for _, t := range domain.TransitionsFor(stage) {
			k := key{event: string(t.Event), dst: t.Dst}
			if _, exists := grouped[k]; !exists {
				order = append(order, k)
			}
			grouped[k] = append(grouped[k], t.Src)
		}

		descs := make([]loopfsm.EventDesc, 0, len(order))
		for _, k := range order {
			descs = append(descs, loopfsm.EventDesc{
				Name: k.event,
				Src:  grouped[k],
				Dst:  k.dst,
			})
		}
		out[stage] = descs
	}
	return out
}

// Validator implements domain.TransitionValidator using looplab/fsm.
// It creates a short-lived FSM instance per Apply call, initialized with
// the stage's current status, because looplab/fsm tracks the current
// state internally.
type Validator struct{}

// New creates a new FSM-backed transition validator.
func New() *Validator {
	return &Validator{}
}

// Apply checks if the event is valid for the stage's current status and
// returns the destination status. Returns a domain.TransitionError if the
// transition is not allowed.
func (v *Validator) Apply(ctx context.Context, stage domain.Stage, current string, event domain.Event) (string, error) {
	descs, ok := events[stage]
	if !ok {
		return "", fmt.Errorf("unknown stage %q", stage)
	}

	machine := loopfsm.NewFSM(current, descs, nil)

	if err := machine.Event(ctx, string(event)); err != nil {
		var invalidEvent loopfsm.InvalidEventError
		var unknownEvent loopfsm.UnknownEventError
		var noTransition loopfsm.NoTransitionError
		if errors.As(err, &invalidEvent) || errors.As(err, &unknownEvent) || errors.As(err, &noTransition) {
			return "", &domain.TransitionError{
				Stage:   stage,
				Event:   event,
				Current: current,
			}
		}
		return "", err
	}

	return machine.Current(), nil
}
