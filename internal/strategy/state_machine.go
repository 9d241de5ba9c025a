package strategy

import (
	"sync"

	"github.com/shopspring/decimal"
)

// StateMachine holds the hedge state. The funding loop is the only writer;
// the health monitor only reads.
type StateMachine struct {
	mu    sync.RWMutex
	state State
}

func NewStateMachine(initial State) *StateMachine {
	if initial != StateHedged {
		initial = StateFlat
	}
	return &StateMachine{state: initial}
}

func (s *StateMachine) Current() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *StateMachine) Set(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

// Decide maps the current state and funding rate to the next action. A zero
// rate never opens and always closes an open hedge.
func Decide(state State, rate decimal.Decimal) Action {
	switch state {
	case StateFlat:
		if rate.IsPositive() {
			return ActionOpen
		}
	case StateHedged:
		if !rate.IsPositive() {
			return ActionClose
		}
	}
	return ActionHold
}
