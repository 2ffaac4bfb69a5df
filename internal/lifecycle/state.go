// Package lifecycle installs, activates and retires releases of the agent's
// cached content, and keeps the partitions of the active release tidy.
package lifecycle

import (
	"errors"
	"fmt"
)

// State 是一个发布版本的生命周期状态。
type State string

const (
	StateInstalling State = "installing"
	StateWaiting    State = "waiting"
	StateActivating State = "activating"
	StateActive     State = "active"
	StateSuperseded State = "superseded"
	StateRedundant  State = "redundant"
)

// ErrInvalidTransition 表示状态迁移不被允许。
var ErrInvalidTransition = errors.New("invalid lifecycle transition")

// transitions 列出每个状态允许的下一状态；任何未终结的状态都可以直接变为 redundant。
var transitions = map[State][]State{
	StateInstalling: {StateWaiting, StateRedundant},
	StateWaiting:    {StateActivating, StateRedundant},
	StateActivating: {StateActive, StateRedundant},
	StateActive:     {StateSuperseded, StateRedundant},
	StateSuperseded: {StateRedundant},
}

func canTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func transitionError(from, to State) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}
