// Package viewport decides what a message list does when it changes: follow
// the newest message, or hold the reader's position and show a "new
// messages" marker. It also decides when viewing a conversation counts as
// reading it.
package viewport

import "sync"

// DefaultThreshold is how close to the bottom, in layout units, still counts
// as being at the bottom.
const DefaultThreshold = 100

type Action int

const (
	ActionNone Action = iota
	ActionScrollToNewest
	ActionShowAffordance
)

func (a Action) String() string {
	switch a {
	case ActionScrollToNewest:
		return "scroll_to_newest"
	case ActionShowAffordance:
		return "show_new_messages"
	}
	return "none"
}

// Decision is what the surface must render after a change. NewMessages is the
// affordance count and is zero unless Action is ActionShowAffordance.
type Decision struct {
	Action      Action
	NewMessages int
}

// Trigger says who caused a fetch.
type Trigger int

const (
	TriggerBackground Trigger = iota
	TriggerForeground
)

// ShouldMarkRead reports whether a fetch may mark the conversation read.
// Background ticks never do.
func ShouldMarkRead(t Trigger) bool { return t == TriggerForeground }

// Viewport tracks the at-bottom flag for one message list. A new list starts
// at the bottom.
type Viewport struct {
	mu        sync.Mutex
	threshold float64
	atBottom  bool
	unseen    int
}

func New(threshold float64) *Viewport {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Viewport{threshold: threshold, atBottom: true}
}

// OnScroll recomputes the at-bottom flag from the list geometry. Reaching the
// bottom clears the affordance.
func (v *Viewport) OnScroll(scrollTop, viewportHeight, contentHeight float64) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	distance := contentHeight - (scrollTop + viewportHeight)
	v.atBottom = distance <= v.threshold
	if v.atBottom {
		v.unseen = 0
	}
	return v.atBottom
}

func (v *Viewport) IsAtBottom() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.atBottom
}

// Unseen is the count shown on the affordance.
func (v *Viewport) Unseen() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.unseen
}

// OnPollAppend handles n messages arriving from a background tick. The scroll
// position is left alone unless the reader is already at the bottom.
func (v *Viewport) OnPollAppend(n int) Decision {
	if n <= 0 {
		return Decision{}
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.atBottom {
		return Decision{Action: ActionScrollToNewest}
	}
	v.unseen += n
	return Decision{Action: ActionShowAffordance, NewMessages: v.unseen}
}

// OnLocalSend always follows the reader's own message.
func (v *Viewport) OnLocalSend() Decision {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.atBottom = true
	v.unseen = 0
	return Decision{Action: ActionScrollToNewest}
}

// JumpToNewest is the affordance being clicked.
func (v *Viewport) JumpToNewest() Decision {
	return v.OnLocalSend()
}
