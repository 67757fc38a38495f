package engine

// SubscriptionState tracks one subscription through its lifecycle. The
// machine is monotonic: idle moves to active exactly once, active moves to
// exactly one terminal state, and terminal states never transition again.
type SubscriptionState string

const (
	// StateIdle means the subscription is allocated but not yet attached
	StateIdle SubscriptionState = "idle"
	// StateActive means the subscription is attached and may receive values
	StateActive SubscriptionState = "active"
	// StateCompleted is the terminal state after a successful completion
	StateCompleted SubscriptionState = "completed"
	// StateErrored is the terminal state after an error notification
	StateErrored SubscriptionState = "errored"
	// StateCancelled is the terminal state after an external unsubscribe
	StateCancelled SubscriptionState = "cancelled"
)

// Terminal reports whether the state permits no further transitions
func (s SubscriptionState) Terminal() bool {
	switch s {
	case StateCompleted, StateErrored, StateCancelled:
		return true
	}
	return false
}

// Subscription is the engine's record of one consumer attachment to one
// node's producer. IDs are <node-id>#<ordinal>:<fragment>, unique per run.
// State and counters are mutated on the run loop and read under the run's
// lock by status snapshots.
type Subscription struct {
	ID     string
	NodeID string

	state  SubscriptionState
	values int
}

// SubscriptionStatus is the externally visible snapshot of a subscription
type SubscriptionStatus struct {
	ID     string            `json:"id"`
	NodeID string            `json:"node_id"`
	State  SubscriptionState `json:"state"`
	Values int               `json:"values"`
}
