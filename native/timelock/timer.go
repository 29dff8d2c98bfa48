package timelock

// Outcome describes what a Request call did to a timer.
type Outcome uint8

const (
	// OutcomeRequested means a new pending value was armed.
	OutcomeRequested Outcome = 1 << iota
	// OutcomeEffected means a due pending value was promoted to current.
	OutcomeEffected
)

func (o Outcome) Requested() bool { return o&OutcomeRequested != 0 }
func (o Outcome) Effected() bool  { return o&OutcomeEffected != 0 }

// Timer is the request/delay/revoke state of one governed value.
// EffectiveAt == 0 means nothing is pending; Next then mirrors Current.
type Timer[T comparable] struct {
	Current     T
	Next        T
	EffectiveAt uint64
}

// Pending reports whether a change is waiting to take effect.
func (t *Timer[T]) Pending() bool { return t.EffectiveAt != 0 }

// Due reports whether the pending change may be committed at now.
func (t *Timer[T]) Due(now uint64) bool {
	return t.EffectiveAt != 0 && now >= t.EffectiveAt
}

// Request proposes value. A due pending change is committed first; value is
// then armed as a fresh request unless it equals the new current value. A
// pending change that is not yet due is overwritten and its wait restarted.
//
// delay is evaluated after any commit so a timer governing the delay itself
// arms the next request with the value it just committed.
func (t *Timer[T]) Request(now uint64, value T, delay func() uint64) Outcome {
	var out Outcome
	if t.Due(now) {
		t.Current = t.Next
		t.EffectiveAt = 0
		out |= OutcomeEffected
		if value == t.Current {
			return out
		}
	}
	t.Arm(now, delay(), value)
	return out | OutcomeRequested
}

// Arm unconditionally replaces the pending value.
func (t *Timer[T]) Arm(now, delay uint64, value T) {
	t.Next = value
	t.EffectiveAt = now + delay
}

// Revoke drops the pending change. It returns false when nothing was pending.
func (t *Timer[T]) Revoke() bool {
	if !t.Pending() {
		return false
	}
	t.Next = t.Current
	t.EffectiveAt = 0
	return true
}
