// Package tristate provides a three-valued signal type used across the
// audit pipeline. Every signal that can be absent distinguishes a value
// that was observed, a value that was observed to be missing, and a value
// that was never checked. Audits must never conflate "not found" with
// "not checked".
package tristate

import "encoding/json"

// State identifies which of the three cases a TriState holds.
type State string

const (
	StatePresent State = "present"
	StateAbsent  State = "absent"
	StateUnknown State = "unknown"
)

// TriState holds a value, the observed absence of a value, or an
// unknown marker carrying the reason the signal was not measured.
type TriState[T any] struct {
	state  State
	value  T
	reason string
}

// Present wraps an observed value.
func Present[T any](v T) TriState[T] {
	return TriState[T]{state: StatePresent, value: v}
}

// Absent marks a signal that was checked and found missing.
func Absent[T any]() TriState[T] {
	return TriState[T]{state: StateAbsent}
}

// Unknown marks a signal that could not be checked, with the reason.
func Unknown[T any](reason string) TriState[T] {
	return TriState[T]{state: StateUnknown, reason: reason}
}

// State returns which case this TriState holds. The zero value reports
// unknown with an empty reason.
func (t TriState[T]) State() State {
	if t.state == "" {
		return StateUnknown
	}
	return t.state
}

// IsPresent reports whether a value was observed.
func (t TriState[T]) IsPresent() bool { return t.state == StatePresent }

// IsAbsent reports whether the signal was checked and found missing.
func (t TriState[T]) IsAbsent() bool { return t.state == StateAbsent }

// IsUnknown reports whether the signal was never measured.
func (t TriState[T]) IsUnknown() bool { return t.State() == StateUnknown }

// Value returns the observed value and whether one is present.
func (t TriState[T]) Value() (T, bool) {
	return t.value, t.state == StatePresent
}

// ValueOr returns the observed value or the given fallback.
func (t TriState[T]) ValueOr(fallback T) T {
	if t.state == StatePresent {
		return t.value
	}
	return fallback
}

// Reason returns the unknown reason, empty unless the state is unknown.
func (t TriState[T]) Reason() string { return t.reason }

type triStateJSON[T any] struct {
	State  State  `json:"state"`
	Value  *T     `json:"value,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// MarshalJSON encodes the state tag plus value or reason.
func (t TriState[T]) MarshalJSON() ([]byte, error) {
	out := triStateJSON[T]{State: t.State(), Reason: t.reason}
	if t.state == StatePresent {
		v := t.value
		out.Value = &v
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the representation produced by MarshalJSON.
func (t *TriState[T]) UnmarshalJSON(data []byte) error {
	var in triStateJSON[T]
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	switch in.State {
	case StatePresent:
		if in.Value != nil {
			*t = Present(*in.Value)
		} else {
			var zero T
			*t = Present(zero)
		}
	case StateAbsent:
		*t = Absent[T]()
	default:
		*t = Unknown[T](in.Reason)
	}
	return nil
}
