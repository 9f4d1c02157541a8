package countdown

import "github.com/google/uuid"

// Breakdown is the remaining time split into calendar-style units.
type Breakdown struct {
	Days    int `json:"days"`
	Hours   int `json:"hours"`
	Minutes int `json:"minutes"`
	Seconds int `json:"seconds"`
}

// State is the per-prediction countdown state emitted on every tick.
// HasNext is true while time remains; once a prediction expires the engine
// emits a zeroed breakdown with HasNext=false exactly once and never again
// reports it as running within the same run.
type State struct {
	Breakdown Breakdown `json:"breakdown"`
	HasNext   bool      `json:"has_next"`
}

// Sink receives render instructions from an engine run. Implementations must
// not block; a tick body runs synchronously for every tracked prediction.
type Sink interface {
	EmitCountdown(id uuid.UUID, state State)
}

// Millisecond divisors for the breakdown chain.
const (
	msPerDay    = 86400000
	msPerHour   = 3600000
	msPerMinute = 60000
	msPerSecond = 1000
)

// breakdownFromMillis splits a remaining duration in milliseconds into
// days/hours/minutes/seconds by integer division with modulo chaining.
func breakdownFromMillis(ms int64) Breakdown {
	b := Breakdown{}
	b.Days = int(ms / msPerDay)
	ms %= msPerDay
	b.Hours = int(ms / msPerHour)
	ms %= msPerHour
	b.Minutes = int(ms / msPerMinute)
	ms %= msPerMinute
	b.Seconds = int(ms / msPerSecond)
	return b
}
