package trigger

// Source names what asked for a check.
type Source string

// Check sources.
const (
	SourceTimer  Source = "timer"
	SourceSignal Source = "signal"
	SourceMQTT   Source = "mqtt"
)

// Event is one request for an immediate check.
type Event struct {
	// Source is where the request came from.
	Source Source
	// MessageID identifies the MQTT message, if any.
	MessageID string
}

// notify delivers event without blocking. A pending event already asks for a
// check, so further requests are folded into it.
func notify(events chan<- Event, event Event) bool {
	select {
	case events <- event:
		return true
	default:
		return false
	}
}
