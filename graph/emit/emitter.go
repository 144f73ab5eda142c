package emit

// Emitter receives observability events from workflow runs.
//
// Implementations must be safe for concurrent use (fan-out runs emit from
// several goroutines) and must not block or panic.
type Emitter interface {
	Emit(event Event)
}

// Multi fans every event out to each of its emitters in order.
type Multi []Emitter

// Emit implements Emitter.
func (m Multi) Emit(event Event) {
	for _, e := range m {
		if e != nil {
			e.Emit(event)
		}
	}
}
