// Package eventbus provides in-process fan-out buses used to observe
// simulation runs without coupling the controller to its consumers.
package eventbus

// Event represents an arbitrary event passed on the bus.
type Event interface{}

// EventBus implements a simple publish/subscribe event bus.
type EventBus interface {
	Publish(Event)
	Subscribe() <-chan Event
	Unsubscribe(<-chan Event)
	Close()
}

// Bus is the untyped EventBus implementation.
type Bus = TypedBus[Event]

// New creates a new Bus with the default buffer size.
func New() *Bus { return NewTyped[Event]() }
