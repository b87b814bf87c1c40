package events

import (
	"github.com/kelindar/event"
)

// Bus wraps kelindar/event dispatcher for event broadcasting.
// Handlers run asynchronously on dispatcher goroutines.
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates a new event bus.
func New() *Bus {
	return &Bus{
		dispatcher: event.NewDispatcher(),
	}
}

// Publish publishes an event to all subscribers.
// Usage: bus.Publish(ProcessStartedEvent{...})
func (b *Bus) Publish(ev Event) {
	switch e := ev.(type) {
	case ProcessStartedEvent:
		event.Publish(b.dispatcher, e)
	case ProcessExitedEvent:
		event.Publish(b.dispatcher, e)
	case LaunchFailedEvent:
		event.Publish(b.dispatcher, e)
	case StopRequestedEvent:
		event.Publish(b.dispatcher, e)
	case HelperStateChangedEvent:
		event.Publish(b.dispatcher, e)
	case ProcessStatsEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe subscribes to events with a handler function. The handler's
// parameter type selects the event. Returns an unsubscribe function; an
// unrecognized handler type yields a no-op unsubscribe.
// Usage: unsub := bus.Subscribe(func(e ProcessExitedEvent) { ... })
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(ProcessStartedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ProcessExitedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(LaunchFailedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(StopRequestedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(HelperStateChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ProcessStatsEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		return func() {}
	}
}

// SubscribeToChannel forwards events of type T into ch without blocking the
// dispatcher; events are dropped while ch is full.
func SubscribeToChannel[T Event](bus *Bus, ch chan<- any) func() {
	return event.Subscribe(bus.dispatcher, func(e T) {
		select {
		case ch <- e:
		default:
		}
	})
}

// SubscribeAll forwards every event type into ch. Returns a function that
// removes all subscriptions.
func SubscribeAll(bus *Bus, ch chan<- any) func() {
	unsubscribers := []func(){
		SubscribeToChannel[ProcessStartedEvent](bus, ch),
		SubscribeToChannel[ProcessExitedEvent](bus, ch),
		SubscribeToChannel[LaunchFailedEvent](bus, ch),
		SubscribeToChannel[StopRequestedEvent](bus, ch),
		SubscribeToChannel[HelperStateChangedEvent](bus, ch),
		SubscribeToChannel[ProcessStatsEvent](bus, ch),
	}
	return func() {
		for _, unsub := range unsubscribers {
			unsub()
		}
	}
}
