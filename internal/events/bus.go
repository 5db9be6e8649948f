package events

import (
	"github.com/kelindar/event"
)

// Bus wraps a kelindar/event dispatcher.
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates a new event bus.
func New() *Bus {
	return &Bus{
		dispatcher: event.NewDispatcher(),
	}
}

// Publish delivers ev to every subscriber of its concrete type.
func (b *Bus) Publish(ev Event) {
	switch e := ev.(type) {
	case CameraStateChangedEvent:
		event.Publish(b.dispatcher, e)
	case ServiceCalledEvent:
		event.Publish(b.dispatcher, e)
	case PlatformLoadedEvent:
		event.Publish(b.dispatcher, e)
	case LogEntryEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe registers a typed handler, e.g. func(CameraStateChangedEvent).
// Unknown handler types get a no-op unsubscribe.
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(CameraStateChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ServiceCalledEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(PlatformLoadedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(LogEntryEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		return func() {}
	}
}
