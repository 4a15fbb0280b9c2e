package marketsdk

import (
	evbus "github.com/asaskevich/EventBus"
)

// Tracker receives fire-and-forget analytics events. Implementations must
// never block order flows.
type Tracker interface {
	Track(event string, props map[string]string, nums map[string]float64)
}

// NopTracker discards all events.
type NopTracker struct{}

func (NopTracker) Track(string, map[string]string, map[string]float64) {}

// TrackEvent is the payload published on the analytics bus.
type TrackEvent struct {
	Event string
	Props map[string]string
	Nums  map[string]float64
}

const analyticsTopic = "analytics:track"

// BusTracker publishes events on an in-process event bus so multiple
// consumers can subscribe without coupling to the order flow.
type BusTracker struct {
	bus evbus.Bus
}

func NewBusTracker() *BusTracker {
	return &BusTracker{bus: evbus.New()}
}

func (t *BusTracker) Track(event string, props map[string]string, nums map[string]float64) {
	t.bus.Publish(analyticsTopic, TrackEvent{Event: event, Props: props, Nums: nums})
}

// Subscribe registers an async consumer for tracked events.
func (t *BusTracker) Subscribe(fn func(TrackEvent)) error {
	return t.bus.SubscribeAsync(analyticsTopic, fn, false)
}

// Unsubscribe removes a previously registered consumer.
func (t *BusTracker) Unsubscribe(fn func(TrackEvent)) error {
	return t.bus.Unsubscribe(analyticsTopic, fn)
}
