// Package eventbus implements the cross-worker event bus used by the
// health-checker binding to propagate health verdicts: register a callback
// for a source, post events to it, unregister when the owning balancer is
// torn down.
package eventbus

// Status is one of the two symbolic health verdicts carried by an event.
type Status string

const (
	Healthy   Status = "healthy"
	Unhealthy Status = "unhealthy"
)

// Event carries a health verdict for one peer.
type Event struct {
	IP       string
	Port     int
	Hostname string
	Status   Status
}

// Callback receives events posted to the source it was registered for.
type Callback func(Event)

// Subscription is the handle returned by RegisterWeak, passed back to
// Unregister. Its lifetime is meant to track the owning balancer's: the
// balancer binding holds it as a struct field and calls Unregister when the
// balancer is torn down (see internal/balancer/healthbinding.go).
type Subscription interface {
	Source() string
}

// Bus is the event-bus contract the health-checker binding depends on.
type Bus interface {
	// RegisterWeak subscribes cb to events posted for source. Despite the
	// name, nothing here is garbage-collector-weak: callers are responsible
	// for calling Unregister when the owning balancer is dropped, which is
	// exactly what a weak reference would have done for them automatically.
	RegisterWeak(source string, cb Callback) (Subscription, error)
	// Unregister removes a subscription.
	Unregister(sub Subscription) error
	// Post publishes an event under source to every subscriber, on every
	// worker sharing this bus.
	Post(source string, ev Event) error
}
