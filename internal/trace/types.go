// Package trace provides types for invocation trace event collection
// and analysis — a host-side record of what was called, with what
// arguments, and how it resolved.
package trace

import (
	"sync"
	"time"
)

// Tag represents a trace event category.
// Tags are stored without # prefix; the prefix is added on rendering.
type Tag string

// Standard tags for trace events.
const (
	Configuration Tag = "configuration"
	Standard      Tag = "standard"
	User          Tag = "user"
	RAMLoad       Tag = "ram-load"
	Push          Tag = "push"
	Pull          Tag = "pull"
	Receive       Tag = "receive"
	EventTag      Tag = "event"
	Bind          Tag = "bind"
	Fallback      Tag = "fallback"
	Error         Tag = "error"
)

// Tags is a collection of tags with helper methods.
type Tags []Tag

// Has returns true if the tag collection contains the given tag.
func (t Tags) Has(tag Tag) bool {
	for _, x := range t {
		if x == tag {
			return true
		}
	}
	return false
}

// Add adds a tag if not already present.
func (t *Tags) Add(tag Tag) {
	if !t.Has(tag) {
		*t = append(*t, tag)
	}
}

// Strings returns tags as strings with # prefix for display.
func (t Tags) Strings() []string {
	out := make([]string, len(t))
	for i, tag := range t {
		out[i] = "#" + string(tag)
	}
	return out
}

// Raw returns tags as strings without # prefix.
func (t Tags) Raw() []string {
	out := make([]string, len(t))
	for i, tag := range t {
		out[i] = string(tag)
	}
	return out
}

// Primary returns the first tag or empty string if none.
func (t Tags) Primary() Tag {
	if len(t) > 0 {
		return t[0]
	}
	return ""
}

// Annotations holds key-value metadata for trace events.
type Annotations map[string]string

// Set adds or updates an annotation.
func (a Annotations) Set(k, v string) {
	a[k] = v
}

// Get retrieves an annotation value.
func (a Annotations) Get(k string) string {
	return a[k]
}

// Has returns true if the annotation exists.
func (a Annotations) Has(k string) bool {
	_, ok := a[k]
	return ok
}

// Event represents a single invocation trace event with rich metadata.
type Event struct {
	CorrelationID string      // uuid binding this event to a Client.Invoke call
	Tags          Tags        // Multiple hashtags, first is primary (usually the packet class)
	Module        string      // Module name (e.g., "led", "gpio")
	Function      string      // Function name within the module
	Detail        string      // Additional detail (e.g., "argc=3", "err:checksum")
	Annotations   Annotations // Key-value metadata
	Timestamp     time.Time   // When the event occurred
}

// NewEvent creates a new trace event with the given parameters.
func NewEvent(correlationID, category, module, function, detail string) *Event {
	return &Event{
		CorrelationID: correlationID,
		Tags:          Tags{Tag(category)},
		Module:        module,
		Function:      function,
		Detail:        detail,
		Annotations:   make(Annotations),
		Timestamp:     time.Now(),
	}
}

// AddTag adds a tag to the event.
func (e *Event) AddTag(tag Tag) {
	e.Tags.Add(tag)
}

// Annotate sets an annotation on the event.
func (e *Event) Annotate(k, v string) {
	if e.Annotations == nil {
		e.Annotations = make(Annotations)
	}
	e.Annotations.Set(k, v)
}

// PrimaryTag returns the primary (first) tag with # prefix.
func (e *Event) PrimaryTag() string {
	if len(e.Tags) > 0 {
		return "#" + string(e.Tags[0])
	}
	return ""
}

// Enricher enriches trace events based on category and name.
type Enricher func(e *Event)

// DefaultEnricher adds additional tags based on the event's primary
// category and its detail text.
func DefaultEnricher(e *Event) {
	if len(e.Tags) == 0 {
		return
	}

	category := string(e.Tags[0])

	switch category {
	case "user":
		e.AddTag(Bind)
	case "push", "pull":
		e.AddTag(Tag(category))
	case "configuration":
		e.AddTag(Configuration)
	}

	if e.Detail != "" && len(e.Detail) >= 3 && e.Detail[:3] == "err" {
		e.AddTag(Error)
	}
}

// Collector accumulates trace events for later retrieval, fed by the
// invocation engine on every call.
type Collector struct {
	mu     sync.Mutex
	events []*Event
}

// NewCollector returns an empty Collector ready to Add to.
func NewCollector() *Collector {
	return &Collector{}
}

// Add appends e to the collector.
func (c *Collector) Add(e *Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

// GetAndClear returns the accumulated events and resets the collector.
func (c *Collector) GetAndClear() []*Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	events := c.events
	c.events = nil
	return events
}
