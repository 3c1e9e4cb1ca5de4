package plugin

// Capability is a bitmap of the hook categories a plugin may use. The
// host checks a plugin's declared capabilities before dispatching to it,
// not just at load time, so a plugin that lost a capability across a
// reload cannot keep exercising it.
type Capability uint16

const (
	HTTPHandlers Capability = 1 << iota
	Middleware
	Scheduler
	DatabaseHooks
	EventListener
	TemplateExtension
	CustomRoutes
	WebSocket
)

// Has reports whether c includes every bit set in want.
func (c Capability) Has(want Capability) bool {
	return c&want == want
}

var capabilityNames = map[Capability]string{
	HTTPHandlers:       "http_handlers",
	Middleware:         "middleware",
	Scheduler:          "scheduler",
	DatabaseHooks:      "database_hooks",
	EventListener:      "event_listener",
	TemplateExtension:  "template_extension",
	CustomRoutes:       "custom_routes",
	WebSocket:          "websocket",
}

// Names returns the declared capability names set in c, in bit order.
func (c Capability) Names() []string {
	var out []string
	for _, bit := range []Capability{HTTPHandlers, Middleware, Scheduler, DatabaseHooks, EventListener, TemplateExtension, CustomRoutes, WebSocket} {
		if c.Has(bit) {
			out = append(out, capabilityNames[bit])
		}
	}
	return out
}
