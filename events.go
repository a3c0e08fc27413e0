package mcpclient

import "encoding/json"

// Event is the closed tagged union of notification variants the connection
// engine dispatches through an EventSink, per the table in spec §4.4.
// Implementations are restricted to this package; callers switch on the
// concrete type.
type Event interface {
	eventMarker()
	// ServerName identifies which connection produced the event.
	ServerName() string
}

type baseEvent struct {
	Server string
}

func (baseEvent) eventMarker() {}

// ServerName implements Event.
func (b baseEvent) ServerName() string { return b.Server }

// ToolsListChanged is raised on notifications/tools/listChanged.
type ToolsListChanged struct{ baseEvent }

// ResourcesListChanged is raised on notifications/resources/listChanged.
type ResourcesListChanged struct{ baseEvent }

// PromptsListChanged is raised on notifications/prompts/listChanged.
type PromptsListChanged struct{ baseEvent }

// ResourceChanged is raised on notifications/resources/didChange.
type ResourceChanged struct {
	baseEvent
	URI string
}

// LogReceived is raised on notifications/logging/log.
type LogReceived struct {
	baseEvent
	Params json.RawMessage
}

// SamplingRequestReceived is raised on an inbound sampling/createMessage
// notification (a message without an id). The same method arriving as a
// request with an id is logged and not dispatched.
type SamplingRequestReceived struct {
	baseEvent
	Params json.RawMessage
}

func newToolsListChanged(server string) Event {
	return ToolsListChanged{baseEvent{server}}
}

func newResourcesListChanged(server string) Event {
	return ResourcesListChanged{baseEvent{server}}
}

func newPromptsListChanged(server string) Event {
	return PromptsListChanged{baseEvent{server}}
}

func newResourceChanged(server, uri string) Event {
	return ResourceChanged{baseEvent{server}, uri}
}

func newLogReceived(server string, params json.RawMessage) Event {
	return LogReceived{baseEvent{server}, params}
}

func newSamplingRequestReceived(server string, params json.RawMessage) Event {
	return SamplingRequestReceived{baseEvent{server}, params}
}

// Method names the engine sends during the handshake (initialize,
// notifications/initialized) and the notification methods it consumes, per
// spec §6/§4.4.
const (
	methodInitialize              = "initialize"
	methodInitialized             = "notifications/initialized"
	methodToolsListChanged        = "notifications/tools/listChanged"
	methodResourcesListChanged    = "notifications/resources/listChanged"
	methodPromptsListChanged      = "notifications/prompts/listChanged"
	methodResourcesDidChange      = "notifications/resources/didChange"
	methodLoggingLog              = "notifications/logging/log"
	methodSamplingCreateMessage   = "sampling/createMessage"
)
