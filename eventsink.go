package mcpclient

import "log/slog"

// EventSink is the external collaborator that receives translated server
// notifications, per spec §6. Dispatch may fail or panic; the connection
// engine is responsible for swallowing both so a misbehaving sink never
// takes a connection down.
type EventSink interface {
	Dispatch(event Event)
}

// LoggingEventSink is the default EventSink: it logs every event at debug
// level through slog and otherwise does nothing. It exists so a Connection
// constructed without an explicit sink still has somewhere for notifications
// to go, mirroring the teacher's pattern of defaulting every optional
// collaborator to a harmless no-op (c.logger = slog.Default() in client.go).
type LoggingEventSink struct {
	Logger *slog.Logger
}

// NewLoggingEventSink builds a LoggingEventSink. A nil logger defaults to
// slog.Default().
func NewLoggingEventSink(logger *slog.Logger) *LoggingEventSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingEventSink{Logger: logger}
}

// Dispatch implements EventSink.
func (s *LoggingEventSink) Dispatch(event Event) {
	switch e := event.(type) {
	case ToolsListChanged:
		s.Logger.Debug("tools list changed", slog.String("server", e.Server))
	case ResourcesListChanged:
		s.Logger.Debug("resources list changed", slog.String("server", e.Server))
	case PromptsListChanged:
		s.Logger.Debug("prompts list changed", slog.String("server", e.Server))
	case ResourceChanged:
		s.Logger.Debug("resource changed", slog.String("server", e.Server), slog.String("uri", e.URI))
	case LogReceived:
		s.Logger.Debug("server log", slog.String("server", e.Server), slog.String("params", string(e.Params)))
	case SamplingRequestReceived:
		s.Logger.Debug("sampling request received", slog.String("server", e.Server))
	default:
		s.Logger.Warn("unknown event variant dispatched")
	}
}

// safeDispatch invokes sink.Dispatch, recovering from and logging any panic
// so the connection engine remains live per spec §4.4 ("Exceptions thrown by
// the sink are logged but never propagate into the connection").
func safeDispatch(logger *slog.Logger, sink EventSink, event Event) {
	if sink == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Error("event sink panicked", slog.Any("recover", r))
		}
	}()
	sink.Dispatch(event)
}
