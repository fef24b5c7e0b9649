package logging

import "github.com/rs/zerolog"

// ZerologAdapter exposes a zerolog.Logger through the key/value interface the
// dispatcher logs with.
type ZerologAdapter struct {
	logger zerolog.Logger
}

// NewDispatcherLogger wraps logger for the dispatcher.
func NewDispatcherLogger(logger zerolog.Logger) *ZerologAdapter {
	return &ZerologAdapter{logger: logger}
}

func (a *ZerologAdapter) Debug(msg string, keysAndValues ...any) {
	withFields(a.logger.Debug(), keysAndValues).Msg(msg)
}

func (a *ZerologAdapter) Info(msg string, keysAndValues ...any) {
	withFields(a.logger.Info(), keysAndValues).Msg(msg)
}

func (a *ZerologAdapter) Error(msg string, keysAndValues ...any) {
	withFields(a.logger.Error(), keysAndValues).Msg(msg)
}

// withFields appends key/value pairs to e. Errors are written as strings, a
// non-string key or a trailing key without value is skipped. e may be nil
// when the level is disabled.
func withFields(e *zerolog.Event, keysAndValues []any) *zerolog.Event {
	if e == nil {
		return nil
	}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		switch v := keysAndValues[i+1].(type) {
		case error:
			e = e.AnErr(key, v)
		default:
			e = e.Interface(key, v)
		}
	}
	return e
}
