package dispatcher

// Option configures handler registration.
type Option func(*settings)

type settings struct {
	bufferSize int
	blocking   bool
	logged     bool
}

// Buffered hands events to a goroutine through a queue of the given size.
// Dispatch then returns Queued without waiting for the handler.
func Buffered(size int) Option {
	return func(s *settings) { s.bufferSize = size }
}

// Blocking makes a full buffered queue wait for room instead of dropping.
func Blocking() Option {
	return func(s *settings) { s.blocking = true }
}

// Logged adds debug logging around the handler and logs its errors.
func Logged() Option {
	return func(s *settings) { s.logged = true }
}
