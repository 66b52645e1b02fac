package pipeline

import "log"

// Notifier receives user-facing warnings and errors raised while a run is in
// progress. Nothing sent here stops the run.
type Notifier interface {
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

type logNotifier struct{}

// NewLogNotifier returns a Notifier that writes to the standard log
func NewLogNotifier() Notifier {
	return logNotifier{}
}

func (logNotifier) Warn(format string, args ...any) {
	log.Printf("[PIPELINE] "+format, args...)
}

func (logNotifier) Error(format string, args ...any) {
	log.Printf("[ERROR] "+format, args...)
}
