package turn

// Sink receives assistant text as it is produced.
type Sink interface {
	WriteText(text string) error
}

// SinkFunc adapts a function into a Sink.
type SinkFunc func(text string) error

// WriteText implements Sink.
func (f SinkFunc) WriteText(text string) error {
	return f(text)
}

type discardSink struct{}

func (discardSink) WriteText(string) error { return nil }
