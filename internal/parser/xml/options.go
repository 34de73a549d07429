package xmlparser

// Options controls the concurrency of the XML record parser.
// All fields are optional; zero values pick sensible defaults.
type Options struct {
	// Concurrency & channels
	Workers int // number of parse/extract goroutines; 0 => 1 (sequential)
	Queue   int // channel capacity; 0 => 4*Workers

	// Buffering
	BufSize int // bufio.Reader size; 0 => 1<<20

	// Debug mode
	Debug bool
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = 1
	}
	if o.Queue <= 0 {
		o.Queue = 4 * o.Workers
	}
	if o.BufSize <= 0 {
		o.BufSize = 1 << 20
	}
	return o
}
