package lifecycle

import (
	"io"
	"sync"
)

// Sink receives formatted readings, one line per call. Sinks do not fail
type Sink interface {
	Emit(line string)
}

type WriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

func (p *WriterSink) Emit(line string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	io.WriteString(p.w, line+"\n")
}

type MultiSink []Sink

func (p MultiSink) Emit(line string) {
	for _, s := range p {
		s.Emit(line)
	}
}

type SinkFunc func(line string)

func (f SinkFunc) Emit(line string) {
	f(line)
}
