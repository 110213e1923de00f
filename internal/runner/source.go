package runner

// Emission is one item leaving the composed flow, either a value or a
// per-item failure. Per-item failures (a REQUIRE_CACHE miss, a dropped
// item's recovery error) travel past the remaining steps untouched so
// the items around them still complete.
type Emission struct {
	Value any
	Err   error
}

// Failed reports whether the emission carries a per-item failure.
func (e Emission) Failed() bool { return e.Err != nil }

// Source is the input of one run: a single value or a finite stream.
// The shape of the source anchors the shape algebra that decides whether
// the composed flow yields one value or a stream.
type Source struct {
	stream bool
	value  any
	items  <-chan any
}

// UnarySource wraps a single input value.
func UnarySource(v any) Source {
	return Source{value: v}
}

// StreamSource wraps a finite input stream. The channel must be closed
// by the producer; the run completes when it drains.
func StreamSource(items <-chan any) Source {
	return Source{stream: true, items: items}
}

// SliceSource wraps a fixed set of input values as a stream.
func SliceSource(items ...any) Source {
	ch := make(chan any, len(items))
	for _, it := range items {
		ch <- it
	}
	close(ch)
	return Source{stream: true, items: ch}
}

// Stream reports whether the source is a stream.
func (s Source) Stream() bool { return s.stream }
