package cardqueue

import "testing"

type collectingSink struct {
	buffers []*Buffer
}

func (s *collectingSink) Publish(buf *Buffer) {
	s.buffers = append(s.buffers, buf)
}

func TestBulkWriterFallsBackOnMidBatchOverflow(t *testing.T) {
	pool := NewBufferPool(2, AllocTagDCQ)
	sink := &collectingSink{}
	dcq := NewDirtyCardQueue(pool, sink)

	w := newBulkWriter(dcq)
	w.put(1)
	w.put(2)
	// Buffer (capacity 2) is now full; this put must fall back to
	// Enqueue, publishing the full buffer and installing a fresh one.
	w.put(3)

	if !w.finish() {
		t.Fatal("expected finish() to report a mid-batch handoff")
	}

	if len(sink.buffers) != 1 {
		t.Fatalf("expected exactly one published buffer, got %d", len(sink.buffers))
	}

	if dcq.Size() != 1 {
		t.Fatalf("expected one entry carried into the fresh buffer, got %d", dcq.Size())
	}
}

func TestBulkWriterNoHandoffWhenBatchFitsExactly(t *testing.T) {
	pool := NewBufferPool(4, AllocTagDCQ)
	sink := &collectingSink{}
	dcq := NewDirtyCardQueue(pool, sink)

	w := newBulkWriter(dcq)
	w.put(1)
	w.put(2)
	w.put(3)

	if w.finish() {
		t.Fatal("did not expect a handoff for a batch within capacity")
	}

	if len(sink.buffers) != 0 {
		t.Fatalf("expected no publish, got %d", len(sink.buffers))
	}
}
