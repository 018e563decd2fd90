package failover

import "testing"

func TestWriteQueueFIFO(t *testing.T) {
	q := newWriteQueue()

	if _, ok := q.PopFront(); ok {
		t.Fatal("PopFront on an empty queue should report no entry")
	}

	q.Push(&pendingWrite{key: "a"})
	q.Push(&pendingWrite{key: "b"})
	q.Push(&pendingWrite{key: "c"})

	if q.Len() != 3 {
		t.Fatalf("Expected 3 entries, got %d", q.Len())
	}

	for _, expected := range []string{"a", "b", "c"} {
		w, ok := q.PopFront()
		if !ok {
			t.Fatalf("Expected an entry for %q", expected)
		}
		if w.key != expected {
			t.Errorf("Expected key %q, got %q", expected, w.key)
		}
	}
}

func TestWriteQueuePushFrontRestoresOrder(t *testing.T) {
	q := newWriteQueue()
	q.Push(&pendingWrite{key: "a"})
	q.Push(&pendingWrite{key: "b"})

	// An interrupted drain puts the in-flight entry back at the head.
	w, _ := q.PopFront()
	q.PushFront(w)

	for _, expected := range []string{"a", "b"} {
		w, ok := q.PopFront()
		if !ok || w.key != expected {
			t.Fatalf("Expected key %q next, got %+v (ok=%v)", expected, w, ok)
		}
	}
}
