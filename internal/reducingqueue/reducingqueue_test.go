package reducingqueue

import "testing"

// Pushing 0.1, 0.2, 0.3 to the same key before a drain leaves exactly
// one value update, equal to the latest push.
func TestLatestValueWins(t *testing.T) {
	q := New(4)
	q.Push(2, Update{Value: 0.1, HasValue: true})
	q.Push(2, Update{Value: 0.2, HasValue: true})
	q.Push(2, Update{Value: 0.3, HasValue: true})

	var got []Update
	n := q.Drain(func(key int, u Update) {
		if key != 2 {
			t.Fatalf("unexpected key %d", key)
		}
		got = append(got, u)
	})
	if n != 1 {
		t.Fatalf("Drain count = %d, want 1", n)
	}
	if len(got) != 1 || got[0].Value != 0.3 {
		t.Fatalf("got %+v, want single update with value 0.3", got)
	}
}

func TestValueAndGestureMergeIndependently(t *testing.T) {
	q := New(1)
	q.Push(0, Update{HasGesture: true, GestureBegin: true})
	q.Push(0, Update{Value: 0.5, HasValue: true})
	q.Push(0, Update{HasGesture: true, GestureEnd: true})

	var got Update
	n := q.Drain(func(key int, u Update) { got = u })
	if n != 1 {
		t.Fatalf("Drain count = %d, want 1", n)
	}
	if !got.HasValue || got.Value != 0.5 {
		t.Fatalf("value not preserved: %+v", got)
	}
	if !got.HasGesture || !got.GestureEnd || got.GestureBegin {
		t.Fatalf("gesture not merged to end-only: %+v", got)
	}
}

func TestDrainClearsDirtyFlag(t *testing.T) {
	q := New(2)
	q.Push(1, Update{Value: 1.0, HasValue: true})
	if n := q.Drain(func(int, Update) {}); n != 1 {
		t.Fatalf("first Drain = %d, want 1", n)
	}
	if n := q.Drain(func(int, Update) {}); n != 0 {
		t.Fatalf("second Drain = %d, want 0 (no new pushes)", n)
	}
}

func TestIndependentKeysDoNotInterfere(t *testing.T) {
	q := New(3)
	q.Push(0, Update{Value: 1, HasValue: true})
	q.Push(2, Update{Value: 2, HasValue: true})

	seen := map[int]float64{}
	q.Drain(func(key int, u Update) { seen[key] = u.Value })
	if seen[0] != 1 || seen[2] != 2 {
		t.Fatalf("seen = %+v, want {0:1, 2:2}", seen)
	}
	if _, ok := seen[1]; ok {
		t.Fatalf("key 1 should not be dirty")
	}
}
