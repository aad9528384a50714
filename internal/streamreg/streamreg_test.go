package streamreg

import "testing"

type fakeSub struct {
	id     string
	queue  [][]byte
	left   []string
}

func (f *fakeSub) TokenID() string { return f.id }
func (f *fakeSub) Enqueue(data []byte) {
	f.queue = append(f.queue, data)
}

func TestJoinLeaveNoopOnAbsentStream(t *testing.T) {
	r := New()
	sub := &fakeSub{id: "a"}
	r.Join("missing", sub) // must not panic
	r.Leave("missing", sub)
	if r.Count("missing") != 0 {
		t.Fatal("expected 0 count for absent stream")
	}
}

func TestBroadcastOrdering(t *testing.T) {
	r := New()
	r.Add("chat/#osu")
	a := &fakeSub{id: "a"}
	r.Join("chat/#osu", a)

	r.Broadcast("chat/#osu", []byte("b1"), nil)
	r.Broadcast("chat/#osu", []byte("b2"), nil)

	if len(a.queue) != 2 || string(a.queue[0]) != "b1" || string(a.queue[1]) != "b2" {
		t.Fatalf("broadcast order wrong: %v", a.queue)
	}
}

func TestBroadcastExclude(t *testing.T) {
	r := New()
	r.Add("s")
	a, b := &fakeSub{id: "a"}, &fakeSub{id: "b"}
	r.Join("s", a)
	r.Join("s", b)

	r.Broadcast("s", []byte("x"), map[string]bool{"a": true})

	if len(a.queue) != 0 {
		t.Fatal("excluded subscriber should not receive broadcast")
	}
	if len(b.queue) != 1 {
		t.Fatal("non-excluded subscriber should receive broadcast")
	}
}

func TestRemoveEvictsSubscribers(t *testing.T) {
	r := New()
	r.Add("s")
	a := &fakeSub{id: "a"}
	r.Join("s", a)

	var leftNames []string
	ok := r.Remove("s", func(sub Subscriber) { leftNames = append(leftNames, sub.TokenID()) })
	if !ok {
		t.Fatal("Remove should report true for an existing stream")
	}
	if len(leftNames) != 1 || leftNames[0] != "a" {
		t.Fatalf("expected leave hook called for a, got %v", leftNames)
	}
	if r.Exists("s") {
		t.Fatal("stream should no longer exist")
	}
}

func TestRemoveAbsentReturnsFalse(t *testing.T) {
	r := New()
	if r.Remove("nope", nil) {
		t.Fatal("Remove on absent stream should return false")
	}
}

func TestJoinIdempotent(t *testing.T) {
	r := New()
	r.Add("s")
	a := &fakeSub{id: "a"}
	r.Join("s", a)
	r.Join("s", a)
	if r.Count("s") != 1 {
		t.Fatalf("Count = %d, want 1 (idempotent join)", r.Count("s"))
	}
}
