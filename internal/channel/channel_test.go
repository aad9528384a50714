package channel

import (
	"testing"

	"bancho/internal/streamreg"
)

func TestAddBindsStream(t *testing.T) {
	streams := streamreg.New()
	r := New(streams)
	r.Add(Descriptor{Name: "#osu", PublicRead: true, PublicWrite: true})

	if !streams.Exists("chat/#osu") {
		t.Fatal("Add should bind the chat/<name> stream")
	}
	if !r.Exists("#osu") {
		t.Fatal("channel should be registered")
	}
}

func TestAllExcludesHidden(t *testing.T) {
	streams := streamreg.New()
	r := New(streams)
	r.Add(Descriptor{Name: "#osu", PublicRead: true})
	r.AddTemp("#spect_1", "spectator chat")

	all := r.All()
	if len(all) != 1 || all[0].Name != "#osu" {
		t.Fatalf("All() should omit hidden channels, got %v", all)
	}
}

type fakeSub struct{ id string }

func (f fakeSub) TokenID() string     { return f.id }
func (f fakeSub) Enqueue(data []byte) {}

func TestRemoveKicksSubscribersBeforeDisposing(t *testing.T) {
	streams := streamreg.New()
	r := New(streams)
	r.Add(Descriptor{Name: "#osu"})
	sub := fakeSub{id: "a"}
	streams.Join("chat/#osu", sub)

	var kicked []string
	ok := r.Remove("#osu", func(s streamreg.Subscriber) { kicked = append(kicked, s.TokenID()) })
	if !ok {
		t.Fatal("Remove should succeed for an existing channel")
	}
	if len(kicked) != 1 || kicked[0] != "a" {
		t.Fatalf("expected subscriber a to be kicked, got %v", kicked)
	}
	if r.Exists("#osu") {
		t.Fatal("channel should no longer exist")
	}
	if streams.Exists("chat/#osu") {
		t.Fatal("bound stream should no longer exist")
	}
}

func TestRemoveIfEmptyTempOnlyRemovesTempWhenEmpty(t *testing.T) {
	streams := streamreg.New()
	r := New(streams)
	r.AddTemp("#spect_1", "")
	sub := fakeSub{id: "a"}
	streams.Join("chat/#spect_1", sub)

	if r.RemoveIfEmptyTemp("#spect_1") {
		t.Fatal("should not remove a temp channel with subscribers")
	}
	streams.Leave("chat/#spect_1", sub)
	if !r.RemoveIfEmptyTemp("#spect_1") {
		t.Fatal("should remove a temp channel once empty")
	}
	if r.Exists("#spect_1") {
		t.Fatal("channel should be gone")
	}
}

func TestRemoveIfEmptyTempIgnoresNonTemp(t *testing.T) {
	streams := streamreg.New()
	r := New(streams)
	r.Add(Descriptor{Name: "#osu", Temp: false})
	if r.RemoveIfEmptyTemp("#osu") {
		t.Fatal("non-temp channel should never be auto-removed")
	}
}
