package worker

import (
	"context"
	"testing"

	"github.com/sells-group/insight-engine/internal/model"
)

func stubWorker(name string) Worker {
	return &funcWorker{name: name, fn: func(_ context.Context, _ Input) (*model.Section, error) {
		return &model.Section{Worker: name}, nil
	}}
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry()
	r.Register(stubWorker("websearch"))
	r.Register(stubWorker("classify"))

	w, err := r.Get("websearch")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w.Name() != "websearch" {
		t.Errorf("expected websearch, got %q", w.Name())
	}

	if _, err := r.Get("ghost"); err == nil {
		t.Error("expected error for unknown worker")
	}
}

func TestRegistry_NamesInRegistrationOrder(t *testing.T) {
	r := NewRegistry()
	r.Register(stubWorker("c"))
	r.Register(stubWorker("a"))
	r.Register(stubWorker("b"))

	names := r.Names()
	want := []string{"c", "a", "b"}
	if len(names) != len(want) {
		t.Fatalf("expected %d names, got %d", len(want), len(names))
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("index %d: expected %q, got %q", i, want[i], names[i])
		}
	}
}

func TestRegistry_ReplaceKeepsOrder(t *testing.T) {
	r := NewRegistry()
	r.Register(stubWorker("a"))
	r.Register(stubWorker("b"))
	r.Register(stubWorker("a")) // replace

	names := r.Names()
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Errorf("expected [a b], got %v", names)
	}
}

func TestRegistry_Covers(t *testing.T) {
	roster := DefaultRoster()

	r := NewRegistry()
	for _, spec := range roster.AllSpecs() {
		r.Register(stubWorker(spec.Name))
	}
	if err := r.Covers(roster); err != nil {
		t.Errorf("expected full coverage, got %v", err)
	}

	partial := NewRegistry()
	partial.Register(stubWorker("websearch"))
	if err := partial.Covers(roster); err == nil {
		t.Error("expected coverage error for missing workers")
	}
}
