package cron

import (
	"context"
	"testing"
)

type namedJob string

func (n namedJob) Name() string              { return string(n) }
func (namedJob) Run(context.Context) error { return nil }

func TestRegistryKeepsOrderAndSkipsNil(t *testing.T) {
	r := NewRegistry(namedJob("abandoned-carts"), nil, namedJob("outbox-retention"))
	names := r.Names()
	if len(names) != 2 || names[0] != "abandoned-carts" || names[1] != "outbox-retention" {
		t.Fatalf("unexpected names %v", names)
	}

	jobs := r.Jobs()
	jobs[0] = nil
	if r.Jobs()[0] == nil {
		t.Fatal("Jobs exposed internal slice")
	}
}

func TestRegistryRejectsDuplicateNames(t *testing.T) {
	var r Registry
	if err := r.Register(namedJob("sweep")); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := r.Register(namedJob("sweep")); err == nil {
		t.Fatal("expected duplicate error")
	}

	defer func() {
		if recover() == nil {
			t.Fatal("expected NewRegistry to panic on duplicate")
		}
	}()
	NewRegistry(namedJob("a"), namedJob("a"))
}
