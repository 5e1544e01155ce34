package action

import (
	"testing"
)

type captivePublisher struct {
	published [][]Action
}

func (p *captivePublisher) PublishActionList(actions []Action) {
	p.published = append(p.published, actions)
}

func TestRegistry_SetActionsForSource(t *testing.T) {
	pub := &captivePublisher{}
	reg := NewRegistry(pub)

	reg.SetActionsForSource(SourceLocal, []Action{{ID: "a", Label: "A"}, {ID: "b", Label: "B"}})
	reg.SetActionsForSource(SourceRemote, []Action{{ID: "r1", Label: "R1"}})

	if got := len(reg.Actions()); got != 3 {
		t.Fatalf("Expected 3 actions, got %d", got)
	}

	// Replacing the remote bucket leaves other sources untouched.
	reg.SetActionsForSource(SourceRemote, nil)
	actions := reg.Actions()
	if len(actions) != 2 {
		t.Fatalf("Expected 2 actions after clearing remote, got %d", len(actions))
	}
	for _, a := range actions {
		if a.Source != SourceLocal {
			t.Errorf("Unexpected source %q after clearing remote", a.Source)
		}
	}

	if len(pub.published) != 3 {
		t.Errorf("Expected 3 publishes, got %d", len(pub.published))
	}
}

func TestRegistry_CrossSourceEviction(t *testing.T) {
	reg := NewRegistry(nil)

	reg.Register(Action{ID: "x", Label: "first"}, "A")
	reg.Register(Action{ID: "x", Label: "second"}, "B")

	actions := reg.Actions()
	if len(actions) != 1 {
		t.Fatalf("Expected exactly one entry for re-registered id, got %d", len(actions))
	}
	if actions[0].Source != "B" || actions[0].Label != "second" {
		t.Errorf("Expected id owned by B, got %+v", actions[0])
	}

	// Clearing the old source must not touch the migrated entry.
	reg.SetActionsForSource("A", nil)
	if got := len(reg.Actions()); got != 1 {
		t.Errorf("Expected migrated entry to survive, got %d actions", got)
	}
}

func TestRegistry_InsertionOrder(t *testing.T) {
	reg := NewRegistry(nil)
	reg.Register(Action{ID: "one"}, SourceLocal)
	reg.Register(Action{ID: "two"}, SourceLocal)
	reg.Register(Action{ID: "three"}, SourceLocal)

	actions := reg.Actions()
	want := []string{"one", "two", "three"}
	for i, id := range want {
		if actions[i].ID != id {
			t.Fatalf("Expected order %v, got %v", want, actions)
		}
	}
}

func TestRegistry_UpdateUnknownIsNoop(t *testing.T) {
	pub := &captivePublisher{}
	reg := NewRegistry(pub)

	label := "new"
	reg.Update("ghost", Patch{Label: &label})

	if len(reg.Actions()) != 0 {
		t.Error("Update on unknown id should not create an entry")
	}
	if len(pub.published) != 0 {
		t.Error("Update on unknown id should not republish")
	}
}

func TestRegistry_UpdatePatch(t *testing.T) {
	reg := NewRegistry(nil)
	reg.Register(Action{ID: "fmt", Label: "Format", Description: "Run formatter"}, SourceRemote)

	disabled := true
	label := "Format (busy)"
	reg.Update("fmt", Patch{Disabled: &disabled, Label: &label})

	a, ok := reg.Get("fmt")
	if !ok {
		t.Fatal("Expected action to exist")
	}
	if !a.Disabled || a.Label != "Format (busy)" {
		t.Errorf("Patch not applied: %+v", a)
	}
	if a.Description != "Run formatter" {
		t.Errorf("Unpatched field changed: %q", a.Description)
	}
}
