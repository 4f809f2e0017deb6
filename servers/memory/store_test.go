package memory

import (
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "memory.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStoreEntityLifecycle(t *testing.T) {
	store := newTestStore(t)

	e := Entity{Name: "ada", EntityType: "person", Observations: []string{"wrote the first program"}}
	if err := store.CreateEntity(e); err != nil {
		t.Fatalf("CreateEntity failed: %v", err)
	}

	// Duplicate names are rejected by the primary key.
	if err := store.CreateEntity(e); err == nil {
		t.Fatal("expected duplicate create to fail")
	}

	got, ok, err := store.GetEntity("ada")
	if err != nil || !ok {
		t.Fatalf("GetEntity = %v, %v, %v", got, ok, err)
	}
	if got.EntityType != "person" || len(got.Observations) != 1 {
		t.Errorf("unexpected entity %+v", got)
	}

	if err := store.UpdateObservations("ada", []string{"a", "b"}); err != nil {
		t.Fatalf("UpdateObservations failed: %v", err)
	}
	got, _, _ = store.GetEntity("ada")
	if len(got.Observations) != 2 {
		t.Errorf("observations not updated: %+v", got)
	}

	if err := store.UpdateObservations("nobody", nil); err == nil {
		t.Error("expected update of missing entity to fail")
	}

	if err := store.DeleteEntity("ada"); err != nil {
		t.Fatalf("DeleteEntity failed: %v", err)
	}
	if _, ok, _ := store.GetEntity("ada"); ok {
		t.Error("entity still present after delete")
	}

	// Deleting a missing entity is fine.
	if err := store.DeleteEntity("ada"); err != nil {
		t.Errorf("second delete failed: %v", err)
	}
}

func TestStoreListEntities(t *testing.T) {
	store := newTestStore(t)

	for _, name := range []string{"charlie", "ada", "bob"} {
		if err := store.CreateEntity(Entity{Name: name, EntityType: "person"}); err != nil {
			t.Fatalf("CreateEntity(%s) failed: %v", name, err)
		}
	}

	entities, err := store.ListEntities()
	if err != nil {
		t.Fatalf("ListEntities failed: %v", err)
	}
	if len(entities) != 3 {
		t.Fatalf("expected 3 entities, got %d", len(entities))
	}
	for i, want := range []string{"ada", "bob", "charlie"} {
		if entities[i].Name != want {
			t.Errorf("entity %d = %s, want %s (ordering by name)", i, entities[i].Name, want)
		}
	}
}
