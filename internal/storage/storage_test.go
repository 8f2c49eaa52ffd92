package storage

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/aiwuxian/abyss-engine/internal/models"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "data", "abyss.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveGameRoundTrip(t *testing.T) {
	s := newTestStorage(t)

	world := models.NewWorldState()
	world.Round.RoundNumber = 4
	world.Round.Phase = models.PhaseCharActing
	world.Round.CurrentOrder = []string{"a", "b"}
	world.Round.TurnIndex = 1
	world.Round.ActiveCharID = "b"
	world.Actors["a"] = models.Actor{ID: "a", Name: "阿明", Attributes: models.DefaultActorAttributes()}

	save := &models.SaveGame{
		ID:        "save-1",
		Name:      "第一存档",
		Round:     world.Round.RoundNumber,
		Phase:     world.Round.Phase,
		CreatedAt: time.Now(),
	}
	if err := s.CreateSaveGame(save, world); err != nil {
		t.Fatalf("CreateSaveGame: %v", err)
	}

	got, loaded, err := s.GetSaveGame("save-1")
	if err != nil {
		t.Fatalf("GetSaveGame: %v", err)
	}
	if got.Name != "第一存档" || got.Round != 4 || got.Phase != models.PhaseCharActing {
		t.Fatalf("unexpected save row: %+v", got)
	}
	if loaded.Round.TurnIndex != 1 || loaded.Round.ActiveCharID != "b" || len(loaded.Round.CurrentOrder) != 2 {
		t.Fatalf("round state not preserved: %+v", loaded.Round)
	}
	if loaded.Actors["a"].Number(models.AttrHealth) != 100 {
		t.Fatalf("actor attributes not preserved: %+v", loaded.Actors["a"])
	}

	saves, err := s.ListSaveGames()
	if err != nil {
		t.Fatalf("ListSaveGames: %v", err)
	}
	if len(saves) != 1 || saves[0].ID != "save-1" {
		t.Fatalf("ListSaveGames = %+v", saves)
	}
}

func TestDeleteSaveGame(t *testing.T) {
	s := newTestStorage(t)

	if err := s.CreateSaveGame(&models.SaveGame{ID: "x", Name: "x", CreatedAt: time.Now()}, models.NewWorldState()); err != nil {
		t.Fatalf("CreateSaveGame: %v", err)
	}
	if err := s.DeleteSaveGame("x"); err != nil {
		t.Fatalf("DeleteSaveGame: %v", err)
	}
	if _, _, err := s.GetSaveGame("x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetSaveGame after delete err = %v, want ErrNotFound", err)
	}
	if err := s.DeleteSaveGame("x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete err = %v, want ErrNotFound", err)
	}
}

func TestGeneratedWorldArchive(t *testing.T) {
	s := newTestStorage(t)

	batch := map[string]any{"locations": []string{"大厅"}}
	if err := s.CreateGeneratedWorld("w1", "很久以前……", batch); err != nil {
		t.Fatalf("CreateGeneratedWorld: %v", err)
	}
	n, err := s.CountGeneratedWorlds()
	if err != nil {
		t.Fatalf("CountGeneratedWorlds: %v", err)
	}
	if n != 1 {
		t.Fatalf("CountGeneratedWorlds = %d, want 1", n)
	}
}
