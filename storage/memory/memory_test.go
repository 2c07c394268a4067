package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/jmcleod/assettag/storage"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := New()

	t.Run("LoadEmpty", func(t *testing.T) {
		_, err := s.Load(ctx)
		if !errors.Is(err, storage.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("SaveLoad", func(t *testing.T) {
		if err := s.Save(ctx, []byte(`[]`)); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
		got, err := s.Load(ctx)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if string(got) != `[]` {
			t.Errorf("expected [], got %s", got)
		}

		// Returned slices must not alias internal state.
		got[0] = 'X'
		again, _ := s.Load(ctx)
		if string(again) != `[]` {
			t.Error("Load should return a copy")
		}
	})

	t.Run("FailSaves", func(t *testing.T) {
		boom := errors.New("disk full")
		s.FailSaves(boom)
		if err := s.Save(ctx, []byte(`[1]`)); !errors.Is(err, boom) {
			t.Fatalf("expected injected error, got %v", err)
		}
		s.FailSaves(nil)
		got, _ := s.Load(ctx)
		if string(got) != `[]` {
			t.Errorf("failed save must not replace data, got %s", got)
		}
		if s.Saves() != 1 {
			t.Errorf("expected 1 successful save, got %d", s.Saves())
		}
	})

	t.Run("CancelledContext", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		if err := s.Save(cctx, []byte(`[]`)); err == nil {
			t.Error("expected error for cancelled context")
		}
	})
}
