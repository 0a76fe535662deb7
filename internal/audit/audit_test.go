package audit

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/onnwee/playbypost/internal/middleware"
)

func TestInMemoryRepository_Log(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()

	log, err := repo.Log(ctx, Entry{
		UserID:     "u-gm",
		EntityType: EntityPost,
		EntityID:   "post-1",
		Action:     ActionPostUnhide,
	})
	if err != nil {
		t.Fatalf("Log() error = %v", err)
	}
	if log.ID == "" {
		t.Error("expected generated ID")
	}
	if log.Outcome != OutcomeSuccess {
		t.Errorf("Outcome = %q, want %q", log.Outcome, OutcomeSuccess)
	}
	if log.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}
	if log.PreviousHash != "" {
		t.Errorf("first log PreviousHash = %q, want empty", log.PreviousHash)
	}
}

func TestInMemoryRepository_Log_Validation(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()

	tests := []struct {
		name    string
		entry   Entry
		wantErr error
	}{
		{"unknown entity type", Entry{EntityType: "event", EntityID: "x", Action: ActionPostCreate}, ErrInvalidEntityType},
		{"missing entity ID", Entry{EntityType: EntityPost, Action: ActionPostCreate}, ErrInvalidEntityID},
		{"unknown action", Entry{EntityType: EntityPost, EntityID: "x", Action: "view_location"}, ErrInvalidAction},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := repo.Log(ctx, tt.entry); !errors.Is(err, tt.wantErr) {
				t.Errorf("Log() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestInMemoryRepository_HashChain(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()

	var logs []*Log
	for _, action := range []string{ActionRosterAdd, ActionPostCreate, ActionRosterRemove} {
		l, err := repo.Log(ctx, Entry{UserID: "u-gm", EntityType: EntityScene, EntityID: "scene-1", Action: action})
		if err != nil {
			t.Fatalf("Log() error = %v", err)
		}
		logs = append(logs, l)
	}

	if logs[1].PreviousHash != logs[0].Hash() {
		t.Error("second log should chain to the first")
	}
	if idx := VerifyChain(logs); idx != -1 {
		t.Errorf("VerifyChain() = %d, want -1", idx)
	}

	tampered := *logs[1]
	tampered.UserID = "someone-else"
	if idx := VerifyChain([]*Log{logs[0], &tampered, logs[2]}); idx != 2 {
		t.Errorf("VerifyChain() on tampered chain = %d, want 2", idx)
	}
}

func TestInMemoryRepository_QueryByEntity(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()

	for _, id := range []string{"post-1", "post-2", "post-1"} {
		if _, err := repo.Log(ctx, Entry{UserID: "u1", EntityType: EntityPost, EntityID: id, Action: ActionPostCreate}); err != nil {
			t.Fatalf("Log() error = %v", err)
		}
	}

	logs, err := repo.QueryByEntity(ctx, EntityPost, "post-1", 0)
	if err != nil {
		t.Fatalf("QueryByEntity() error = %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("got %d logs, want 2", len(logs))
	}
	if !logs[0].CreatedAt.After(logs[1].CreatedAt) && !logs[0].CreatedAt.Equal(logs[1].CreatedAt) {
		t.Error("expected newest first")
	}

	limited, err := repo.QueryByEntity(ctx, EntityPost, "post-1", 1)
	if err != nil {
		t.Fatalf("QueryByEntity() error = %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("got %d logs with limit 1", len(limited))
	}

	none, err := repo.QueryByEntity(ctx, EntityScene, "post-1", 0)
	if err != nil {
		t.Fatalf("QueryByEntity() error = %v", err)
	}
	if len(none) != 0 {
		t.Errorf("got %d logs for other entity type", len(none))
	}
}

func TestInMemoryRepository_ThreadSafety(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = repo.Log(ctx, Entry{UserID: "u1", EntityType: EntityScene, EntityID: "s1", Action: ActionRosterAdd})
			_, _ = repo.QueryByEntity(ctx, EntityScene, "s1", 5)
		}()
	}
	wg.Wait()

	logs, err := repo.QueryByEntity(ctx, EntityScene, "s1", 0)
	if err != nil {
		t.Fatalf("QueryByEntity() error = %v", err)
	}
	if len(logs) != 50 {
		t.Errorf("got %d logs, want 50", len(logs))
	}

	// Reverse to insertion order and check the chain survived concurrency.
	for i, j := 0, len(logs)-1; i < j; i, j = i+1, j-1 {
		logs[i], logs[j] = logs[j], logs[i]
	}
	if idx := VerifyChain(logs); idx != -1 {
		t.Errorf("chain broken at %d", idx)
	}
}

func TestRecord_FillsFromContext(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := middleware.SetUserID(context.Background(), "u-gm")

	Record(ctx, repo, Entry{EntityType: EntityCharacter, EntityID: "carol", Action: ActionCharacterReassign})

	logs, _ := repo.QueryByEntity(ctx, EntityCharacter, "carol", 0)
	if len(logs) != 1 {
		t.Fatalf("got %d logs, want 1", len(logs))
	}
	if logs[0].UserID != "u-gm" {
		t.Errorf("UserID = %q, want u-gm", logs[0].UserID)
	}
}

func TestRecord_SwallowsErrors(t *testing.T) {
	repo := NewInMemoryRepository()
	Record(context.Background(), repo, Entry{EntityType: "bogus"})
	Record(context.Background(), nil, Entry{EntityType: EntityPost, EntityID: "p", Action: ActionPostCreate})
}
