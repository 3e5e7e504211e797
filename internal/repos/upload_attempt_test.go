package repos

import (
	"context"
	"testing"

	"github.com/glyhealth/diabetes-insights-backend/internal/logger"
	"github.com/glyhealth/diabetes-insights-backend/internal/types"
)

func newAttemptRepo(t *testing.T) UploadAttemptRepo {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return NewUploadAttemptRepo(newTestDB(t), log)
}

func TestAttemptTerminalStateIsFinal(t *testing.T) {
	repo := newAttemptRepo(t)
	ctx := context.Background()

	attempt := &types.UploadAttempt{Filename: "a.csv", Status: types.AttemptProcessing}
	if err := repo.Create(ctx, nil, attempt); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := repo.MarkSuccess(ctx, nil, attempt.ID, 5); err != nil {
		t.Fatalf("MarkSuccess: %v", err)
	}
	// A late failure report must not undo the success.
	if err := repo.MarkFailed(ctx, nil, attempt.ID, "late error"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}

	stored, err := repo.GetByID(ctx, nil, attempt.ID)
	if err != nil || stored == nil {
		t.Fatalf("GetByID: attempt=%v err=%v", stored, err)
	}
	if stored.Status != types.AttemptSuccess {
		t.Fatalf("status: want=%s got=%s", types.AttemptSuccess, stored.Status)
	}
	if stored.RecordsCount != 5 {
		t.Fatalf("records count: want=5 got=%d", stored.RecordsCount)
	}
	if stored.ErrorMessage != nil {
		t.Fatalf("error message set on successful attempt: %q", *stored.ErrorMessage)
	}
}

func TestAttemptListNewestFirst(t *testing.T) {
	repo := newAttemptRepo(t)
	ctx := context.Background()

	for _, name := range []string{"first.csv", "second.csv"} {
		if err := repo.Create(ctx, nil, &types.UploadAttempt{Filename: name, Status: types.AttemptProcessing}); err != nil {
			t.Fatalf("Create %s: %v", name, err)
		}
	}

	attempts, err := repo.List(ctx, nil)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(attempts) != 2 {
		t.Fatalf("attempt count: want=2 got=%d", len(attempts))
	}
}
