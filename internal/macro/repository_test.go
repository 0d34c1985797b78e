package macro

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/acs-auto/internal/infrastructure/database"
	"github.com/nerrad567/acs-auto/migrations"
)

// setupTestDB opens an in-memory database with the embedded schema.
func setupTestDB(t *testing.T) *database.DB {
	t.Helper()

	ctx := context.Background()
	db, err := database.Open(ctx, database.Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(ctx, migrations.Source()); err != nil {
		t.Fatalf("migrating test db: %v", err)
	}
	return db
}

func TestSQLiteRepository_LoadEmpty(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t).DB)

	doc, err := repo.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(doc) != 0 {
		t.Errorf("Load() = %v, want empty", doc)
	}
}

func TestSQLiteRepository_SaveLoadOrder(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t).DB)
	ctx := context.Background()

	doc := defaultDocument()
	doc[CategoryTest] = append(doc[CategoryTest], Macro{
		ID:    "m-2",
		Name:  "Second",
		Steps: []Step{{Name: "one", Code: "a = 1"}, {Name: "two", Code: "b = 2"}},
	})
	if err := repo.Save(ctx, doc); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := repo.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	list := got[CategoryTest]
	if len(list) != 2 {
		t.Fatalf("len(test) = %d, want 2", len(list))
	}
	if list[0].Name != "Standard test" || !list[0].Active {
		t.Errorf("list[0] = %+v", list[0])
	}
	if list[1].ID != "m-2" || list[1].Active || len(list[1].Steps) != 2 || list[1].Steps[1].Code != "b = 2" {
		t.Errorf("list[1] = %+v", list[1])
	}
	if list[1].CreatedAt.IsZero() {
		t.Error("CreatedAt not stamped")
	}

	// A second save replaces rather than appends.
	doc[CategoryTest] = doc[CategoryTest][:1]
	if err := repo.Save(ctx, doc); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, _ = repo.Load(ctx)
	if len(got[CategoryTest]) != 1 {
		t.Errorf("len(test) after shrink = %d, want 1", len(got[CategoryTest]))
	}
}

func TestSQLiteRepository_DuplicateName(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t).DB)

	doc := Document{CategoryTest: {
		{ID: "a", Name: "same", Steps: []Step{}},
		{ID: "b", Name: "same", Steps: []Step{}},
	}}
	if err := repo.Save(context.Background(), doc); !errors.Is(err, ErrNameExists) {
		t.Errorf("Save() error = %v, want ErrNameExists", err)
	}
}

func TestSQLiteRepository_CorruptSteps(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db.DB)
	ctx := context.Background()

	_, err := db.ExecContext(ctx, `
		INSERT INTO macros (id, category, position, name, active, steps, created_at, updated_at)
		VALUES ('x', 'test', 0, 'broken', 1, '{not json', '2026-01-01T00:00:00Z', '2026-01-01T00:00:00Z')`)
	if err != nil {
		t.Fatalf("seeding: %v", err)
	}

	if _, err := repo.Load(ctx); !errors.Is(err, ErrCorrupt) {
		t.Errorf("Load() error = %v, want ErrCorrupt", err)
	}

	// The store regenerates defaults over the corrupt rows.
	s := NewStore(repo)
	regenerated, err := s.Load(ctx)
	if err != nil || !regenerated {
		t.Fatalf("Store.Load() = %v, %v; want regenerated", regenerated, err)
	}
	if _, err := repo.Load(ctx); err != nil {
		t.Errorf("Load() after regeneration error = %v", err)
	}
}

func TestSQLiteRepository_Runs(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t).DB)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i, cat := range []Category{CategoryTest, CategoryAddress, CategoryTest} {
		started := base.Add(time.Duration(i) * time.Second)
		completed := started.Add(1500 * time.Millisecond)
		ms := 1500
		run := &Run{
			ID:             "run-" + string(rune('a'+i)),
			Category:       cat,
			MacroName:      "m",
			Source:         SourceHotkey,
			Status:         RunCompleted,
			StepsTotal:     2,
			StepsCompleted: 1,
			StepsFailed:    1,
			Results:        []string{"ok"},
			Failures:       []StepFailure{{StepIndex: 1, StepName: "two", Error: "boom"}},
			StartedAt:      started,
			CompletedAt:    &completed,
			DurationMS:     &ms,
		}
		if err := repo.CreateRun(ctx, run); err != nil {
			t.Fatalf("CreateRun() error = %v", err)
		}
	}

	got, err := repo.GetRun(ctx, "run-b")
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if got.Category != CategoryAddress || got.Status != RunCompleted || *got.DurationMS != 1500 {
		t.Errorf("GetRun() = %+v", got)
	}
	if len(got.Failures) != 1 || got.Failures[0].Error != "boom" {
		t.Errorf("Failures = %+v", got.Failures)
	}
	if !got.StartedAt.Equal(base.Add(time.Second)) {
		t.Errorf("StartedAt = %v", got.StartedAt)
	}

	if _, err := repo.GetRun(ctx, "missing"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("GetRun(missing) error = %v, want ErrRunNotFound", err)
	}

	all, err := repo.ListRuns(ctx, "", 0)
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if len(all) != 3 || all[0].ID != "run-c" || all[2].ID != "run-a" {
		t.Errorf("ListRuns() order = %v", runIDs(all))
	}

	tests, _ := repo.ListRuns(ctx, CategoryTest, 1)
	if len(tests) != 1 || tests[0].ID != "run-c" {
		t.Errorf("ListRuns(test, 1) = %v", runIDs(tests))
	}
}

func runIDs(runs []Run) []string {
	ids := make([]string, len(runs))
	for i, r := range runs {
		ids[i] = r.ID
	}
	return ids
}
