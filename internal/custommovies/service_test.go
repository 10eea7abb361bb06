package custommovies

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/movieclub/backend/internal/models"
)

type staticGroups map[int64][]models.Group

func (s staticGroups) FindUserGroups(_ context.Context, userID int64) ([]models.Group, error) {
	return s[userID], nil
}

func statusPtr(s models.MovieStatus) *models.MovieStatus { return &s }

func strPtr(s string) *string { return &s }

func newService(groups GroupLister) (*Service, *MemoryStore) {
	store := NewMemoryStore()
	return NewService(store, groups, zap.NewNop()), store
}

func TestCreateDefaultsToTracking(t *testing.T) {
	svc, _ := newService(nil)
	creator := int64(7)
	m, err := svc.Create(context.Background(), 1, &creator, CreateInput{Title: "  Home Video  "})
	if err != nil {
		t.Fatal(err)
	}
	if m.Status != models.MovieStatusTracking || m.Title != "Home Video" || *m.CreatedByID != creator || m.GroupID != 1 {
		t.Fatalf("unexpected movie %+v", m)
	}
}

func TestCreateValidatesStatusDates(t *testing.T) {
	svc, _ := newService(nil)
	now := time.Now()
	tests := []struct {
		name string
		in   CreateInput
		want error
	}{
		{"planned without date", CreateInput{Title: "x", Status: statusPtr(models.MovieStatusPlanned)}, ErrInvalidMovieStatus},
		{"watched without date", CreateInput{Title: "x", Status: statusPtr(models.MovieStatusWatched), PlannedDate: &now}, ErrInvalidMovieStatus},
		{"tracking with date", CreateInput{Title: "x", WatchedDate: &now}, ErrInvalidMovieStatus},
		{"unknown status", CreateInput{Title: "x", Status: statusPtr("dropped")}, ErrInvalidMovieStatus},
		{"blank title", CreateInput{Title: "   "}, ErrEmptyTitle},
		{"planned with date", CreateInput{Title: "x", Status: statusPtr(models.MovieStatusPlanned), PlannedDate: &now}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), 1, nil, tt.in)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestGetChecksGroup(t *testing.T) {
	svc, _ := newService(nil)
	ctx := context.Background()
	m, err := svc.Create(ctx, 1, nil, CreateInput{Title: "Ours"})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := svc.Get(ctx, 1, m.ID); err != nil {
		t.Fatalf("get: %v", err)
	}
	_, err = svc.Get(ctx, 2, m.ID)
	if !errors.Is(err, ErrNotInGroup) {
		t.Fatalf("cross group err = %v", err)
	}
	_, err = svc.Get(ctx, 1, 404)
	if !errors.Is(err, ErrCustomMovieNotFound) || err.Error() != "Custom movie with id 404 not found" {
		t.Fatalf("missing err = %v", err)
	}
	if err := svc.Delete(ctx, 2, m.ID); !errors.Is(err, ErrNotInGroup) {
		t.Fatalf("cross group delete err = %v", err)
	}
}

func TestUpdateMergesStatus(t *testing.T) {
	svc, _ := newService(nil)
	ctx := context.Background()
	planned := time.Date(2026, 11, 1, 20, 0, 0, 0, time.UTC)
	watched := planned.Add(24 * time.Hour)

	m, err := svc.Create(ctx, 1, nil, CreateInput{Title: "Heat", Status: statusPtr(models.MovieStatusPlanned), PlannedDate: &planned})
	if err != nil {
		t.Fatal(err)
	}

	// planned -> watched keeps the planned date
	m, err = svc.Update(ctx, 1, m.ID, UpdateInput{StatusPatch: models.StatusPatch{
		Status:      statusPtr(models.MovieStatusWatched),
		WatchedDate: models.OptionalTime{Set: true, Value: &watched},
	}})
	if err != nil {
		t.Fatalf("to watched: %v", err)
	}
	if m.PlannedDate == nil || !m.WatchedDate.Equal(watched) {
		t.Fatalf("dates after watch %+v", m)
	}

	// clearing the watched date of a watched movie is invalid
	_, err = svc.Update(ctx, 1, m.ID, UpdateInput{StatusPatch: models.StatusPatch{WatchedDate: models.OptionalTime{Set: true}}})
	if !errors.Is(err, ErrInvalidMovieStatus) || err.Error() != models.ErrWatchedDateRequired.Error() {
		t.Fatalf("clear watched err = %v", err)
	}

	m, err = svc.Update(ctx, 1, m.ID, UpdateInput{Title: strPtr("Heat (1995)"), StatusPatch: models.StatusPatch{Status: statusPtr(models.MovieStatusTracking)}})
	if err != nil {
		t.Fatalf("to tracking: %v", err)
	}
	if m.Title != "Heat (1995)" || m.PlannedDate != nil || m.WatchedDate != nil {
		t.Fatalf("tracking movie kept dates %+v", m)
	}
}

func TestListForUserSpansGroups(t *testing.T) {
	svc, _ := newService(staticGroups{7: {{ID: 1}, {ID: 3}}})
	ctx := context.Background()
	for _, c := range []struct {
		group int64
		title string
	}{{1, "Birthday tape"}, {2, "Someone else's tape"}, {3, "Wedding tape"}, {3, "Concert"}} {
		if _, err := svc.Create(ctx, c.group, nil, CreateInput{Title: c.title}); err != nil {
			t.Fatal(err)
		}
	}

	page, err := svc.ListForUser(ctx, 7, "", 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	if page.Total != 3 || page.Limit != models.DefaultPageLimit {
		t.Fatalf("unexpected page %+v", page)
	}

	page, err = svc.ListForUser(ctx, 7, "TAPE", 2, 1)
	if err != nil {
		t.Fatal(err)
	}
	if page.Total != 2 || len(page.Items) != 1 || page.Items[0].Title != "Wedding tape" {
		t.Fatalf("unexpected filtered page %+v", page)
	}

	page, err = svc.ListForUser(ctx, 8, "", 1, 20)
	if err != nil {
		t.Fatal(err)
	}
	if page.Total != 0 || page.Items == nil {
		t.Fatalf("user without groups got %+v", page)
	}
}
