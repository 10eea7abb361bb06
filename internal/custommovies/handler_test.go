package custommovies

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/movieclub/backend/internal/auth"
	"github.com/movieclub/backend/internal/groups"
	"github.com/movieclub/backend/internal/middleware"
	"github.com/movieclub/backend/internal/models"
)

const (
	owner     int64 = 1
	moderator int64 = 2
	viewer    int64 = 3
	outsider  int64 = 4
)

type fixture struct {
	router  *gin.Engine
	jwt     *auth.JWTService
	groupID int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	groupStore := groups.NewMemoryStore()
	for id := owner; id <= outsider; id++ {
		groupStore.PutUser(models.UserSummary{ID: id, Name: fmt.Sprintf("user%d", id)})
	}
	groupSvc := groups.NewService(groupStore, zap.NewNop())
	g, err := groupSvc.Create(ctx, owner, groups.CreateGroupInput{Name: "Club"})
	if err != nil {
		t.Fatal(err)
	}
	mod := models.GroupRoleModerator
	if _, err := groupSvc.AddMember(ctx, g.ID, groups.AddMemberInput{UserID: moderator, Role: &mod}, owner); err != nil {
		t.Fatal(err)
	}
	if _, err := groupSvc.AddMember(ctx, g.ID, groups.AddMemberInput{UserID: viewer}, owner); err != nil {
		t.Fatal(err)
	}

	jwtSvc := auth.NewJWTService("test-secret", 1)
	r := gin.New()
	api := r.Group("/api", middleware.JWT(jwtSvc))
	NewHandler(NewService(NewMemoryStore(), groupSvc, zap.NewNop()), groupSvc, zap.NewNop()).RegisterRoutes(api)
	return &fixture{router: r, jwt: jwtSvc, groupID: g.ID}
}

func (f *fixture) do(t *testing.T, userID int64, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	token, err := f.jwt.Generate(userID, "user@example.com", "user")
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *fixture) path(suffix string) string {
	return fmt.Sprintf("/api/groups/%d/custom-movies%s", f.groupID, suffix)
}

func decodeMovie(t *testing.T, w *httptest.ResponseRecorder) models.CustomMovie {
	t.Helper()
	var env struct {
		Data models.CustomMovie `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return env.Data
}

func TestCustomMovieRoutesEnforceRoles(t *testing.T) {
	f := newFixture(t)
	body := map[string]any{"title": "Road trip", "releaseYear": 2024}

	if w := f.do(t, viewer, http.MethodPost, f.path(""), body); w.Code != http.StatusForbidden {
		t.Fatalf("member create status = %d", w.Code)
	}
	if w := f.do(t, outsider, http.MethodGet, f.path(""), nil); w.Code != http.StatusForbidden {
		t.Fatalf("outsider list status = %d", w.Code)
	}

	w := f.do(t, moderator, http.MethodPost, f.path(""), body)
	if w.Code != http.StatusCreated {
		t.Fatalf("moderator create status = %d body=%s", w.Code, w.Body)
	}
	m := decodeMovie(t, w)
	if m.Status != models.MovieStatusTracking || m.CreatedByID == nil || *m.CreatedByID != moderator {
		t.Fatalf("unexpected movie %+v", m)
	}
	item := f.path(fmt.Sprintf("/%d", m.ID))

	if w := f.do(t, viewer, http.MethodGet, item, nil); w.Code != http.StatusOK {
		t.Fatalf("member get status = %d", w.Code)
	}
	if w := f.do(t, viewer, http.MethodPatch, item, map[string]any{"title": "x"}); w.Code != http.StatusForbidden {
		t.Fatalf("member patch status = %d", w.Code)
	}

	w = f.do(t, owner, http.MethodPatch, item, map[string]any{"status": "planned", "plannedDate": "2026-12-01T20:00:00Z"})
	if w.Code != http.StatusOK {
		t.Fatalf("admin patch status = %d body=%s", w.Code, w.Body)
	}
	if got := decodeMovie(t, w); got.Status != models.MovieStatusPlanned || got.PlannedDate == nil {
		t.Fatalf("patched movie %+v", got)
	}

	if w := f.do(t, owner, http.MethodPatch, item, map[string]any{"plannedDate": nil}); w.Code != http.StatusBadRequest {
		t.Fatalf("clearing planned date status = %d", w.Code)
	}

	if w := f.do(t, viewer, http.MethodGet, "/api/custom-movies?query=road", nil); w.Code != http.StatusOK {
		t.Fatalf("list mine status = %d", w.Code)
	} else {
		var env struct {
			Data models.Page[models.CustomMovie] `json:"data"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
			t.Fatal(err)
		}
		if env.Data.Total != 1 {
			t.Fatalf("list mine total = %d", env.Data.Total)
		}
	}

	if w := f.do(t, moderator, http.MethodDelete, item, nil); w.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", w.Code)
	}
	if w := f.do(t, viewer, http.MethodGet, item, nil); w.Code != http.StatusNotFound {
		t.Fatalf("deleted get status = %d", w.Code)
	}
}

func TestCustomMovieRequestValidation(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name string
		body map[string]any
	}{
		{"missing title", map[string]any{"releaseYear": 2000}},
		{"year too early", map[string]any{"title": "x", "releaseYear": 1700}},
		{"negative runtime", map[string]any{"title": "x", "runtime": -1}},
		{"unknown status", map[string]any{"title": "x", "status": "dropped"}},
		{"watched without date", map[string]any{"title": "x", "status": "watched"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := f.do(t, owner, http.MethodPost, f.path(""), tt.body); w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d body=%s", w.Code, w.Body)
			}
		})
	}
	if w := f.do(t, owner, http.MethodGet, f.path("/abc"), nil); w.Code != http.StatusBadRequest {
		t.Fatalf("bad id status = %d", w.Code)
	}
}
