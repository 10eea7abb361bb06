package avatars

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/movieclub/backend/internal/auth"
	"github.com/movieclub/backend/internal/groups"
	"github.com/movieclub/backend/internal/middleware"
	"github.com/movieclub/backend/internal/models"
	"github.com/movieclub/backend/pkg/queue"
	"github.com/movieclub/backend/pkg/storage"
)

const baseURL = "https://cdn.example.com"

type fakeStore struct {
	mu        sync.Mutex
	objects   map[string][]byte
	deleted   []string
	uploadErr error
}

func newFakeStore() *fakeStore { return &fakeStore{objects: map[string][]byte{}} }

func (f *fakeStore) AvatarsBucket() string {
	return "avatars-bucket"
}

func (f *fakeStore) PresignExpire() time.Duration {
	return 15 * time.Minute
}

func (f *fakeStore) GeneratePresignedUploadURL(_ context.Context, bucket, key, _ string, _ time.Duration) (string, error) {
	return "https://s3.example.com/" + bucket + "/" + key + "?signed=1", nil
}

func (f *fakeStore) PublicObjectURL(bucket, key string) string {
	return storage.ObjectURL(baseURL, bucket, "us-east-1", key)
}

func (f *fakeStore) AvatarKeyFromURL(rawURL string) (string, bool) {
	return storage.KeyFromURL(baseURL, f.AvatarsBucket(), "us-east-1", rawURL)
}

func (f *fakeStore) Upload(_ context.Context, bucket, key, _ string, body io.Reader, _ int64, _ bool) (string, error) {
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	b, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	f.objects[key] = b
	f.mu.Unlock()
	return f.PublicObjectURL(bucket, key), nil
}

func (f *fakeStore) DeleteObject(_ context.Context, _, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	f.deleted = append(f.deleted, key)
	return nil
}

type fakeQueue struct {
	jobs []queue.AvatarCleanupPayload
	err  error
}

func (q *fakeQueue) EnqueueAvatarCleanup(_ context.Context, p queue.AvatarCleanupPayload) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, p)
	return nil
}

func TestReleaseAvatar(t *testing.T) {
	ctx := context.Background()
	managed := baseURL + "/avatars/9/abc.png"

	t.Run("queued", func(t *testing.T) {
		store, q := newFakeStore(), &fakeQueue{}
		m := NewManager(store, q, nil, zap.NewNop())
		if err := m.ReleaseAvatar(ctx, 9, managed); err != nil {
			t.Fatal(err)
		}
		if len(q.jobs) != 1 || q.jobs[0].Key != "avatars/9/abc.png" || q.jobs[0].Bucket != "avatars-bucket" || q.jobs[0].GroupID != 9 {
			t.Fatalf("unexpected jobs %+v", q.jobs)
		}
		if len(store.deleted) != 0 {
			t.Fatal("queued release must not delete inline")
		}
	})

	t.Run("queue down deletes inline", func(t *testing.T) {
		store := newFakeStore()
		m := NewManager(store, &fakeQueue{err: errors.New("redis down")}, nil, zap.NewNop())
		if err := m.ReleaseAvatar(ctx, 9, managed); err != nil {
			t.Fatal(err)
		}
		if len(store.deleted) != 1 {
			t.Fatalf("deleted = %v", store.deleted)
		}
	})

	t.Run("no queue deletes inline", func(t *testing.T) {
		store := newFakeStore()
		if err := NewManager(store, nil, nil, zap.NewNop()).ReleaseAvatar(ctx, 9, managed); err != nil {
			t.Fatal(err)
		}
		if len(store.deleted) != 1 {
			t.Fatalf("deleted = %v", store.deleted)
		}
	})

	t.Run("external url ignored", func(t *testing.T) {
		store, q := newFakeStore(), &fakeQueue{}
		m := NewManager(store, q, nil, zap.NewNop())
		if err := m.ReleaseAvatar(ctx, 9, "https://gravatar.example.org/a.png"); err != nil {
			t.Fatal(err)
		}
		if len(q.jobs) != 0 || len(store.deleted) != 0 {
			t.Fatal("external avatar must be left alone")
		}
	})

	t.Run("storage disabled", func(t *testing.T) {
		if err := NewManager(nil, nil, nil, zap.NewNop()).ReleaseAvatar(ctx, 9, managed); err != nil {
			t.Fatal(err)
		}
	})
}

type avatarFixture struct {
	router  *gin.Engine
	jwt     *auth.JWTService
	store   *fakeStore
	queue   *fakeQueue
	groups  *groups.Service
	groupID int64
}

const (
	owner  int64 = 1
	viewer int64 = 2
)

func newAvatarFixture(t *testing.T, store ObjectStore) *avatarFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	groupStore := groups.NewMemoryStore()
	groupStore.PutUser(models.UserSummary{ID: owner, Name: "Owner"})
	groupStore.PutUser(models.UserSummary{ID: viewer, Name: "Viewer"})
	groupSvc := groups.NewService(groupStore, zap.NewNop())
	old := baseURL + "/avatars/1/old.png"
	g, err := groupSvc.Create(context.Background(), owner, groups.CreateGroupInput{Name: "Club", AvatarURL: &old})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := groupSvc.AddMember(context.Background(), g.ID, groups.AddMemberInput{UserID: viewer}, owner); err != nil {
		t.Fatal(err)
	}

	q := &fakeQueue{}
	jwtSvc := auth.NewJWTService("test-secret", 1)
	r := gin.New()
	m := NewManager(store, q, groupSvc, zap.NewNop())
	NewHandler(m, groupSvc, zap.NewNop()).RegisterRoutes(r.Group("/api", middleware.JWT(jwtSvc)))

	f := &avatarFixture{router: r, jwt: jwtSvc, queue: q, groups: groupSvc, groupID: g.ID}
	if fs, ok := store.(*fakeStore); ok {
		f.store = fs
	}
	return f
}

func (f *avatarFixture) send(t *testing.T, userID int64, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	token, err := f.jwt.Generate(userID, "user@example.com", "user")
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *avatarFixture) presign(t *testing.T, userID int64, body map[string]any) *httptest.ResponseRecorder {
	t.Helper()
	b, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/groups/%d/avatar/upload-url", f.groupID), bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	return f.send(t, userID, req)
}

func (f *avatarFixture) upload(t *testing.T, userID int64, filename, contentType string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, filename))
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = part.Write(data)
	_ = mw.Close()
	req := httptest.NewRequest(http.MethodPut, fmt.Sprintf("/api/groups/%d/avatar", f.groupID), &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return f.send(t, userID, req)
}

func TestPresignAvatarUpload(t *testing.T) {
	f := newAvatarFixture(t, newFakeStore())

	w := f.presign(t, owner, map[string]any{"filename": "me.JPG", "fileSize": 1024})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", w.Code, w.Body)
	}
	var env struct {
		Data UploadURL `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatal(err)
	}
	prefix := fmt.Sprintf("avatars/%d/", f.groupID)
	if env.Data.ContentType != "image/jpeg" || !strings.HasPrefix(env.Data.Key, prefix) || !strings.HasSuffix(env.Data.Key, ".jpg") {
		t.Fatalf("unexpected upload url %+v", env.Data)
	}
	if env.Data.PublicURL != baseURL+"/"+env.Data.Key || env.Data.ExpiresIn != 900 {
		t.Fatalf("unexpected upload url %+v", env.Data)
	}

	tests := []struct {
		name   string
		userID int64
		body   map[string]any
		status int
	}{
		{"member", viewer, map[string]any{"filename": "a.png", "fileSize": 10}, http.StatusForbidden},
		{"too large", owner, map[string]any{"filename": "a.png", "fileSize": storage.MaxAvatarFileSize + 1}, http.StatusBadRequest},
		{"wrong type", owner, map[string]any{"filename": "a.svg", "contentType": "image/svg+xml", "fileSize": 10}, http.StatusBadRequest},
		{"missing size", owner, map[string]any{"filename": "a.png"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := f.presign(t, tt.userID, tt.body); w.Code != tt.status {
				t.Fatalf("status = %d, want %d", w.Code, tt.status)
			}
		})
	}
}

func TestUploadReplacesAvatar(t *testing.T) {
	f := newAvatarFixture(t, newFakeStore())

	w := f.upload(t, owner, "new.png", "image/png", []byte("png-bytes"))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", w.Code, w.Body)
	}
	g, err := f.groups.FindOne(context.Background(), f.groupID, owner)
	if err != nil {
		t.Fatal(err)
	}
	key, ok := f.store.AvatarKeyFromURL(*g.AvatarURL)
	if !ok || string(f.store.objects[key]) != "png-bytes" {
		t.Fatalf("avatar url %q not backed by uploaded object", *g.AvatarURL)
	}
	if len(f.queue.jobs) != 1 || f.queue.jobs[0].Key != "avatars/1/old.png" {
		t.Fatalf("previous avatar not released: %+v", f.queue.jobs)
	}

	if w := f.upload(t, viewer, "new.png", "image/png", []byte("x")); w.Code != http.StatusForbidden {
		t.Fatalf("member upload status = %d", w.Code)
	}
	if w := f.upload(t, owner, "doc.pdf", "application/pdf", []byte("x")); w.Code != http.StatusBadRequest {
		t.Fatalf("pdf upload status = %d", w.Code)
	}
}

func TestUploadFailureKeepsAvatar(t *testing.T) {
	store := newFakeStore()
	store.uploadErr = errors.New("s3 unavailable")
	f := newAvatarFixture(t, store)

	if w := f.upload(t, owner, "new.png", "image/png", []byte("x")); w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", w.Code)
	}
	g, _ := f.groups.FindOne(context.Background(), f.groupID, owner)
	if *g.AvatarURL != baseURL+"/avatars/1/old.png" || len(f.queue.jobs) != 0 {
		t.Fatal("failed upload must leave the group avatar untouched")
	}
}

func TestAvatarRoutesWithoutStorage(t *testing.T) {
	f := newAvatarFixture(t, nil)
	if w := f.presign(t, owner, map[string]any{"filename": "a.png", "fileSize": 10}); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("presign status = %d", w.Code)
	}
	if w := f.upload(t, owner, "a.png", "image/png", []byte("x")); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("upload status = %d", w.Code)
	}
}
