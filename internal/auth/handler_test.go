package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/movieclub/backend/internal/models"
)

type memoryUsers struct {
	mu     sync.Mutex
	users  []models.User
	nextID int64
}

func (m *memoryUsers) GetByID(_ context.Context, id int64) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.users {
		if m.users[i].ID == id {
			u := m.users[i]
			return &u, nil
		}
	}
	return nil, nil
}

func (m *memoryUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.users {
		if strings.EqualFold(m.users[i].Email, email) {
			u := m.users[i]
			return &u, nil
		}
	}
	return nil, nil
}

func (m *memoryUsers) List(context.Context) ([]models.UserPublic, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := make([]models.UserPublic, 0, len(m.users))
	for i := range m.users {
		list = append(list, m.users[i].ToPublic())
	}
	return list, nil
}

func (m *memoryUsers) Create(_ context.Context, name, email, hash string, role models.UserRole) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	u := models.User{ID: m.nextID, Name: name, Email: email, Password: hash, Role: role, CreatedAt: time.Now()}
	m.users = append(m.users, u)
	return &u, nil
}

func (m *memoryUsers) Update(_ context.Context, id int64, patch models.UserPatch) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.users {
		u := &m.users[i]
		if u.ID != id {
			continue
		}
		if patch.Name != nil {
			u.Name = *patch.Name
		}
		if patch.Email != nil {
			u.Email = *patch.Email
		}
		if patch.PasswordHash != nil {
			u.Password = *patch.PasswordHash
		}
		if patch.Role != nil {
			u.Role = *patch.Role
		}
		out := *u
		return &out, nil
	}
	return nil, nil
}

func (m *memoryUsers) Delete(_ context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.users {
		if m.users[i].ID == id {
			m.users = append(m.users[:i], m.users[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func newAuthRouter(users UserStore) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewHandler(users, NewJWTService("secret", 1), bcrypt.MinCost, zap.NewNop())
	r := gin.New()
	r.POST("/auth/register", h.Register)
	r.POST("/auth/login", h.Login)
	return r
}

func post(r http.Handler, path string, body any) *httptest.ResponseRecorder {
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRegisterAndLogin(t *testing.T) {
	users := &memoryUsers{}
	r := newAuthRouter(users)

	w := post(r, "/auth/register", map[string]string{"name": "Alice", "email": "Alice@Example.com", "password": "password123"})
	if w.Code != http.StatusCreated {
		t.Fatalf("register status = %d body=%s", w.Code, w.Body)
	}
	var created struct {
		Data TokenResponse `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatal(err)
	}
	if created.Data.Token == "" || created.Data.User.Role != models.UserRoleUser || created.Data.User.Email != "alice@example.com" {
		t.Fatalf("unexpected response %+v", created.Data)
	}

	if w := post(r, "/auth/register", map[string]string{"name": "Again", "email": "alice@example.com", "password": "password123"}); w.Code != http.StatusConflict {
		t.Fatalf("duplicate status = %d", w.Code)
	}
	if w := post(r, "/auth/register", map[string]string{"name": "Bob", "email": "bob@example.com", "password": "short"}); w.Code != http.StatusBadRequest {
		t.Fatalf("short password status = %d", w.Code)
	}

	if w := post(r, "/auth/login", map[string]string{"email": "alice@example.com", "password": "password123"}); w.Code != http.StatusOK {
		t.Fatalf("login status = %d", w.Code)
	}
	if w := post(r, "/auth/login", map[string]string{"email": "alice@example.com", "password": "nope-nope"}); w.Code != http.StatusUnauthorized {
		t.Fatalf("bad password status = %d", w.Code)
	}
	if w := post(r, "/auth/login", map[string]string{"email": "ghost@example.com", "password": "password123"}); w.Code != http.StatusUnauthorized {
		t.Fatalf("unknown user status = %d", w.Code)
	}
}
