package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/movieclub/backend/internal/apperr"
)

func TestErrorMapsDomainErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name    string
		err     error
		status  int
		code    string
		message string
	}{
		{"not found", apperr.NotFound("group_not_found", "Group with id 3 not found"), http.StatusNotFound, "group_not_found", "Group with id 3 not found"},
		{"wrapped forbidden", fmt.Errorf("op: %w", apperr.Forbidden("not_group_member", "You are not a member of this group")), http.StatusForbidden, "not_group_member", "You are not a member of this group"},
		{"conflict", apperr.Conflict("only_one_admin", "Group already has an admin"), http.StatusConflict, "only_one_admin", "Group already has an admin"},
		{"bad request", apperr.BadRequest("cannot_transfer_to_self", "Cannot transfer admin rights to yourself"), http.StatusBadRequest, "cannot_transfer_to_self", "Cannot transfer admin rights to yourself"},
		{"infrastructure", errors.New("connection reset"), http.StatusInternalServerError, "", "internal error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			Error(c, tt.err)

			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d", w.Code, tt.status)
			}
			var body Body
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Success || body.Code != tt.code || body.Error != tt.message {
				t.Fatalf("unexpected body %+v", body)
			}
		})
	}
}
