package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"casedesk/internal/model"
	"casedesk/internal/repository"
	"casedesk/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// setupTestServer wires the handlers on an in-memory store. A header
// middleware stands in for JWT auth.
func setupTestServer(t *testing.T) (*service.NotificationService, *gin.Engine) {
	t.Helper()

	logger := zap.NewNop()
	var mu sync.Mutex
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	store := repository.NewMemoryStore(logger).WithClock(func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	})
	svc := service.NewNotificationService(store, logger, service.Options{})
	h := NewNotificationHandler(svc, logger)
	admin := NewAdminHandler(svc, logger)

	router := gin.New()
	api := router.Group("/api")
	api.Use(func(c *gin.Context) {
		if userID := c.GetHeader("X-User-ID"); userID != "" {
			c.Set(ContextUserID, userID)
		}
		if role := c.GetHeader("X-Role"); role != "" {
			c.Set(ContextRole, role)
		}
		c.Next()
	})
	{
		notifications := api.Group("/notifications")
		notifications.GET("", h.List)
		notifications.GET("/unread-count", h.UnreadCount)
		notifications.PATCH("/read-all", h.MarkAllAsRead)
		notifications.PATCH("/:id/read", h.MarkAsRead)
		notifications.DELETE("/read", h.DeleteAllRead)
		notifications.DELETE("/:id", h.Delete)

		api.POST("/admin/notifications", admin.CreateNotifications)
	}

	return svc, router
}

func createTestNotification(t *testing.T, svc *service.NotificationService, owner, title string) *model.Notification {
	t.Helper()
	n, err := svc.CreateNotification(t.Context(), model.NotificationInput{Owner: owner, Title: title, Message: title + " body"})
	if err != nil {
		t.Fatalf("failed to create test notification: %v", err)
	}
	return n
}

func doRequest(router *gin.Engine, method, path, userID string, body any) *httptest.ResponseRecorder {
	var reqBody *bytes.Reader
	switch b := body.(type) {
	case nil:
		reqBody = bytes.NewReader(nil)
	case string:
		reqBody = bytes.NewReader([]byte(b))
	default:
		jsonBytes, _ := json.Marshal(b)
		reqBody = bytes.NewReader(jsonBytes)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	if userID == "ops" {
		req.Header.Set("X-Role", "admin")
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("failed to decode response %q: %v", w.Body.String(), err)
	}
	return v
}

func TestList(t *testing.T) {
	svc, router := setupTestServer(t)
	createTestNotification(t, svc, "u1", "first")
	createTestNotification(t, svc, "u1", "second")
	createTestNotification(t, svc, "u2", "other")

	t.Run("returns the caller's notifications", func(t *testing.T) {
		w := doRequest(router, http.MethodGet, "/api/notifications", "u1", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
		}
		res := decode[service.ListResult](t, w)
		if res.Total != 2 || len(res.Notifications) != 2 || res.Page != 1 || res.Limit != 20 {
			t.Errorf("unexpected result: %+v", res)
		}
	})

	t.Run("bad paging falls back to defaults", func(t *testing.T) {
		w := doRequest(router, http.MethodGet, "/api/notifications?limit=abc&skip=-4", "u1", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", w.Code)
		}
		res := decode[service.ListResult](t, w)
		if res.Limit != 20 || res.Total != 2 {
			t.Errorf("unexpected result: %+v", res)
		}
	})

	t.Run("unknown type matches nothing", func(t *testing.T) {
		w := doRequest(router, http.MethodGet, "/api/notifications?type=deadlines", "u1", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", w.Code)
		}
		res := decode[service.ListResult](t, w)
		if res.Total != 0 || len(res.Notifications) != 0 {
			t.Errorf("unexpected result: %+v", res)
		}
	})

	t.Run("page is derived from skip", func(t *testing.T) {
		w := doRequest(router, http.MethodGet, "/api/notifications?limit=1&skip=1", "u1", nil)
		res := decode[service.ListResult](t, w)
		if res.Page != 2 || len(res.Notifications) != 1 || res.Notifications[0].Title != "first" {
			t.Errorf("unexpected result: %+v", res)
		}
	})

	t.Run("unauthenticated", func(t *testing.T) {
		w := doRequest(router, http.MethodGet, "/api/notifications", "", nil)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", w.Code)
		}
	})
}

func TestUnreadCountAndMarkAllAsRead(t *testing.T) {
	svc, router := setupTestServer(t)
	createTestNotification(t, svc, "u1", "a")
	createTestNotification(t, svc, "u1", "b")

	w := doRequest(router, http.MethodGet, "/api/notifications/unread-count", "u1", nil)
	if got := decode[map[string]int64](t, w)["count"]; got != 2 {
		t.Fatalf("count = %d, want 2", got)
	}

	w = doRequest(router, http.MethodPatch, "/api/notifications/read-all", "u1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if got := decode[map[string]int64](t, w)["modifiedCount"]; got != 2 {
		t.Errorf("modifiedCount = %d, want 2", got)
	}

	w = doRequest(router, http.MethodPatch, "/api/notifications/read-all", "u1", nil)
	if got := decode[map[string]int64](t, w)["modifiedCount"]; got != 0 {
		t.Errorf("second modifiedCount = %d, want 0", got)
	}

	w = doRequest(router, http.MethodGet, "/api/notifications/unread-count", "u1", nil)
	if got := decode[map[string]int64](t, w)["count"]; got != 0 {
		t.Errorf("count = %d, want 0", got)
	}
}

func TestMarkAsRead(t *testing.T) {
	svc, router := setupTestServer(t)
	n := createTestNotification(t, svc, "u1", "a")

	tests := []struct {
		name   string
		id     string
		user   string
		status int
	}{
		{"owner", n.ID, "u1", http.StatusOK},
		{"owner again", n.ID, "u1", http.StatusOK},
		{"other user", n.ID, "u2", http.StatusNotFound},
		{"unknown id", uuid.NewString(), "u1", http.StatusNotFound},
		{"malformed id", "xyz", "u1", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(router, http.MethodPatch, "/api/notifications/"+tt.id+"/read", tt.user, nil)
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.status, w.Body.String())
			}
			if tt.status == http.StatusOK {
				if got := decode[model.Notification](t, w); !got.IsRead {
					t.Error("notification not marked as read")
				}
			}
		})
	}
}

func TestDelete(t *testing.T) {
	svc, router := setupTestServer(t)
	read := createTestNotification(t, svc, "u1", "read")
	unread := createTestNotification(t, svc, "u1", "unread")
	if _, err := svc.MarkAsRead(t.Context(), read.ID, "u1"); err != nil {
		t.Fatal(err)
	}

	w := doRequest(router, http.MethodDelete, "/api/notifications/"+unread.ID, "u2", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("foreign delete status = %d, want 404", w.Code)
	}

	w = doRequest(router, http.MethodDelete, "/api/notifications/read", "u1", nil)
	if got := decode[map[string]int64](t, w)["deletedCount"]; got != 1 {
		t.Errorf("deletedCount = %d, want 1", got)
	}

	w = doRequest(router, http.MethodDelete, "/api/notifications/"+unread.ID, "u1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if got := decode[model.Notification](t, w); got.ID != unread.ID {
		t.Errorf("deleted %s, want %s", got.ID, unread.ID)
	}

	w = doRequest(router, http.MethodDelete, "/api/notifications/"+unread.ID, "u1", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", w.Code)
	}
}

func TestAdminCreate(t *testing.T) {
	svc, router := setupTestServer(t)

	t.Run("single", func(t *testing.T) {
		w := doRequest(router, http.MethodPost, "/api/admin/notifications", "ops",
			model.NotificationInput{Owner: "u1", Title: "Deadline", Message: "Filing due", Type: "deadline", Priority: "urgent"})
		if w.Code != http.StatusCreated {
			t.Fatalf("status = %d, want 201: %s", w.Code, w.Body.String())
		}
		n := decode[model.Notification](t, w)
		if n.Owner != "u1" || n.Category != model.CategoryDeadline || n.Priority != model.PriorityUrgent {
			t.Errorf("unexpected notification: %+v", n)
		}
	})

	t.Run("bulk", func(t *testing.T) {
		w := doRequest(router, http.MethodPost, "/api/admin/notifications", "ops", []model.NotificationInput{
			{Owner: "a1", Title: "Case update", Message: "m"},
			{Owner: "a2", Title: "Case update", Message: "m"},
		})
		if w.Code != http.StatusCreated {
			t.Fatalf("status = %d, want 201: %s", w.Code, w.Body.String())
		}
		if got := decode[map[string]any](t, w)["count"]; got != float64(2) {
			t.Errorf("count = %v, want 2", got)
		}
	})

	t.Run("bulk validation names the record", func(t *testing.T) {
		w := doRequest(router, http.MethodPost, "/api/admin/notifications", "ops", []model.NotificationInput{
			{Owner: "a3", Title: "ok", Message: "m"},
			{Owner: "a3", Title: "missing message"},
		})
		if w.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", w.Code)
		}
		if got := decode[map[string]string](t, w)["error"]; got != "record 1: message is required" {
			t.Errorf("error = %q", got)
		}
		if count, _ := svc.GetUnreadCount(t.Context(), "a3"); count != 0 {
			t.Errorf("rejected batch stored %d records", count)
		}
	})

	t.Run("bulk needs permission", func(t *testing.T) {
		w := doRequest(router, http.MethodPost, "/api/admin/notifications", "u1", []model.NotificationInput{
			{Owner: "a4", Title: "t", Message: "m"},
		})
		if w.Code != http.StatusForbidden {
			t.Errorf("status = %d, want 403", w.Code)
		}
	})

	t.Run("malformed body", func(t *testing.T) {
		w := doRequest(router, http.MethodPost, "/api/admin/notifications", "ops", "{not json")
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
	})
}
