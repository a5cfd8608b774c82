package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"tasktracker/internal/auth"
	dom "tasktracker/internal/domain"
	"tasktracker/internal/dto"
	"tasktracker/internal/policy"
	"tasktracker/internal/repo"
	"tasktracker/internal/service"
)

type testServer struct {
	router   *gin.Engine
	store    *repo.MemoryStore
	sessions *auth.Store
	users    *service.UserService
}

func newTestServer(t *testing.T, variant policy.Variant) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := repo.NewMemoryStore()
	sessions := auth.NewStore(rdb, time.Hour)
	users := service.NewUserService(store.Users(), store.Tasks()).WithHashCost(bcrypt.MinCost)
	p, err := policy.New(variant)
	require.NoError(t, err)
	tasks := service.NewTaskService(store.Tasks(), nil, p, log)

	r := gin.New()
	api := r.Group("/api/v1")
	ah := NewAuthHandler(sessions, users, log, false)
	api.POST("/auth/login", ah.Login)
	api.POST("/auth/register", ah.Register)
	api.POST("/auth/logout", ah.Logout)

	protected := api.Group("", auth.RequireSession(sessions, log))
	protected.GET("/auth/me", ah.Me)
	th := NewTaskHandler(tasks, log)
	protected.GET("/tasks", th.List)
	protected.POST("/tasks", th.Create)
	protected.GET("/tasks/:id", th.GetByID)
	protected.PATCH("/tasks/:id", th.Update)
	protected.DELETE("/tasks/:id", th.Delete)

	return &testServer{router: r, store: store, sessions: sessions, users: users}
}

// login creates an account with role and returns its session cookie.
func (s *testServer) login(t *testing.T, email string, role dom.Role) (dom.User, *http.Cookie) {
	t.Helper()
	u, _, err := s.users.EnsureAccount(context.Background(), email, email, "password123", role)
	require.NoError(t, err)
	id, err := s.sessions.Create(context.Background(), u.Actor())
	require.NoError(t, err)
	return u, &http.Cookie{Name: auth.SessionCookieName, Value: id}
}

func (s *testServer) seed(t *testing.T, owner string, status dom.Status) dom.Task {
	t.Helper()
	tk, err := s.store.Tasks().Create(context.Background(), dom.Task{Title: "seeded", OwnerID: owner, Status: status})
	require.NoError(t, err)
	return tk
}

func (s *testServer) do(method, path string, body any, cookie *http.Cookie) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func taskPath(id int64) string {
	return "/api/v1/tasks/" + strconv.FormatInt(id, 10)
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestUnauthenticated(t *testing.T) {
	s := newTestServer(t, policy.Strict)
	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/v1/tasks"},
		{http.MethodPost, "/api/v1/tasks"},
		{http.MethodPatch, "/api/v1/tasks/1"},
		{http.MethodDelete, "/api/v1/tasks/1"},
		{http.MethodGet, "/api/v1/auth/me"},
	} {
		w := s.do(tc.method, tc.path, nil, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code, tc.method+" "+tc.path)
	}
}

func TestCreateTask(t *testing.T) {
	s := newTestServer(t, policy.Strict)
	user, userCookie := s.login(t, "user@example.com", dom.RoleUser)
	_, managerCookie := s.login(t, "manager@example.com", dom.RoleManager)
	_, adminCookie := s.login(t, "admin@example.com", dom.RoleAdmin)

	w := s.do(http.MethodPost, "/api/v1/tasks", dto.CreateTaskRequest{Title: "Write report"}, userCookie)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	got := decode[dto.TaskResponse](t, w)
	assert.Equal(t, "Write report", got.Title)
	assert.Equal(t, dom.StatusDraft, got.Status)
	assert.Equal(t, user.ID, got.UserID)
	assert.Equal(t, dto.PermissionsResponse{CanUpdate: true, CanDelete: true}, got.Permissions)

	w = s.do(http.MethodPost, "/api/v1/tasks", map[string]string{"description": "no title"}, userCookie)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	for _, c := range []*http.Cookie{managerCookie, adminCookie} {
		w = s.do(http.MethodPost, "/api/v1/tasks", dto.CreateTaskRequest{Title: "x"}, c)
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Contains(t, w.Body.String(), "forbidden")
	}
}

func TestCreateTaskLenient(t *testing.T) {
	s := newTestServer(t, policy.Lenient)
	_, managerCookie := s.login(t, "manager@example.com", dom.RoleManager)

	w := s.do(http.MethodPost, "/api/v1/tasks", dto.CreateTaskRequest{Title: "x"}, managerCookie)
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestListTasks(t *testing.T) {
	s := newTestServer(t, policy.Strict)
	u1, u1Cookie := s.login(t, "u1@example.com", dom.RoleUser)
	u2, _ := s.login(t, "u2@example.com", dom.RoleUser)
	_, managerCookie := s.login(t, "manager@example.com", dom.RoleManager)
	s.seed(t, u1.ID, dom.StatusDraft)
	s.seed(t, u1.ID, dom.StatusCompleted)
	s.seed(t, u2.ID, dom.StatusDraft)

	w := s.do(http.MethodGet, "/api/v1/tasks", nil, managerCookie)
	require.Equal(t, http.StatusOK, w.Code)
	all := decode[dto.ListTasksResponse](t, w)
	assert.Len(t, all.Items, 3)
	for _, item := range all.Items {
		assert.Equal(t, dto.PermissionsResponse{}, item.Permissions, "manager can neither update nor delete")
	}

	w = s.do(http.MethodGet, "/api/v1/tasks", nil, u1Cookie)
	require.Equal(t, http.StatusOK, w.Code)
	mine := decode[dto.ListTasksResponse](t, w)
	require.Len(t, mine.Items, 2)
	for _, item := range mine.Items {
		assert.Equal(t, u1.ID, item.UserID)
	}

	w = s.do(http.MethodGet, "/api/v1/tasks?status=completed", nil, u1Cookie)
	require.Equal(t, http.StatusOK, w.Code)
	done := decode[dto.ListTasksResponse](t, w)
	require.Len(t, done.Items, 1)
	assert.False(t, done.Items[0].Permissions.CanDelete)

	w = s.do(http.MethodGet, "/api/v1/tasks?status=archived", nil, u1Cookie)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetTask(t *testing.T) {
	s := newTestServer(t, policy.Strict)
	u1, u1Cookie := s.login(t, "u1@example.com", dom.RoleUser)
	_, u2Cookie := s.login(t, "u2@example.com", dom.RoleUser)
	tk := s.seed(t, u1.ID, dom.StatusDraft)

	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, taskPath(tk.ID), nil, u1Cookie).Code)
	assert.Equal(t, http.StatusForbidden, s.do(http.MethodGet, taskPath(tk.ID), nil, u2Cookie).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, taskPath(999), nil, u1Cookie).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/api/v1/tasks/abc", nil, u1Cookie).Code)
}

func TestUpdateTask(t *testing.T) {
	s := newTestServer(t, policy.Strict)
	u1, u1Cookie := s.login(t, "u1@example.com", dom.RoleUser)
	_, u2Cookie := s.login(t, "u2@example.com", dom.RoleUser)
	_, adminCookie := s.login(t, "admin@example.com", dom.RoleAdmin)
	tk := s.seed(t, u1.ID, dom.StatusDraft)

	w := s.do(http.MethodPatch, taskPath(tk.ID), map[string]string{"status": "in_progress"}, u1Cookie)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	got := decode[dto.TaskResponse](t, w)
	assert.Equal(t, dom.StatusInProgress, got.Status)
	assert.Equal(t, "seeded", got.Title, "omitted fields keep their value")
	assert.Equal(t, dto.PermissionsResponse{CanUpdate: true}, got.Permissions)

	w = s.do(http.MethodPatch, taskPath(tk.ID), map[string]string{"status": "done"}, u1Cookie)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPatch, taskPath(tk.ID), map[string]string{"title": "hijack"}, u2Cookie)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(http.MethodPatch, taskPath(tk.ID), map[string]string{"title": "moderated"}, adminCookie)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(http.MethodPatch, taskPath(999), map[string]string{"title": "x"}, adminCookie)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteTask(t *testing.T) {
	s := newTestServer(t, policy.Strict)
	u1, u1Cookie := s.login(t, "u1@example.com", dom.RoleUser)
	_, managerCookie := s.login(t, "manager@example.com", dom.RoleManager)
	_, adminCookie := s.login(t, "admin@example.com", dom.RoleAdmin)

	inProgress := s.seed(t, u1.ID, dom.StatusInProgress)
	w := s.do(http.MethodDelete, taskPath(inProgress.ID), nil, u1Cookie)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "not a draft")

	draft := s.seed(t, u1.ID, dom.StatusDraft)
	assert.Equal(t, http.StatusForbidden, s.do(http.MethodDelete, taskPath(draft.ID), nil, managerCookie).Code)
	assert.Equal(t, http.StatusNoContent, s.do(http.MethodDelete, taskPath(draft.ID), nil, u1Cookie).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodDelete, taskPath(draft.ID), nil, u1Cookie).Code)

	assert.Equal(t, http.StatusNoContent, s.do(http.MethodDelete, taskPath(inProgress.ID), nil, adminCookie).Code)
}

func TestRegisterLoginLogout(t *testing.T) {
	s := newTestServer(t, policy.Strict)

	w := s.do(http.MethodPost, "/api/v1/auth/register", dto.RegisterRequest{Name: "Ann", Email: "ann@example.com", Password: "password123"}, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	reg := decode[dto.AuthResponse](t, w)
	assert.Equal(t, dom.RoleUser, reg.User.Role)

	w = s.do(http.MethodPost, "/api/v1/auth/register", dto.RegisterRequest{Name: "Ann", Email: "ann@example.com", Password: "password123"}, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(http.MethodPost, "/api/v1/auth/register", dto.RegisterRequest{Name: "Ann", Email: "not-an-email", Password: "password123"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPost, "/api/v1/auth/login", dto.LoginRequest{Email: "ann@example.com", Password: "wrong"}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(http.MethodPost, "/api/v1/auth/login", dto.LoginRequest{Email: "ann@example.com", Password: "password123"}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var session *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == auth.SessionCookieName {
			session = c
		}
	}
	require.NotNil(t, session)
	assert.True(t, session.HttpOnly)

	w = s.do(http.MethodGet, "/api/v1/auth/me", nil, session)
	require.Equal(t, http.StatusOK, w.Code)
	me := decode[dto.UserResponse](t, w)
	assert.Equal(t, "ann@example.com", me.Email)
	assert.Equal(t, dom.RoleUser, me.Role)

	assert.Equal(t, http.StatusNoContent, s.do(http.MethodPost, "/api/v1/auth/logout", nil, session).Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/api/v1/auth/me", nil, session).Code)
}
