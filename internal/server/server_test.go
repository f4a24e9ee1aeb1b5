package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"todo-api/internal/auth"
	"todo-api/internal/cache"
	"todo-api/internal/config"
	"todo-api/internal/database/dbtest"
	"todo-api/internal/models"
	"todo-api/internal/monitoring"
	"todo-api/internal/repositories"
	"todo-api/internal/server"
	"todo-api/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"
)

type ServerTestSuite struct {
	suite.Suite
	handler http.Handler
	audit   *repositories.AuditRepository
}

func (s *ServerTestSuite) SetupTest() {
	gin.SetMode(gin.TestMode)

	cfg, err := config.LoadFromMap(map[string]string{
		"JWT_SECRET":  "server-test-secret",
		"ENVIRONMENT": config.EnvLocal,
		"DB_DRIVER":   config.DriverSQLite,
	})
	s.Require().NoError(err)

	pool := dbtest.New(s.T())
	users := repositories.NewUserRepository(pool.DB)
	s.audit = repositories.NewAuditRepository(pool.DB)

	hasher, err := auth.NewPasswordHasher(bcrypt.MinCost)
	s.Require().NoError(err)
	tokens, err := auth.NewTokenManager(cfg.Auth.JWTSecret)
	s.Require().NoError(err)

	taskCache := cache.NewMultiLevelCache(nil)
	tasks := services.NewCachedTaskStore(repositories.NewTaskRepository(pool.DB), taskCache, nil)

	metrics := monitoring.NewMetrics()
	metrics.RegisterCacheMetrics(taskCache.Metrics())

	health := monitoring.NewHealthChecker(0)
	health.Register("database", pool.Health)

	srv := server.New(cfg, server.Dependencies{
		Accounts: services.NewAuthService(users, hasher, tokens, tasks, nil),
		Tasks:    services.NewTaskService(tasks, services.NewStoreAuditRecorder(s.audit), nil),
		Tokens:   tokens,
		Metrics:  metrics,
		Health:   health,
	})
	s.handler = srv.Router()
}

func (s *ServerTestSuite) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			s.Require().NoError(json.NewEncoder(&buf).Encode(b))
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	return w
}

func (s *ServerTestSuite) register(email, password string) models.UserSummary {
	w := s.do("POST", "/auth/register", "", map[string]string{"email": email, "password": password})
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())

	var user models.UserSummary
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &user))
	return user
}

func (s *ServerTestSuite) login(email, password string) string {
	w := s.do("POST", "/auth/login", "", map[string]string{"email": email, "password": password})
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	var body struct {
		Token string `json:"token"`
	}
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &body))
	s.Require().NotEmpty(body.Token)
	return body.Token
}

func (s *ServerTestSuite) TestTaskOwnershipScenario() {
	alice := s.register("a@x.com", "pw1")
	aliceToken := s.login("a@x.com", "pw1")
	s.register("b@x.com", "pw2")
	bobToken := s.login("b@x.com", "pw2")

	w := s.do("POST", "/tasks", aliceToken, `{"title":"buy milk","owner_id":"00000000-0000-0000-0000-000000000001"}`)
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())

	var task models.Task
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &task))
	s.Equal(alice.ID, task.OwnerID)
	s.Equal("buy milk", task.Title)
	s.False(task.Completed)

	path := "/tasks/" + task.ID.String()

	w = s.do("GET", path, aliceToken, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	var fetched models.Task
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &fetched))
	s.Equal(task.ID, fetched.ID)

	w = s.do("PUT", path, bobToken, `{"completed":true}`)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	var toggled models.Task
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &toggled))
	s.True(toggled.Completed)

	w = s.do("PUT", path, bobToken, `{"title":"hack"}`)
	s.Equal(http.StatusForbidden, w.Code)

	w = s.do("PUT", path, bobToken, `{"completed":true,"title":"x"}`)
	s.Equal(http.StatusForbidden, w.Code)

	w = s.do("DELETE", path, bobToken, nil)
	s.Equal(http.StatusForbidden, w.Code)

	w = s.do("GET", path, aliceToken, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), `"title":"buy milk"`)
	s.Contains(w.Body.String(), `"completed":true`)

	w = s.do("DELETE", path, aliceToken, nil)
	s.Equal(http.StatusNoContent, w.Code)

	w = s.do("GET", path, aliceToken, nil)
	s.Equal(http.StatusNotFound, w.Code)
	s.JSONEq(`{"error":"task not found"}`, w.Body.String())

	entries, err := s.audit.ListByResource(context.Background(), task.ID)
	s.Require().NoError(err)
	s.Len(entries, 5)
}

func (s *ServerTestSuite) TestUpdateChecksTaskAndOwnerBeforeBody() {
	alice := s.register("a@x.com", "pw1")
	aliceToken := s.login("a@x.com", "pw1")
	s.register("b@x.com", "pw2")
	bobToken := s.login("b@x.com", "pw2")

	w := s.do("POST", "/tasks", aliceToken, map[string]string{"title": "buy milk"})
	s.Require().Equal(http.StatusCreated, w.Code)
	var task models.Task
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &task))
	path := "/tasks/" + task.ID.String()

	for _, body := range []string{
		`{"completed":true,"owner_id":"00000000-0000-0000-0000-000000000001"}`,
		`{"completed":true,"userId":5}`,
		`{"title":""}`,
	} {
		w = s.do("PUT", path, bobToken, body)
		s.Equal(http.StatusForbidden, w.Code, body)
		s.JSONEq(`{"error":"not authorized to update this task"}`, w.Body.String())
	}

	w = s.do("PUT", "/tasks/00000000-0000-0000-0000-0000000000ff", bobToken, `{"completed":true,"foo":1}`)
	s.Equal(http.StatusNotFound, w.Code)
	s.JSONEq(`{"error":"task not found"}`, w.Body.String())

	w = s.do("PUT", path, aliceToken, `{"completed":true,"owner_id":"00000000-0000-0000-0000-000000000001"}`)
	s.Equal(http.StatusBadRequest, w.Code)
	s.JSONEq(`{"error":"unknown field: owner_id"}`, w.Body.String())

	w = s.do("GET", path, aliceToken, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	var fetched models.Task
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &fetched))
	s.Equal(alice.ID, fetched.OwnerID)
	s.False(fetched.Completed)

	entries, err := s.audit.ListByResource(context.Background(), task.ID)
	s.Require().NoError(err)
	s.Len(entries, 4)
}

func (s *ServerTestSuite) TestRegisterAndLoginErrors() {
	s.register("a@x.com", "pw1")

	w := s.do("POST", "/auth/register", "", map[string]string{"email": "a@x.com", "password": "other"})
	s.Equal(http.StatusConflict, w.Code)

	wrongPassword := s.do("POST", "/auth/login", "", map[string]string{"email": "a@x.com", "password": "nope"})
	unknownEmail := s.do("POST", "/auth/login", "", map[string]string{"email": "z@x.com", "password": "pw1"})

	s.Equal(http.StatusUnauthorized, wrongPassword.Code)
	s.Equal(wrongPassword.Code, unknownEmail.Code)
	s.Equal(wrongPassword.Body.String(), unknownEmail.Body.String())
}

func (s *ServerTestSuite) TestGuardedRoutesRequireToken() {
	for _, path := range []string{"/tasks", "/auth/users"} {
		w := s.do("GET", path, "", nil)
		s.Equal(http.StatusUnauthorized, w.Code, path)
		s.JSONEq(`{"error":"no token provided"}`, w.Body.String())

		w = s.do("GET", path, "not-a-token", nil)
		s.Equal(http.StatusUnauthorized, w.Code, path)
		s.JSONEq(`{"error":"invalid token"}`, w.Body.String())
	}
}

func (s *ServerTestSuite) TestUserManagement() {
	alice := s.register("a@x.com", "pw1")
	token := s.login("a@x.com", "pw1")

	w := s.do("POST", "/tasks", token, map[string]string{"title": "mine"})
	s.Require().Equal(http.StatusCreated, w.Code)
	var task models.Task
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &task))

	w = s.do("GET", "/auth/users", token, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	s.NotContains(w.Body.String(), "password")
	s.Contains(w.Body.String(), "created_at")

	w = s.do("PUT", "/auth/users/"+alice.ID.String(), token, map[string]string{"password": "pw-new"})
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	s.Contains(w.Body.String(), `"message"`)
	s.login("a@x.com", "pw-new")

	w = s.do("DELETE", "/auth/users/"+alice.ID.String(), token, nil)
	s.Equal(http.StatusNoContent, w.Code)

	w = s.do("GET", "/tasks/"+task.ID.String(), token, nil)
	s.Equal(http.StatusNotFound, w.Code)

	w = s.do("DELETE", "/auth/users/"+alice.ID.String(), token, nil)
	s.Equal(http.StatusBadRequest, w.Code)
}

func (s *ServerTestSuite) TestOperationalEndpoints() {
	w := s.do("GET", "/livez", "", nil)
	s.Equal(http.StatusOK, w.Code)

	w = s.do("GET", "/readyz", "", nil)
	s.Equal(http.StatusOK, w.Code)

	w = s.do("GET", "/healthz", "", nil)
	s.Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), `"database"`)

	w = s.do("GET", "/metrics", "", nil)
	s.Equal(http.StatusOK, w.Code)
	s.True(strings.Contains(w.Body.String(), "todo_http_requests_total"))

	w = s.do("GET", "/api-docs", "", nil)
	s.Equal(http.StatusOK, w.Code)
	s.Contains(w.Header().Get("Content-Type"), "text/html")
	s.Contains(w.Body.String(), "/api-docs/openapi.json")

	w = s.do("GET", "/api-docs/openapi.json", "", nil)
	s.Require().Equal(http.StatusOK, w.Code)
	var doc struct {
		OpenAPI string                     `json:"openapi"`
		Paths   map[string]json.RawMessage `json:"paths"`
	}
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &doc))
	s.Equal("3.0.3", doc.OpenAPI)
	for _, path := range []string{"/auth/register", "/auth/login", "/auth/users", "/auth/users/{id}", "/tasks", "/tasks/{id}"} {
		s.Contains(doc.Paths, path)
	}
}

func (s *ServerTestSuite) TestRequestIDAndCORS() {
	req := httptest.NewRequest("OPTIONS", "/tasks", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "PUT")
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)

	s.Equal(http.StatusNoContent, w.Code)
	s.Equal("http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))

	w = s.do("GET", "/livez", "", nil)
	s.NotEmpty(w.Header().Get("X-Request-ID"))
}

func TestServerTestSuite(t *testing.T) {
	suite.Run(t, new(ServerTestSuite))
}
