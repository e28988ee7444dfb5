package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pkazancev/task-tracker-api/internal/auth"
	"github.com/pkazancev/task-tracker-api/internal/handler"
	"github.com/pkazancev/task-tracker-api/internal/model"
	"github.com/pkazancev/task-tracker-api/internal/repo"
	"github.com/pkazancev/task-tracker-api/internal/service"
	"github.com/pkazancev/task-tracker-api/internal/worker"
)

const e2eSecret = "e2e-test-signing-secret-e2e-test-signing-secret"

func setupE2EServer(t *testing.T) (*httptest.Server, func()) {
	pool, cleanup := SetupTestDB(t)
	TruncateTables(t, pool)

	logger := zap.NewNop()

	tokens, err := auth.NewTokenService(e2eSecret, time.Hour)
	require.NoError(t, err)

	taskRepo := repo.NewTaskRepo(pool)
	userRepo := repo.NewUserRepo(pool)

	taskService := service.NewTaskService(taskRepo)
	authService := service.NewAuthService(userRepo, tokens, auth.NewBcryptHasher())

	taskHandler := handler.NewTaskHandler(taskService, logger)
	authHandler := handler.NewAuthHandler(authService, logger)
	authMw := auth.NewMiddleware(tokens, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"ok"}`)
	})

	r.Post("/signup", authHandler.Signup)
	r.Post("/login", authHandler.Login)
	r.Get("/getTask/{taskID}", taskHandler.Get)

	r.Group(func(r chi.Router) {
		r.Use(authMw.Authenticate)
		r.Post("/createTask", taskHandler.Create)
		r.Get("/fetchTasks", taskHandler.List)
		r.Put("/updateTask/{taskID}", taskHandler.Update)
		r.Delete("/deleteTask/{taskID}", taskHandler.Delete)
		r.Get("/stats", taskHandler.Stats)
	})

	workerPool := worker.NewPool(pool, logger, 2, 200*time.Millisecond)
	workerPool.Start(context.Background())

	server := httptest.NewServer(r)

	cleanupFunc := func() {
		workerPool.Stop()
		server.Close()
		cleanup()
	}

	return server, cleanupFunc
}

// signupUser registers a user over HTTP and returns the bearer token.
func signupUser(t *testing.T, server *httptest.Server, email string) string {
	t.Helper()

	body := fmt.Sprintf(`{"email":%q,"password":"e2e-test-password"}`, email)
	resp, err := http.Post(server.URL+"/signup", "application/json", bytes.NewReader([]byte(body)))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var signup struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&signup))
	resp.Body.Close()
	require.NotEmpty(t, signup.Token)

	return signup.Token
}

func doJSON(t *testing.T, method, url, token string, payload interface{}) *http.Response {
	t.Helper()

	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, url, body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func newTaskBody(title string) model.Task {
	return model.Task{
		Title:       title,
		Description: "created during e2e run",
		Status:      model.StatusPending,
		DueDate:     model.DueDate{Time: time.Now().Add(48 * time.Hour)},
		Priority:    model.PriorityMedium,
	}
}

func TestE2E_FullWorkflow(t *testing.T) {
	server, cleanup := setupE2EServer(t)
	defer cleanup()

	token := signupUser(t, server, "workflow@example.com")

	// 1. Create task
	resp := doJSON(t, http.MethodPost, server.URL+"/createTask", token, newTaskBody("E2E Test Task"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created model.Task
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	resp.Body.Close()

	require.NotEmpty(t, created.ID)
	assert.Equal(t, "E2E Test Task", created.Title)
	assert.Equal(t, model.StatusPending, created.Status)

	// 2. Get task (read-by-id requires no token)
	resp, err := http.Get(server.URL + "/getTask/" + created.ID.String())
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var getBody struct {
		Task model.Task `json:"task"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&getBody))
	resp.Body.Close()
	assert.Equal(t, created.ID, getBody.Task.ID)

	// 3. Update task
	update := map[string]string{"title": "Updated E2E Task", "status": model.StatusInProgress}
	resp = doJSON(t, http.MethodPut, server.URL+"/updateTask/"+created.ID.String(), token, update)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var updateBody struct {
		Response model.Task `json:"response"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&updateBody))
	resp.Body.Close()
	assert.Equal(t, "Updated E2E Task", updateBody.Response.Title)
	assert.Equal(t, model.StatusInProgress, updateBody.Response.Status)

	// 4. List tasks
	resp = doJSON(t, http.MethodGet, server.URL+"/fetchTasks", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var listBody struct {
		Tasks []model.Task `json:"tasks"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&listBody))
	resp.Body.Close()
	assert.Len(t, listBody.Tasks, 1)

	// 5. Delete task
	resp = doJSON(t, http.MethodDelete, server.URL+"/deleteTask/"+created.ID.String(), token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// 6. Deletes are not idempotent, a repeat reports not found
	resp = doJSON(t, http.MethodDelete, server.URL+"/deleteTask/"+created.ID.String(), token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	// 7. Verify deletion
	resp, err = http.Get(server.URL + "/getTask/" + created.ID.String())
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestE2E_LoginIssuesUsableToken(t *testing.T) {
	server, cleanup := setupE2EServer(t)
	defer cleanup()

	signupUser(t, server, "login@example.com")

	body := `{"email":"login@example.com","password":"e2e-test-password"}`
	resp, err := http.Post(server.URL+"/login", "application/json", bytes.NewReader([]byte(body)))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var login struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&login))
	resp.Body.Close()
	require.NotEmpty(t, login.Token)

	resp = doJSON(t, http.MethodGet, server.URL+"/fetchTasks", login.Token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestE2E_UnauthenticatedRequestsRejected(t *testing.T) {
	server, cleanup := setupE2EServer(t)
	defer cleanup()

	endpoints := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/createTask"},
		{http.MethodGet, "/fetchTasks"},
		{http.MethodPut, "/updateTask/" + "00000000-0000-0000-0000-000000000001"},
		{http.MethodDelete, "/deleteTask/" + "00000000-0000-0000-0000-000000000001"},
		{http.MethodGet, "/stats"},
	}

	for _, e := range endpoints {
		resp := doJSON(t, e.method, server.URL+e.path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "%s %s", e.method, e.path)
		resp.Body.Close()
	}
}

func TestE2E_CrossUserAccessDenied(t *testing.T) {
	server, cleanup := setupE2EServer(t)
	defer cleanup()

	aliceToken := signupUser(t, server, "alice@example.com")
	bobToken := signupUser(t, server, "bob@example.com")

	resp := doJSON(t, http.MethodPost, server.URL+"/createTask", aliceToken, newTaskBody("Alice's Task"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created model.Task
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	resp.Body.Close()

	t.Run("update denied", func(t *testing.T) {
		update := map[string]string{"title": "Hijacked"}
		resp := doJSON(t, http.MethodPut, server.URL+"/updateTask/"+created.ID.String(), bobToken, update)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		resp.Body.Close()
	})

	t.Run("delete denied", func(t *testing.T) {
		resp := doJSON(t, http.MethodDelete, server.URL+"/deleteTask/"+created.ID.String(), bobToken, nil)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		resp.Body.Close()
	})

	t.Run("list does not leak across owners", func(t *testing.T) {
		resp := doJSON(t, http.MethodGet, server.URL+"/fetchTasks", bobToken, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var listBody struct {
			Tasks []model.Task `json:"tasks"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&listBody))
		resp.Body.Close()
		assert.Empty(t, listBody.Tasks)
	})
}

func TestE2E_IdempotencyAcrossRequests(t *testing.T) {
	server, cleanup := setupE2EServer(t)
	defer cleanup()

	token := signupUser(t, server, "idem@example.com")
	idempKey := "e2e-idem-test"
	task := newTaskBody("Idempotent Task")

	send := func() model.Task {
		raw, err := json.Marshal(task)
		require.NoError(t, err)

		req, err := http.NewRequest(http.MethodPost, server.URL+"/createTask", bytes.NewReader(raw))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Idempotency-Key", idempKey)

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		require.Equal(t, http.StatusCreated, resp.StatusCode)

		var created model.Task
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
		resp.Body.Close()
		return created
	}

	first := send()
	second := send()

	assert.Equal(t, first.ID, second.ID)

	resp := doJSON(t, http.MethodGet, server.URL+"/fetchTasks", token, nil)
	var listBody struct {
		Tasks []model.Task `json:"tasks"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&listBody))
	resp.Body.Close()
	assert.Len(t, listBody.Tasks, 1)

	t.Run("another user with the same key gets their own task", func(t *testing.T) {
		bobToken := signupUser(t, server, "idem-bob@example.com")

		raw, err := json.Marshal(newTaskBody("Bob's Task"))
		require.NoError(t, err)

		req, err := http.NewRequest(http.MethodPost, server.URL+"/createTask", bytes.NewReader(raw))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+bobToken)
		req.Header.Set("Idempotency-Key", idempKey)

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		require.Equal(t, http.StatusCreated, resp.StatusCode)

		var bobTask model.Task
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&bobTask))
		resp.Body.Close()

		assert.NotEqual(t, first.ID, bobTask.ID, "keys are scoped per owner")
		assert.Equal(t, "Bob's Task", bobTask.Title)
	})

	t.Run("key replay after delete creates anew", func(t *testing.T) {
		resp := doJSON(t, http.MethodDelete, server.URL+"/deleteTask/"+first.ID.String(), token, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		resp.Body.Close()

		replayed := send()
		assert.NotEqual(t, first.ID, replayed.ID, "stale mapping must not 404 a create")
	})
}

func TestE2E_DateOnlyDueDate(t *testing.T) {
	server, cleanup := setupE2EServer(t)
	defer cleanup()

	token := signupUser(t, server, "dateonly@example.com")

	body := []byte(`{"title":"T","description":"D","status":"Pending","due_date":"2030-06-15"}`)
	req, err := http.NewRequest(http.MethodPost, server.URL+"/createTask", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created model.Task
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	resp.Body.Close()

	assert.True(t, created.DueDate.Time.Equal(time.Date(2030, 6, 15, 0, 0, 0, 0, time.UTC)))
}

func TestE2E_FilteringAndLimit(t *testing.T) {
	server, cleanup := setupE2EServer(t)
	defer cleanup()

	token := signupUser(t, server, "filter@example.com")

	for i := 0; i < 8; i++ {
		task := newTaskBody(fmt.Sprintf("Task %d", i))
		if i%2 == 0 {
			task.Status = model.StatusCompleted
		}
		resp := doJSON(t, http.MethodPost, server.URL+"/createTask", token, task)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		resp.Body.Close()
	}

	t.Run("filter by status", func(t *testing.T) {
		resp := doJSON(t, http.MethodGet, server.URL+"/fetchTasks?status=Completed", token, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var listBody struct {
			Tasks []model.Task `json:"tasks"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&listBody))
		resp.Body.Close()

		assert.Len(t, listBody.Tasks, 4)
		for _, task := range listBody.Tasks {
			assert.Equal(t, model.StatusCompleted, task.Status)
		}
	})

	t.Run("limit", func(t *testing.T) {
		resp := doJSON(t, http.MethodGet, server.URL+"/fetchTasks?limit=3", token, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var listBody struct {
			Tasks []model.Task `json:"tasks"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&listBody))
		resp.Body.Close()

		assert.Len(t, listBody.Tasks, 3)
	})
}

func TestE2E_StatsAndOverdueSweep(t *testing.T) {
	server, cleanup := setupE2EServer(t)
	defer cleanup()

	token := signupUser(t, server, "stats@example.com")

	overdueTask := newTaskBody("Already Late")
	overdueTask.DueDate = model.DueDate{Time: time.Now().Add(-time.Hour)}
	resp := doJSON(t, http.MethodPost, server.URL+"/createTask", token, overdueTask)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, http.MethodPost, server.URL+"/createTask", token, newTaskBody("On Time"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	fetchStats := func() repo.Stats {
		resp := doJSON(t, http.MethodGet, server.URL+"/stats", token, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var stats repo.Stats
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
		resp.Body.Close()
		return stats
	}

	flagged := WaitForCondition(t, 10*time.Second, func() bool {
		return fetchStats().Overdue == 1
	})
	require.True(t, flagged, "sweeper should flag the past-due task")

	stats := fetchStats()
	assert.Equal(t, 2, stats.TotalTasks)
	assert.Equal(t, 1, stats.Overdue)
	assert.Equal(t, 2, stats.ByStatus[model.StatusPending])
}

func TestE2E_HealthCheck(t *testing.T) {
	server, cleanup := setupE2EServer(t)
	defer cleanup()

	resp, err := http.Get(server.URL + "/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var health map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	resp.Body.Close()

	assert.Equal(t, "ok", health["status"])
}
