package main

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridpilot/gridpilot/pkg/cmd"
	"github.com/gridpilot/gridpilot/pkg/models"
	"github.com/gridpilot/gridpilot/pkg/persistence/file"
	"github.com/gridpilot/gridpilot/pkg/resolver"
	"github.com/gridpilot/gridpilot/pkg/scheduler"
	"github.com/gridpilot/gridpilot/pkg/web"
)

func setupTestApp(t *testing.T) *fiber.App {
	t.Helper()

	store := file.NewPersistence(t.TempDir())
	registry := cmd.NewRegistry(slog.Default(), cmd.RegistryOptions{})

	manager := scheduler.NewManager(scheduler.ManagerConfig{
		RunnerID:    "runner-test",
		Capacities:  map[string]int{"gateway": 1},
		Registry:    registry,
		Resolver:    resolver.New(nil),
		Persistence: store,
		Logger:      slog.Default(),
	})

	api := NewAPI(slog.Default(), manager, store, registry)

	return api.App()
}

func doRequest(t *testing.T, app *fiber.App, method, path, body string) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() {
		err := resp.Body.Close()
		if err != nil {
			t.Logf("Failed to close response body: %v", err)
		}
	}()

	payload, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp, payload
}

func TestAPI_RootEndpoint(t *testing.T) {
	app := setupTestApp(t)

	resp, body := doRequest(t, app, http.MethodGet, "/", "")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "GridPilot API", string(body))
}

func TestAPI_HealthCheck(t *testing.T) {
	app := setupTestApp(t)

	resp, _ := doRequest(t, app, http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAPI_CreatePlaybook(t *testing.T) {
	app := setupTestApp(t)

	body := `{
		"name": "nightly gateway restart",
		"resource_class": "gateway",
		"steps": [
			{"id": "s1", "uid": "s1", "name": "settle", "type": "delay", "parameters": {"seconds": 5}, "enabled": true}
		]
	}`

	resp, payload := doRequest(t, app, http.MethodPost, "/playbooks", body)

	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created models.Playbook
	require.NoError(t, json.Unmarshal(payload, &created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "nightly gateway restart", created.Name)
}

func TestAPI_CreatePlaybook_InvalidBody(t *testing.T) {
	app := setupTestApp(t)

	resp, _ := doRequest(t, app, http.MethodPost, "/playbooks", `{"name": "x"}`)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_GetPlaybook_NotFound(t *testing.T) {
	app := setupTestApp(t)

	resp, _ := doRequest(t, app, http.MethodGet, "/playbooks/pb-missing", "")

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_SubmitExecution_UnknownPlaybook(t *testing.T) {
	app := setupTestApp(t)

	resp, _ := doRequest(t, app, http.MethodPost, "/executions", `{"playbook_id": "pb-missing"}`)

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_SubmitAndFetchExecution(t *testing.T) {
	app := setupTestApp(t)

	playbook := `{
		"name": "nightly gateway restart",
		"resource_class": "gateway",
		"steps": [
			{"id": "s1", "uid": "s1", "name": "settle", "type": "delay", "parameters": {"seconds": 5}, "enabled": true}
		]
	}`

	resp, payload := doRequest(t, app, http.MethodPost, "/playbooks", playbook)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created models.Playbook
	require.NoError(t, json.Unmarshal(payload, &created))

	resp, payload = doRequest(t, app, http.MethodPost, "/executions",
		`{"playbook_id": "`+created.ID+`", "priority": 80}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var submitted web.SubmitExecutionResponse
	require.NoError(t, json.Unmarshal(payload, &submitted))
	assert.NotEmpty(t, submitted.ExecutionID)
	assert.Equal(t, "queued", submitted.Status)

	// The dispatch loop is not running in this test, so the run stays
	// queued and reports its position.
	resp, payload = doRequest(t, app, http.MethodGet, "/executions/"+submitted.ExecutionID, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var status struct {
		Execution     *models.Execution `json:"execution"`
		QueuePosition int               `json:"queue_position"`
	}
	require.NoError(t, json.Unmarshal(payload, &status))
	assert.Equal(t, models.ExecutionStatusQueued, status.Execution.Status)
	assert.Equal(t, 80, status.Execution.Priority)
	assert.Equal(t, 0, status.QueuePosition)
}

func TestAPI_SubmitExecution_InvalidPriority(t *testing.T) {
	app := setupTestApp(t)

	resp, _ := doRequest(t, app, http.MethodPost, "/executions", `{"playbook_id": "pb-1", "priority": 500}`)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_ControlUnknownExecution(t *testing.T) {
	app := setupTestApp(t)

	for _, op := range []string{"cancel", "pause", "resume", "skip"} {
		resp, _ := doRequest(t, app, http.MethodPost, "/executions/exec-missing/"+op, "")

		assert.Equal(t, http.StatusConflict, resp.StatusCode, "op %s", op)
	}
}

func TestAPI_GetStepHandlers(t *testing.T) {
	app := setupTestApp(t)

	resp, payload := doRequest(t, app, http.MethodGet, "/step-handlers", "")

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var components []models.RegisteredComponent
	require.NoError(t, json.Unmarshal(payload, &components))

	types := make([]string, 0, len(components))
	for _, component := range components {
		types = append(types, component.Type)
	}

	assert.Contains(t, types, "delay")
	assert.Contains(t, types, "http_request")
	assert.Contains(t, types, "log")
	assert.Contains(t, types, "set_variable")

	// The untrusted script handler is opt-in and absent by default.
	assert.NotContains(t, types, "script")
}
