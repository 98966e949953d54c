package http

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/pranjal030703/taskflow-pro/internal/authgate"
	"github.com/pranjal030703/taskflow-pro/internal/hub"
	"github.com/pranjal030703/taskflow-pro/internal/models"
	"github.com/pranjal030703/taskflow-pro/internal/repository"
	"github.com/pranjal030703/taskflow-pro/internal/service"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	eventHub := hub.New(logger, 16)
	svc := service.NewTaskService(repository.NewMemoryTaskRepository(), eventHub, logger, 3)
	verifier := authgate.StaticVerifier{
		"alice-token": "alice",
		"bob-token":   "bob",
	}

	mux := http.NewServeMux()
	NewTaskHandler(svc, verifier, eventHub, logger).Register(mux)

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func doRequest(t *testing.T, server *httptest.Server, method, path, token string, body any) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, server.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, raw
}

func createTask(t *testing.T, server *httptest.Server, token, title, status, priority string) *models.Task {
	t.Helper()
	resp, raw := doRequest(t, server, http.MethodPost, "/v1/tasks", token, map[string]string{
		"title":    title,
		"status":   status,
		"priority": priority,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create %q: status %d, body %s", title, resp.StatusCode, raw)
	}
	task := &models.Task{}
	if err := json.Unmarshal(raw, task); err != nil {
		t.Fatalf("decode task: %v", err)
	}
	return task
}

func TestHandlers_RequireCredential(t *testing.T) {
	server := newTestServer(t)

	cases := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/v1/tasks"},
		{http.MethodPost, "/v1/tasks"},
		{http.MethodGet, "/v1/tasks/t_1"},
		{http.MethodPatch, "/v1/tasks/t_1"},
		{http.MethodPost, "/v1/tasks/t_1/move"},
		{http.MethodDelete, "/v1/tasks/t_1"},
		{http.MethodGet, "/v1/tasks/search?q=x"},
	}
	for _, tc := range cases {
		resp, _ := doRequest(t, server, tc.method, tc.path, "", nil)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("%s %s without token: status %d, want 401", tc.method, tc.path, resp.StatusCode)
		}
	}
}

func TestCreateAndList_ScopedToOwner(t *testing.T) {
	server := newTestServer(t)

	created := createTask(t, server, "alice-token", "Write spec", "todo", "high")
	if created.Status != models.StatusTodo || created.Position != 0 {
		t.Errorf("unexpected created task: %+v", created)
	}
	if !strings.HasPrefix(created.ID, "t_") {
		t.Errorf("unexpected id format: %s", created.ID)
	}

	resp, raw := doRequest(t, server, http.MethodGet, "/v1/tasks", "alice-token", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list: status %d", resp.StatusCode)
	}
	var aliceTasks []*models.Task
	if err := json.Unmarshal(raw, &aliceTasks); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(aliceTasks) != 1 {
		t.Fatalf("alice sees %d tasks, want 1", len(aliceTasks))
	}

	_, raw = doRequest(t, server, http.MethodGet, "/v1/tasks", "bob-token", nil)
	var bobTasks []*models.Task
	if err := json.Unmarshal(raw, &bobTasks); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(bobTasks) != 0 {
		t.Fatalf("bob sees alice's tasks: %+v", bobTasks)
	}
}

func TestCreate_ValidationErrors(t *testing.T) {
	server := newTestServer(t)

	cases := []map[string]string{
		{"title": "", "status": "TODO", "priority": "LOW"},
		{"title": "x", "status": "NOPE", "priority": "LOW"},
		{"title": "x", "status": "TODO", "priority": "WHENEVER"},
	}
	for _, body := range cases {
		resp, _ := doRequest(t, server, http.MethodPost, "/v1/tasks", "alice-token", body)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("body %v: status %d, want 400", body, resp.StatusCode)
		}
	}
}

func TestForeignTask_LooksMissing(t *testing.T) {
	server := newTestServer(t)

	task := createTask(t, server, "alice-token", "private", "TODO", "LOW")

	resp, foreignBody := doRequest(t, server, http.MethodGet, "/v1/tasks/"+task.ID, "bob-token", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("foreign get: status %d, want 404", resp.StatusCode)
	}
	resp, missingBody := doRequest(t, server, http.MethodGet, "/v1/tasks/t_missing", "bob-token", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing get: status %d, want 404", resp.StatusCode)
	}
	if string(foreignBody) != string(missingBody) {
		t.Errorf("foreign and missing bodies differ: %s vs %s", foreignBody, missingBody)
	}

	resp, _ = doRequest(t, server, http.MethodDelete, "/v1/tasks/"+task.ID, "bob-token", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("foreign delete: status %d, want 404", resp.StatusCode)
	}

	// Alice still owns it.
	resp, _ = doRequest(t, server, http.MethodGet, "/v1/tasks/"+task.ID, "alice-token", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("owner get after foreign delete attempt: status %d", resp.StatusCode)
	}
}

func TestMoveEndpoint(t *testing.T) {
	server := newTestServer(t)

	first := createTask(t, server, "alice-token", "one", "TODO", "LOW")
	createTask(t, server, "alice-token", "two", "TODO", "LOW")

	resp, raw := doRequest(t, server, http.MethodPost, "/v1/tasks/"+first.ID+"/move", "alice-token",
		map[string]any{"status": "in_progress", "index": 0})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("move: status %d, body %s", resp.StatusCode, raw)
	}
	moved := &models.Task{}
	if err := json.Unmarshal(raw, moved); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if moved.Status != models.StatusInProgress || moved.Position != 0 {
		t.Errorf("moved task: %+v", moved)
	}

	resp, _ = doRequest(t, server, http.MethodPost, "/v1/tasks/"+first.ID+"/move", "alice-token",
		map[string]any{"status": "TODO"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("move without index: status %d, want 400", resp.StatusCode)
	}
}

func TestPatchEndpoint_StatusAndPosition(t *testing.T) {
	server := newTestServer(t)

	var ids []string
	for _, title := range []string{"a", "b", "c"} {
		ids = append(ids, createTask(t, server, "alice-token", title, "TODO", "LOW").ID)
	}

	resp, raw := doRequest(t, server, http.MethodPatch, "/v1/tasks/"+ids[2], "alice-token",
		map[string]any{"status": "TODO", "position": 0, "title": "c moved"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("patch: status %d, body %s", resp.StatusCode, raw)
	}
	updated := &models.Task{}
	if err := json.Unmarshal(raw, updated); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if updated.Position != 0 || updated.Title != "c moved" {
		t.Errorf("patched task: %+v", updated)
	}

	_, raw = doRequest(t, server, http.MethodGet, "/v1/tasks", "alice-token", nil)
	var tasks []*models.Task
	if err := json.Unmarshal(raw, &tasks); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	wantOrder := []string{ids[2], ids[0], ids[1]}
	for i, task := range tasks {
		if task.ID != wantOrder[i] || task.Position != i {
			t.Errorf("rank %d: got (%s, %d), want (%s, %d)", i, task.ID, task.Position, wantOrder[i], i)
		}
	}
}

func TestSearchEndpoint(t *testing.T) {
	server := newTestServer(t)

	createTask(t, server, "alice-token", "groceries list", "TODO", "LOW")
	createTask(t, server, "alice-token", "call plumber", "TODO", "LOW")
	createTask(t, server, "bob-token", "groceries too", "TODO", "LOW")

	resp, _ := doRequest(t, server, http.MethodGet, "/v1/tasks/search", "alice-token", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("search without q: status %d, want 400", resp.StatusCode)
	}

	resp, raw := doRequest(t, server, http.MethodGet, "/v1/tasks/search?q=groceries", "alice-token", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("search: status %d", resp.StatusCode)
	}
	var tasks []*models.Task
	if err := json.Unmarshal(raw, &tasks); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(tasks) != 1 || tasks[0].Title != "groceries list" {
		t.Fatalf("search results not scoped to alice: %+v", tasks)
	}
}

func TestWebSocket_SnapshotThenEvents(t *testing.T) {
	server := newTestServer(t)

	existing := createTask(t, server, "alice-token", "already there", "TODO", "LOW")

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/v1/ws?token=alice-token"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	snapshot := &models.Event{}
	if err := conn.ReadJSON(snapshot); err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if snapshot.Type != models.EventSnapshot || len(snapshot.Tasks) != 1 || snapshot.Tasks[0].ID != existing.ID {
		t.Fatalf("unexpected snapshot: %+v", snapshot)
	}

	created := createTask(t, server, "alice-token", "fresh", "TODO", "LOW")

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	event := &models.Event{}
	if err := conn.ReadJSON(event); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if event.Type != models.EventCreate || event.Task == nil || event.Task.ID != created.ID {
		t.Fatalf("unexpected event: %+v", event)
	}
}

func TestWebSocket_OtherOwnersStaySilent(t *testing.T) {
	server := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/v1/ws?token=bob-token"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	snapshot := &models.Event{}
	if err := conn.ReadJSON(snapshot); err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if snapshot.Type != models.EventSnapshot || len(snapshot.Tasks) != 0 {
		t.Fatalf("unexpected snapshot: %+v", snapshot)
	}

	// Alice's mutation must never reach bob's socket.
	createTask(t, server, "alice-token", "secret", "TODO", "LOW")

	conn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	event := &models.Event{}
	err = conn.ReadJSON(event)
	if err == nil {
		t.Fatalf("bob received a foreign event: %+v", event)
	}

	wsRejected := "ws" + strings.TrimPrefix(server.URL, "http") + "/v1/ws"
	if _, resp, err := websocket.DefaultDialer.Dial(wsRejected, nil); err == nil {
		t.Fatal("anonymous websocket connect succeeded")
	} else if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anonymous connect: expected 401 handshake rejection, got %v", err)
	}
}
