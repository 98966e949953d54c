package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/pranjal030703/taskflow-pro/internal/models"
)

// Transport is the HTTP + websocket implementation of API.
type Transport struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *logrus.Logger
}

func NewTransport(baseURL, token string, timeout time.Duration, logger *logrus.Logger) *Transport {
	return &Transport{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

func (t *Transport) List(ctx context.Context) ([]*models.Task, error) {
	var tasks []*models.Task
	if err := t.do(ctx, http.MethodGet, "/v1/tasks", nil, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

func (t *Transport) Create(ctx context.Context, title, status, priority, description string) (*models.Task, error) {
	body := map[string]string{
		"title":       title,
		"status":      status,
		"priority":    priority,
		"description": description,
	}
	task := &models.Task{}
	if err := t.do(ctx, http.MethodPost, "/v1/tasks", body, task); err != nil {
		return nil, err
	}
	return task, nil
}

func (t *Transport) Move(ctx context.Context, id, status string, index int) (*models.Task, error) {
	body := map[string]any{"status": status, "index": index}
	task := &models.Task{}
	if err := t.do(ctx, http.MethodPost, "/v1/tasks/"+url.PathEscape(id)+"/move", body, task); err != nil {
		return nil, err
	}
	return task, nil
}

func (t *Transport) Update(ctx context.Context, id string, req UpdateRequest) (*models.Task, error) {
	task := &models.Task{}
	if err := t.do(ctx, http.MethodPatch, "/v1/tasks/"+url.PathEscape(id), req, task); err != nil {
		return nil, err
	}
	return task, nil
}

func (t *Transport) Delete(ctx context.Context, id string) error {
	return t.do(ctx, http.MethodDelete, "/v1/tasks/"+url.PathEscape(id), nil, nil)
}

func (t *Transport) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+t.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := t.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return statusError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// statusError maps response codes back onto the shared sentinels so the
// reconciler can distinguish auth failures from everything else.
func statusError(resp *http.Response) error {
	var payload struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&payload)
	if payload.Error == "" {
		payload.Error = resp.Status
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", models.ErrUnauthorized, payload.Error)
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s", models.ErrValidation, payload.Error)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", models.ErrNotFound, payload.Error)
	case http.StatusConflict:
		return fmt.Errorf("%w: %s", models.ErrConflict, payload.Error)
	default:
		return fmt.Errorf("server error: %s", payload.Error)
	}
}

// Listen connects the realtime feed and hands every pushed event to
// onEvent, starting with the server's connect-time snapshot. It returns
// when the context is cancelled or the connection drops; callers are
// expected to reconnect, which re-syncs them via the fresh snapshot.
func (t *Transport) Listen(ctx context.Context, onEvent func(*models.Event)) error {
	wsURL, err := t.websocketURL()
	if err != nil {
		return err
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+t.token)
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return fmt.Errorf("%w: websocket handshake rejected", models.ErrUnauthorized)
		}
		return err
	}
	defer conn.Close()

	t.logger.WithField("component", "transport").Debug("realtime feed connected")

	// The watcher must die with this call, not with the context: Listen
	// returns on every dropped connection and callers reconnect in a loop.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		event := &models.Event{}
		if err := conn.ReadJSON(event); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		onEvent(event)
	}
}

func (t *Transport) websocketURL() (string, error) {
	u, err := url.Parse(t.baseURL + "/v1/ws")
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	return u.String(), nil
}
