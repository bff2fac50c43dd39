package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/google/go-cmp/cmp"

	"github.com/framesync/framesync/internal/classify"
	engine "github.com/framesync/framesync/internal/sync"
	"github.com/framesync/framesync/internal/synclog"
)

// fakeService returns scripted results and records renames.
type fakeService struct {
	mu sync.Mutex

	status    engine.StatusReport
	statusErr error
	syncRes   engine.SyncResult
	pullRep   engine.PullReport
	config    engine.ConfigReport
	logs      []synclog.Entry
	logsErr   error
	renameErr error

	renames [][2]string
	cleared int
}

func (f *fakeService) GetStatus(ctx context.Context) (engine.StatusReport, error) {
	return f.status, f.statusErr
}

func (f *fakeService) PerformFullSync(ctx context.Context) engine.SyncResult {
	return f.syncRes
}

func (f *fakeService) CheckAndPullIfBehind(ctx context.Context) engine.PullReport {
	return f.pullRep
}

func (f *fakeService) VerifyConfiguration(ctx context.Context) engine.ConfigReport {
	return f.config
}

func (f *fakeService) GetSyncLogs() ([]synclog.Entry, error) {
	return f.logs, f.logsErr
}

func (f *fakeService) ClearSyncLogs() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.logsErr != nil {
		return f.logsErr
	}
	f.cleared++
	return nil
}

func (f *fakeService) RenameImage(ctx context.Context, from, to string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.renameErr != nil {
		return f.renameErr
	}
	f.renames = append(f.renames, [2]string{from, to})
	return nil
}

var _ engine.Service = (*fakeService)(nil)

// do runs one request against the routes of a server that is not started.
func do(t *testing.T, svc engine.Service, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()

	server := NewServer(svc, &Config{Port: 0})
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("Failed to decode body %q: %v", rec.Body.String(), err)
	}
	return v
}

func startServer(t *testing.T, svc engine.Service) *Server {
	t.Helper()

	server := NewServer(svc, &Config{Host: "127.0.0.1", Port: 0})
	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	t.Cleanup(func() { server.Stop() })

	// Give server time to start
	time.Sleep(100 * time.Millisecond)
	return server
}

func dial(t *testing.T, ctx context.Context, server *Server) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.Dial(ctx, "ws://"+server.GetAddr()+"/ws", nil)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func readMessage(t *testing.T, ctx context.Context, conn *websocket.Conn) Message {
	t.Helper()

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Failed to read message: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Failed to unmarshal message: %v", err)
	}
	return msg
}

func TestStatusEndpoint(t *testing.T) {
	svc := &fakeService{status: engine.StatusReport{
		Upload:     classify.Bucket{Count: 2, NewImages: 2},
		HasChanges: true,
		Branch:     "main",
	}}

	rec := do(t, svc, http.MethodGet, "/api/sync/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	got := decode[engine.StatusReport](t, rec)
	if got.Upload.NewImages != 2 || !got.HasChanges || got.Branch != "main" {
		t.Errorf("report = %+v", got)
	}

	svc.statusErr = errors.New("not a git repository")
	if rec := do(t, svc, http.MethodGet, "/api/sync/status", ""); rec.Code != http.StatusInternalServerError {
		t.Errorf("status on error = %d, want 500", rec.Code)
	}
}

func TestSyncEndpointStatusCodes(t *testing.T) {
	tests := []struct {
		name string
		res  engine.SyncResult
		want int
	}{
		{"success", engine.SyncResult{Success: true, Committed: true}, http.StatusOK},
		{"resolved conflict", engine.SyncResult{Success: true, AutoResolvedConflict: true}, http.StatusOK},
		{"busy", engine.SyncResult{Busy: true, ErrorKind: engine.KindBusy}, http.StatusConflict},
		{"validation", engine.SyncResult{ErrorKind: engine.KindValidation}, http.StatusUnprocessableEntity},
		{"network", engine.SyncResult{ErrorKind: engine.KindNetwork}, http.StatusBadGateway},
		{"lock", engine.SyncResult{ErrorKind: engine.KindLock}, http.StatusLocked},
		{"configuration", engine.SyncResult{ErrorKind: engine.KindConfiguration}, http.StatusPreconditionFailed},
		{"push", engine.SyncResult{ErrorKind: engine.KindPush}, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, &fakeService{syncRes: tt.res}, http.MethodPost, "/api/sync", "")
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
			got := decode[engine.SyncResult](t, rec)
			if got.Success != tt.res.Success || got.ErrorKind != tt.res.ErrorKind {
				t.Errorf("body = %+v", got)
			}
		})
	}
}

func TestSyncEndpointRejectsGet(t *testing.T) {
	rec := do(t, &fakeService{}, http.MethodGet, "/api/sync", "")
	if rec.Code == http.StatusOK {
		t.Errorf("GET /api/sync succeeded")
	}
}

func TestPullEndpoint(t *testing.T) {
	svc := &fakeService{pullRep: engine.PullReport{Success: true, Skipped: true, Reason: "uncommitted changes"}}
	rec := do(t, svc, http.MethodPost, "/api/sync/pull", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := decode[engine.PullReport](t, rec); !got.Skipped || got.Reason != "uncommitted changes" {
		t.Errorf("report = %+v", got)
	}

	svc.pullRep = engine.PullReport{ErrorKind: engine.KindNetwork, Error: "could not resolve host"}
	if rec := do(t, svc, http.MethodPost, "/api/sync/pull", ""); rec.Code != http.StatusBadGateway {
		t.Errorf("status on network failure = %d, want 502", rec.Code)
	}
}

func TestVerifyEndpoint(t *testing.T) {
	svc := &fakeService{config: engine.ConfigReport{
		IsValid: false,
		Errors:  []string{"remote \"origin\" is not configured"},
	}}

	rec := do(t, svc, http.MethodGet, "/api/sync/verify", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	got := decode[engine.ConfigReport](t, rec)
	if got.IsValid || len(got.Errors) != 1 {
		t.Errorf("report = %+v", got)
	}
}

func TestLogsEndpoint(t *testing.T) {
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	svc := &fakeService{}
	for i := 3; i >= 0; i-- {
		svc.logs = append(svc.logs, synclog.Entry{
			ID:        fmt.Sprintf("e%d", i),
			Timestamp: base.Add(time.Duration(i) * time.Hour),
			Status:    synclog.StatusSuccess,
		})
	}

	ids := func(entries []synclog.Entry) []string {
		out := []string{}
		for _, e := range entries {
			out = append(out, e.ID)
		}
		return out
	}

	tests := []struct {
		name   string
		target string
		want   []string
	}{
		{"all", "/api/sync/logs", []string{"e3", "e2", "e1", "e0"}},
		{"limit", "/api/sync/logs?limit=2", []string{"e3", "e2"}},
		{"since", "/api/sync/logs?since=2024-06-01T14:00:00Z", []string{"e3", "e2"}},
		{"since and limit", "/api/sync/logs?since=2024-06-01T13:00:00Z&limit=1", []string{"e3"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, svc, http.MethodGet, tt.target, "")
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", rec.Code)
			}
			if diff := cmp.Diff(tt.want, ids(decode[[]synclog.Entry](t, rec))); diff != "" {
				t.Errorf("entries mismatch (-want +got):\n%s", diff)
			}
		})
	}

	for _, bad := range []string{"?limit=-1", "?limit=many", "?since=yesterday"} {
		if rec := do(t, svc, http.MethodGet, "/api/sync/logs"+bad, ""); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", bad, rec.Code)
		}
	}
}

func TestLogsWithoutHistory(t *testing.T) {
	svc := &fakeService{logsErr: engine.ErrNoHistory}

	if rec := do(t, svc, http.MethodGet, "/api/sync/logs", ""); rec.Code != http.StatusNotFound {
		t.Errorf("GET status = %d, want 404", rec.Code)
	}
	if rec := do(t, svc, http.MethodDelete, "/api/sync/logs", ""); rec.Code != http.StatusNotFound {
		t.Errorf("DELETE status = %d, want 404", rec.Code)
	}
}

func TestClearLogsEndpoint(t *testing.T) {
	svc := &fakeService{}

	rec := do(t, svc, http.MethodDelete, "/api/sync/logs", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if svc.cleared != 1 {
		t.Errorf("cleared = %d, want 1", svc.cleared)
	}
}

func TestRenameEndpoint(t *testing.T) {
	svc := &fakeService{}
	rec := do(t, svc, http.MethodPost, "/api/images/rename", `{"from":"a.jpg","to":"b.jpg"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if diff := cmp.Diff([][2]string{{"a.jpg", "b.jpg"}}, svc.renames); diff != "" {
		t.Errorf("renames mismatch (-want +got):\n%s", diff)
	}

	tests := []struct {
		name string
		err  error
		body string
		want int
	}{
		{"not found", fmt.Errorf("%w: a.jpg", engine.ErrImageNotFound), `{"from":"a.jpg","to":"b.jpg"}`, http.StatusNotFound},
		{"exists", engine.ErrImageExists, `{"from":"a.jpg","to":"b.jpg"}`, http.StatusConflict},
		{"busy", engine.ErrBusy, `{"from":"a.jpg","to":"b.jpg"}`, http.StatusConflict},
		{"invalid name", fmt.Errorf("%w %q", engine.ErrInvalidName, "../b.jpg"), `{"from":"a.jpg","to":"../b.jpg"}`, http.StatusBadRequest},
		{"other", errors.New("disk full"), `{"from":"a.jpg","to":"b.jpg"}`, http.StatusInternalServerError},
		{"malformed body", nil, `{"from":`, http.StatusBadRequest},
		{"unknown field", nil, `{"from":"a.jpg","to":"b.jpg","force":true}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, &fakeService{renameErr: tt.err}, http.MethodPost, "/api/images/rename", tt.body)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestHealthAndRoot(t *testing.T) {
	server := NewServer(&fakeService{}, nil)
	NewHandler(server, nil).SyncCompleted(engine.SyncResult{Success: true})

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("health status = %d", rec.Code)
	}
	var health struct {
		Status  string `json:"status"`
		Clients int    `json:"clients"`
		Stats   Stats  `json:"stats"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if health.Status != "ok" || health.Clients != 0 || health.Stats.Syncs != 1 {
		t.Errorf("health = %+v", health)
	}

	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "/ws") {
		t.Errorf("root = %d %q", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown path status = %d, want 404", rec.Code)
	}
}

func TestServerStartStop(t *testing.T) {
	server := NewServer(&fakeService{}, &Config{Host: "127.0.0.1", Port: 0})

	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	if addr := server.GetAddr(); addr == "" || strings.HasSuffix(addr, ":0") {
		t.Fatalf("Server address = %q", addr)
	}

	if err := server.Stop(); err != nil {
		t.Fatalf("Failed to stop server: %v", err)
	}
}

func TestWebSocketWelcomeCarriesStatus(t *testing.T) {
	svc := &fakeService{status: engine.StatusReport{Branch: "main", HasChanges: true}}
	server := startServer(t, svc)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn := dial(t, ctx, server)

	msg := readMessage(t, ctx, conn)
	if msg.Type != MessageTypeStatus {
		t.Fatalf("Expected welcome message type %s, got %s", MessageTypeStatus, msg.Type)
	}
	var report engine.StatusReport
	if err := json.Unmarshal(msg.Data, &report); err != nil {
		t.Fatalf("Failed to unmarshal status: %v", err)
	}
	if report.Branch != "main" || !report.HasChanges {
		t.Errorf("report = %+v", report)
	}

	if count := server.ClientCount(); count != 1 {
		t.Errorf("Expected 1 client, got %d", count)
	}
}

func TestNotificationsReachClients(t *testing.T) {
	server := startServer(t, &fakeService{})
	handler := NewHandler(server, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	const numClients = 3
	var conns []*websocket.Conn
	for i := 0; i < numClients; i++ {
		conn := dial(t, ctx, server)
		readMessage(t, ctx, conn) // welcome
		conns = append(conns, conn)
	}

	// skipped polls are not broadcast, so the first message is the sync
	handler.PullCompleted(engine.PullReport{Success: true, Skipped: true})
	handler.SyncCompleted(engine.SyncResult{
		Success:              true,
		AutoResolvedConflict: true,
		LostChangesSummary:   []string{"added: mine.jpg"},
	})
	handler.PullCompleted(engine.PullReport{Success: true, PulledChanges: true, CommitsReceived: 2})

	for i, conn := range conns {
		msg := readMessage(t, ctx, conn)
		if msg.Type != MessageTypeSyncComplete {
			t.Fatalf("client %d: got %s, want %s", i, msg.Type, MessageTypeSyncComplete)
		}
		var res engine.SyncResult
		if err := json.Unmarshal(msg.Data, &res); err != nil {
			t.Fatalf("client %d: unmarshal: %v", i, err)
		}
		if diff := cmp.Diff([]string{"added: mine.jpg"}, res.LostChangesSummary); diff != "" {
			t.Errorf("client %d: lost changes mismatch (-want +got):\n%s", i, diff)
		}

		if msg := readMessage(t, ctx, conn); msg.Type != MessageTypePullComplete {
			t.Errorf("client %d: got %s, want %s", i, msg.Type, MessageTypePullComplete)
		}
	}

	stats := handler.GetStats()
	if stats.Syncs != 1 || stats.ResolvedSyncs != 1 || stats.Pulls != 1 || stats.CommitsPulled != 2 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestRenameIsBroadcast(t *testing.T) {
	server := startServer(t, &fakeService{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn := dial(t, ctx, server)
	readMessage(t, ctx, conn) // welcome

	resp, err := http.Post("http://"+server.GetAddr()+"/api/images/rename", "application/json",
		strings.NewReader(`{"from":"a.jpg","to":"b.jpg"}`))
	if err != nil {
		t.Fatalf("POST rename: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	msg := readMessage(t, ctx, conn)
	if msg.Type != MessageTypeImageRenamed {
		t.Fatalf("got %s, want %s", msg.Type, MessageTypeImageRenamed)
	}
	var data RenameData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if data != (RenameData{From: "a.jpg", To: "b.jpg"}) {
		t.Errorf("data = %+v", data)
	}
}
