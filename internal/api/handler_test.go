package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentdeck/internal/customize"
	"agentdeck/internal/eventbus"
	"agentdeck/internal/jobs"
	"agentdeck/internal/notifier"
	"agentdeck/internal/quiet"
	"agentdeck/internal/storage"
	"agentdeck/pkg/launchctl"
	logx "agentdeck/pkg/logx"
)

type fakeSupervisor struct {
	mu     sync.Mutex
	loaded map[string]bool
}

func (f *fakeSupervisor) IsLoaded(_ context.Context, label string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loaded[label], nil
}

func (f *fakeSupervisor) Load(_ context.Context, label, _ string) launchctl.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loaded[label] = true
	return launchctl.Result{OK: true, Message: "Job activated"}
}

func (f *fakeSupervisor) Unload(_ context.Context, label, _ string) launchctl.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.loaded, label)
	return launchctl.Result{OK: true, Message: "Job deactivated"}
}

func (f *fakeSupervisor) RunNow(context.Context, string) launchctl.Result {
	return launchctl.Result{OK: true, Message: "Run requested"}
}

type fixture struct {
	srv *httptest.Server
	bus eventbus.Bus
	sup *fakeSupervisor
	dir string
}

func newFixture(t *testing.T, withStore bool) *fixture {
	t.Helper()
	dir := t.TempDir()

	var store storage.Store
	if withStore {
		var err error
		store, err = storage.Open(storage.Config{
			Driver: "file",
			Path:   filepath.Join(t.TempDir(), "state"),
		}, logx.Nop())
		require.NoError(t, err)
		t.Cleanup(func() { _ = store.Close() })
	}

	sup := &fakeSupervisor{loaded: map[string]bool{}}
	custom := customize.New(store, logx.Nop())
	svc := jobs.NewService(jobs.Options{AgentsDir: dir, TailLines: 10}, sup, custom, store, logx.Nop())
	bus := eventbus.New()
	notify := notifier.New(notifier.Config{Enabled: true}, quiet.Window{}, nil, bus, logx.Nop())
	h := NewHandler(svc, custom, notify, store, bus, logx.Nop(), storage.Settings{
		Patterns: []string{},
	})

	srv := httptest.NewServer(NewRouter(h))
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, bus: bus, sup: sup, dir: dir}
}

func (f *fixture) addJob(t *testing.T, label, extra string) {
	t.Helper()
	body := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<plist version="1.0"><dict>
<key>Label</key><string>%s</string>%s
</dict></plist>`, label, extra)
	require.NoError(t, os.WriteFile(filepath.Join(f.dir, label+".plist"), []byte(body), 0o644))
}

func (f *fixture) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, f.srv.URL+path, &buf)
	require.NoError(t, err)
	resp, err := f.srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestListJobsEndpoint(t *testing.T) {
	t.Parallel()
	f := newFixture(t, false)
	f.addJob(t, "com.example.backup", `<key>StartInterval</key><integer>3600</integer>`)

	resp := f.do(t, http.MethodGet, "/api/jobs", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	list := decode[[]jobs.Job](t, resp)
	require.Len(t, list, 1)
	assert.Equal(t, "com.example.backup", list[0].ID)
	assert.Equal(t, "backup", list[0].Name)
	assert.Equal(t, "interval", list[0].Schedule)
	assert.Equal(t, "Every 1 hour", list[0].ScheduleText)
	assert.False(t, list[0].IsLoaded)
}

func TestToggleAndRunEndpoints(t *testing.T) {
	t.Parallel()
	f := newFixture(t, false)
	f.addJob(t, "com.example.backup", "")

	res := decode[jobs.OpResult](t, f.do(t, http.MethodPost, "/api/jobs/com.example.backup/toggle", nil))
	require.True(t, res.Success, res.Message)

	res = decode[jobs.OpResult](t, f.do(t, http.MethodPost, "/api/jobs/com.example.backup/run", nil))
	require.True(t, res.Success, res.Message)

	// Unknown labels fail with a structured result, not a transport error.
	resp := f.do(t, http.MethodPost, "/api/jobs/com.no.such/toggle", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	res = decode[jobs.OpResult](t, resp)
	assert.False(t, res.Success)
	assert.Equal(t, "Job not found; refresh and try again", res.Message)
}

func TestJobLogsEndpoint(t *testing.T) {
	t.Parallel()
	f := newFixture(t, false)
	logPath := filepath.Join(f.dir, "job.out")
	require.NoError(t, os.WriteFile(logPath, []byte("a\nb\nc\n"), 0o644))
	f.addJob(t, "com.example.backup",
		`<key>StandardOutPath</key><string>`+logPath+`</string>`)

	resp := f.do(t, http.MethodGet, "/api/jobs/com.example.backup/logs?lines=2", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	logs := decode[logsResponse](t, resp)
	assert.Equal(t, "b\nc", logs.Content)
	assert.NotNil(t, logs.LastModified)

	resp = f.do(t, http.MethodGet, "/api/jobs/com.example.backup/logs?lines=-1", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/api/jobs/com.no.such/logs", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestVisibleEndpointPublishesRefresh(t *testing.T) {
	t.Parallel()
	f := newFixture(t, false)
	events, unsub := f.bus.Subscribe(4)
	defer unsub()

	resp := f.do(t, http.MethodPost, "/api/visible", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	ev := <-events
	assert.Equal(t, eventbus.TypeRefreshRequested, ev.Type)
}

func TestSettingsEndpoints(t *testing.T) {
	t.Parallel()
	f := newFixture(t, true)

	// Defaults until a PUT persists.
	got := decode[storage.Settings](t, f.do(t, http.MethodGet, "/api/settings", nil))
	assert.Empty(t, got.Patterns)
	assert.False(t, got.FocusMode.Enabled)

	want := storage.Settings{
		Patterns:  []string{"com.example."},
		FocusMode: storage.FocusMode{Enabled: true, Start: "22:00", End: "07:00"},
	}
	resp := f.do(t, http.MethodPut, "/api/settings", want)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	got = decode[storage.Settings](t, f.do(t, http.MethodGet, "/api/settings", nil))
	assert.Equal(t, want, got)

	// The pattern filter applies to the very next list.
	f.addJob(t, "com.example.a", "")
	f.addJob(t, "org.other.b", "")
	list := decode[[]jobs.Job](t, f.do(t, http.MethodGet, "/api/jobs", nil))
	require.Len(t, list, 1)
	assert.Equal(t, "com.example.a", list[0].ID)
}

func TestSettingsReadReflectsWriteWithoutStore(t *testing.T) {
	t.Parallel()
	f := newFixture(t, false)

	want := storage.Settings{
		Patterns:  []string{"com.example."},
		FocusMode: storage.FocusMode{Enabled: true, Start: "22:00", End: "07:00"},
	}
	resp := f.do(t, http.MethodPut, "/api/settings", want)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Read-modify-write discipline: a client that re-reads before writing
	// must see its own accepted PUT, persistence or not.
	got := decode[storage.Settings](t, f.do(t, http.MethodGet, "/api/settings", nil))
	assert.Equal(t, want, got)
}

func TestPutSettingsValidatesWindow(t *testing.T) {
	t.Parallel()
	f := newFixture(t, true)
	bad := storage.Settings{
		FocusMode: storage.FocusMode{Enabled: true, Start: "25:00", End: "07:00"},
	}
	resp := f.do(t, http.MethodPut, "/api/settings", bad)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCustomizationEndpoints(t *testing.T) {
	t.Parallel()
	f := newFixture(t, true)
	f.addJob(t, "com.example.backup", "")

	// Absent override reads as empty, not 404: the job exists.
	got := decode[customizationBody](t, f.do(t, http.MethodGet, "/api/jobs/com.example.backup/customization", nil))
	assert.Empty(t, got.DisplayName)

	resp := f.do(t, http.MethodPut, "/api/jobs/com.example.backup/customization",
		customizationBody{DisplayName: "Nightly backup"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	got = decode[customizationBody](t, f.do(t, http.MethodGet, "/api/jobs/com.example.backup/customization", nil))
	assert.Equal(t, "Nightly backup", got.DisplayName)

	// The override shows up as the job's display name.
	list := decode[[]jobs.Job](t, f.do(t, http.MethodGet, "/api/jobs", nil))
	require.Len(t, list, 1)
	assert.Equal(t, "Nightly backup", list[0].Name)

	resp = f.do(t, http.MethodDelete, "/api/jobs/com.example.backup/customization", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	list = decode[[]jobs.Job](t, f.do(t, http.MethodGet, "/api/jobs", nil))
	require.Len(t, list, 1)
	assert.Equal(t, "backup", list[0].Name)
}

func TestPutCustomizationWithoutStore(t *testing.T) {
	t.Parallel()
	f := newFixture(t, false)
	f.addJob(t, "com.example.backup", "")

	resp := f.do(t, http.MethodPut, "/api/jobs/com.example.backup/customization",
		customizationBody{DisplayName: "x"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	f := newFixture(t, false)
	resp := f.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[map[string]string](t, resp)
	assert.Equal(t, "ok", body["status"])
}
