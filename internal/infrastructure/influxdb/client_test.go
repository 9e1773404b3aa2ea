package influxdb

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/tabi-core/internal/command"
	"github.com/nerrad567/tabi-core/internal/dispatch"
	"github.com/nerrad567/tabi-core/internal/infrastructure/config"
)

// fakeInflux answers /ping and records line protocol posted to /api/v2/write.
type fakeInflux struct {
	mu        sync.Mutex
	lines     []string
	writeCode int
}

func (f *fakeInflux) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/ping":
		w.WriteHeader(http.StatusNoContent)
	case "/api/v2/write":
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		code := f.writeCode
		if code == 0 {
			f.lines = append(f.lines, strings.Split(strings.TrimSpace(string(body)), "\n")...)
			code = http.StatusNoContent
		}
		f.mu.Unlock()
		w.WriteHeader(code)
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeInflux) written() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lines...)
}

func startFake(t *testing.T) (*fakeInflux, config.InfluxDBConfig) {
	t.Helper()
	f := &fakeInflux{}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return f, config.InfluxDBConfig{
		Enabled:       true,
		URL:           srv.URL,
		Token:         "test-token",
		Org:           "tabi",
		Bucket:        "blinds",
		BatchSize:     10,
		FlushInterval: 1,
	}
}

func testRecord() dispatch.Record {
	return dispatch.Record{
		ID:      "d1",
		Kind:    dispatch.KindRoom,
		Target:  "bed",
		Command: command.Open,
		Outcomes: []dispatch.Outcome{
			{DeviceID: "b1", Room: "bed", Status: dispatch.StatusSuccess},
			{DeviceID: "b2", Room: "bed", Status: dispatch.StatusError, Error: "timeout"},
		},
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestConnect_Disabled(t *testing.T) {
	_, err := Connect(config.InfluxDBConfig{Enabled: false})
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	_, err := Connect(config.InfluxDBConfig{Enabled: true, URL: "http://127.0.0.1:1", Bucket: "b"})
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestConnect_AndHealthCheck(t *testing.T) {
	_, cfg := startFake(t)
	c, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer c.Close()

	if !c.IsConnected() {
		t.Error("IsConnected() = false")
	}
	if err := c.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestRecordDispatch_WritesOnePointPerOutcome(t *testing.T) {
	f, cfg := startFake(t)
	c, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer c.Close()

	if err := c.RecordDispatch(context.Background(), testRecord()); err != nil {
		t.Fatalf("RecordDispatch() error = %v", err)
	}
	c.Flush()

	lines := f.written()
	if len(lines) != 2 {
		t.Fatalf("wrote %d lines, want 2: %v", len(lines), lines)
	}
	for _, want := range []string{"blind_command,", "command=OPEN", "device_id=b1", "kind=room", "status=success", "success=1i", `dispatch_id="d1"`} {
		if !strings.Contains(lines[0], want) {
			t.Errorf("line %q missing %q", lines[0], want)
		}
	}
	if !strings.Contains(lines[1], "status=error") || !strings.Contains(lines[1], "success=0i") {
		t.Errorf("failed outcome line = %q", lines[1])
	}
}

func TestRecordDispatch_WriteErrorsReachHandler(t *testing.T) {
	f, cfg := startFake(t)
	f.writeCode = http.StatusBadRequest

	got := make(chan error, 4)
	c, err := Connect(cfg, WithErrorHandler(func(err error) { got <- err }))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer c.Close()

	_ = c.RecordDispatch(context.Background(), testRecord())
	c.Flush()

	select {
	case err := <-got:
		if err == nil {
			t.Error("handler received nil error")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("write error not delivered to handler")
	}
}

func TestClose(t *testing.T) {
	_, cfg := startFake(t)
	c, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if err := c.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() after Close error = %v, want ErrNotConnected", err)
	}
	if err := c.RecordDispatch(context.Background(), testRecord()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("RecordDispatch() after Close error = %v, want ErrNotConnected", err)
	}
	c.Flush()

	var nilClient *Client
	if err := nilClient.Close(); err != nil {
		t.Errorf("Close() on nil client error = %v", err)
	}
}
