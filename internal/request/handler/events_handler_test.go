package handler_test

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/JiaqinWu/CGHPI-Request-System/internal/testutil"
)

func readEvent(t *testing.T, r *bufio.Reader) (string, string) {
	t.Helper()
	var name, data string
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read stream: %v", err)
		}
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "" && name != "":
			return name, data
		}
	}
}

func TestEventStreamPushesStatusChanges(t *testing.T) {
	e := setupEnv(t)
	submit(t, e)
	token := e.coordinatorToken(t)

	srv := httptest.NewServer(e.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, "GET", srv.URL+"/api/v1/events?token="+token, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("unexpected content type %q", ct)
	}

	stream := bufio.NewReader(resp.Body)
	if name, _ := readEvent(t, stream); name != "connected" {
		t.Fatalf("expected connected event, got %q", name)
	}

	w := testutil.DoRequest(e.router, "PUT", "/api/v1/requests/GU0001/status",
		map[string]string{"status": "Declined", "message": "Out of scope"}, token)
	if w.Code != http.StatusOK {
		t.Fatalf("update: expected 200, got %d", w.Code)
	}

	name, data := readEvent(t, stream)
	if name != "request_status" {
		t.Fatalf("expected request_status, got %q", name)
	}
	if !strings.Contains(data, `"ticket_id":"GU0001"`) || !strings.Contains(data, `"status":"Declined"`) {
		t.Errorf("unexpected event data %s", data)
	}
}

func TestEventStreamRequiresCoordinator(t *testing.T) {
	e := setupEnv(t)
	w := testutil.DoRequest(e.router, "GET", "/api/v1/events?token="+e.requesterToken(t), nil, "")
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
}

func TestEventStreamOutlivesServerWriteTimeout(t *testing.T) {
	e := setupEnv(t)
	submit(t, e)
	token := e.coordinatorToken(t)

	srv := httptest.NewUnstartedServer(e.router)
	srv.Config.WriteTimeout = 300 * time.Millisecond
	srv.Start()
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, "GET", srv.URL+"/api/v1/events?token="+token, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer resp.Body.Close()

	stream := bufio.NewReader(resp.Body)
	if name, _ := readEvent(t, stream); name != "connected" {
		t.Fatalf("expected connected event, got %q", name)
	}

	time.Sleep(600 * time.Millisecond)

	w := testutil.DoRequest(e.router, "PUT", "/api/v1/requests/GU0001/status",
		map[string]string{"status": "Completed", "message": "Sent"}, token)
	if w.Code != http.StatusOK {
		t.Fatalf("update: expected 200, got %d", w.Code)
	}

	name, data := readEvent(t, stream)
	if name != "request_status" {
		t.Fatalf("expected request_status after the write timeout, got %q", name)
	}
	if !strings.Contains(data, `"status":"Completed"`) {
		t.Errorf("unexpected event data %s", data)
	}
}

func TestEventStreamUnregistersOnDisconnect(t *testing.T) {
	e := setupEnv(t)
	token := e.coordinatorToken(t)

	srv := httptest.NewServer(e.router)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	req, _ := http.NewRequestWithContext(ctx, "GET", srv.URL+"/api/v1/events?token="+token, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if name, _ := readEvent(t, bufio.NewReader(resp.Body)); name != "connected" {
		t.Fatalf("expected connected event, got %q", name)
	}
	if n := e.hub.Count(); n != 1 {
		t.Fatalf("expected 1 client, got %d", n)
	}

	cancel()
	resp.Body.Close()

	deadline := time.Now().Add(5 * time.Second)
	for e.hub.Count() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("client still registered after disconnect")
		}
		time.Sleep(20 * time.Millisecond)
	}
}
