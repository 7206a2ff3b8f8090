package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/JiaqinWu/CGHPI-Request-System/internal/auth"
	"github.com/JiaqinWu/CGHPI-Request-System/internal/request/audit"
	"github.com/JiaqinWu/CGHPI-Request-System/internal/request/events"
	"github.com/JiaqinWu/CGHPI-Request-System/internal/request/handler"
	"github.com/JiaqinWu/CGHPI-Request-System/internal/request/notify"
	"github.com/JiaqinWu/CGHPI-Request-System/internal/request/relay"
	"github.com/JiaqinWu/CGHPI-Request-System/internal/request/service"
	"github.com/JiaqinWu/CGHPI-Request-System/internal/request/store"
	"github.com/JiaqinWu/CGHPI-Request-System/internal/testutil"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
)

type sentMail struct {
	to      string
	subject string
}

type recordingSender struct {
	mu   sync.Mutex
	sent []sentMail
}

func (s *recordingSender) Send(ctx context.Context, to, subject, body string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentMail{to: to, subject: subject})
	return true
}

type testEnv struct {
	router *gin.Engine
	hub    *events.Hub
	tokens *auth.TokenManager
	store  *store.WorkbookStore
	mail   *recordingSender
	files  string
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()

	db, err := audit.Open(audit.Config{Driver: "sqlite", DSN: fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())})
	if err != nil {
		t.Fatalf("open audit db: %v", err)
	}

	hash, err := auth.HashPassword("s3cret")
	if err != nil {
		t.Fatal(err)
	}
	directory := auth.NewDirectory([]auth.Coordinator{
		{Email: "casey@example.org", Name: "Casey", PasswordHash: hash, Notify: true},
	})
	tokens := testutil.NewTokens()

	wb := store.NewWorkbookStore(filepath.Join(dir, "requests.xlsx"), nil)
	files := filepath.Join(dir, "files")
	mail := &recordingSender{}

	cached := store.NewCachedStore(wb, store.NewMemoryCache(), 0, nil)
	hub := events.NewHub(nil)
	svc := service.NewRequestService(service.Deps{
		Store:        cached,
		Cache:        cached,
		Relay:        relay.NewDiskRelay(files, "http://files.test/files", nil, nil),
		Dispatcher:   notify.NewDispatcher(mail, notify.DispatcherConfig{AppURL: "http://desk.test"}, nil),
		Audit:        audit.NewRepository(db),
		Events:       hub,
		Coordinators: []service.Recipient{{Email: "casey@example.org", Name: "Casey"}},
	}, nil)

	r := testutil.SetupRouter()
	handler.RegisterRoutes(r, handler.NewHandlers(svc, auth.NewService(tokens, directory), hub), tokens)
	return &testEnv{router: r, hub: hub, tokens: tokens, store: wb, mail: mail, files: files}
}

func (e *testEnv) requesterToken(t *testing.T) string {
	return testutil.IssueToken(t, e.tokens, testutil.RequesterSession())
}

func (e *testEnv) coordinatorToken(t *testing.T) string {
	return testutil.IssueToken(t, e.tokens, testutil.CoordinatorSession("casey@example.org", "Casey"))
}

func validPayload() map[string]interface{} {
	return map[string]interface{}{
		"project_grant":      "Cross-Center",
		"name":               "Robin Park",
		"email":              "robin@example.org",
		"request_type":       "New Product",
		"support_types":      []string{"Writing"},
		"primary_purposes":   []string{"Inform"},
		"target_audiences":   []string{"HRSA"},
		"audience_action":    "Register for the webinar",
		"requested_due_date": "2025-07-01",
		"driver_deadline":    "Conference date",
		"grant_deliverable":  "Yes",
		"priority_level":     "High",
		"key_points":         "Key dates and speakers",
		"subject_matter":     "Program leads",
		"share_externally":   "Yes",
		"sensitive_content":  []string{"None of the above"},
		"permission_secured": "Yes",
		"estimated_length":   "1 page",
		"design_support":     "Light",
		"live_locations":     []string{"Website"},
	}
}

func submit(t *testing.T, e *testEnv) map[string]interface{} {
	t.Helper()
	w := testutil.DoRequest(e.router, "POST", "/api/v1/requests", validPayload(), e.requesterToken(t))
	if w.Code != http.StatusCreated {
		t.Fatalf("submit: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	return testutil.ParseResponse(w)["data"].(map[string]interface{})
}

func TestOptionsArePublic(t *testing.T) {
	e := setupEnv(t)
	w := testutil.DoRequest(e.router, "GET", "/api/v1/options", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if testutil.ParseResponse(w)["data"] == nil {
		t.Error("expected option catalog")
	}
}

func TestSessionFlow(t *testing.T) {
	e := setupEnv(t)

	w := testutil.DoRequest(e.router, "POST", "/api/v1/session/role", map[string]string{"role": "requester"}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("select role: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	data := testutil.ParseResponse(w)["data"].(map[string]interface{})
	requesterToken := data["token"].(string)

	w = testutil.DoRequest(e.router, "POST", "/api/v1/session/login",
		map[string]string{"email": "casey@example.org", "password": "wrong"}, requesterToken)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("bad login: expected 401, got %d", w.Code)
	}
	if msg := testutil.ParseResponse(w)["message"]; msg != "Invalid credentials or role mismatch." {
		t.Errorf("unexpected login message %v", msg)
	}

	w = testutil.DoRequest(e.router, "POST", "/api/v1/session/login",
		map[string]string{"email": "Casey@Example.org", "password": "s3cret"}, requesterToken)
	if w.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	coordToken := testutil.ParseResponse(w)["data"].(map[string]interface{})["token"].(string)

	// The requester token was ended by the login.
	w = testutil.DoRequest(e.router, "GET", "/api/v1/session", nil, requesterToken)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("old token: expected 401, got %d", w.Code)
	}

	w = testutil.DoRequest(e.router, "GET", "/api/v1/session", nil, coordToken)
	if w.Code != http.StatusOK {
		t.Fatalf("current: expected 200, got %d", w.Code)
	}
	session := testutil.ParseResponse(w)["data"].(map[string]interface{})
	if session["role"] != "Coordinator" || session["authenticated"] != true {
		t.Errorf("unexpected session %v", session)
	}

	w = testutil.DoRequest(e.router, "POST", "/api/v1/session/logout", nil, coordToken)
	if w.Code != http.StatusOK {
		t.Fatalf("logout: expected 200, got %d", w.Code)
	}
	w = testutil.DoRequest(e.router, "GET", "/api/v1/requests", nil, coordToken)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("after logout: expected 401, got %d", w.Code)
	}
}

func TestSelectRoleRejectsUnknownRole(t *testing.T) {
	e := setupEnv(t)
	w := testutil.DoRequest(e.router, "POST", "/api/v1/session/role", map[string]string{"role": "admin"}, "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestCreateRequestJSON(t *testing.T) {
	e := setupEnv(t)
	data := submit(t, e)

	req := data["request"].(map[string]interface{})
	if req["ticket_id"] != "GU0001" {
		t.Errorf("expected GU0001, got %v", req["ticket_id"])
	}
	if req["status"] != "Submitted" {
		t.Errorf("expected Submitted, got %v", req["status"])
	}
	if link, _ := req["summary_link"].(string); !strings.HasPrefix(link, "http://files.test/files/") {
		t.Errorf("expected summary link, got %v", req["summary_link"])
	}

	rows, err := e.store.LoadAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].TicketID != "GU0001" {
		t.Fatalf("expected one stored row, got %+v", rows)
	}

	// One coordinator notice plus the requester confirmation.
	if len(e.mail.sent) != 2 {
		t.Errorf("expected 2 mails, got %d", len(e.mail.sent))
	}
}

func TestCreateRequestMultipart(t *testing.T) {
	e := setupEnv(t)
	payload, _ := json.Marshal(validPayload())

	w := testutil.DoMultipart(t, e.router, "POST", "/api/v1/requests",
		map[string]string{"payload": string(payload)},
		[]testutil.FormFile{
			{Field: "background", Filename: "brief.txt", Content: "background"},
			{Field: "draft", Filename: "draft one.docx", Content: "draft"},
			{Field: "draft", Filename: "draft two.docx", Content: "draft 2"},
		}, e.requesterToken(t))
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	req := testutil.ParseResponse(w)["data"].(map[string]interface{})["request"].(map[string]interface{})
	if links := req["background_links"].([]interface{}); len(links) != 1 {
		t.Errorf("expected 1 background link, got %v", links)
	}
	if links := req["draft_links"].([]interface{}); len(links) != 2 {
		t.Errorf("expected 2 draft links, got %v", links)
	}
}

func TestCreateRequestValidation(t *testing.T) {
	e := setupEnv(t)
	payload := validPayload()
	delete(payload, "name")
	payload["email"] = "not-an-email"

	w := testutil.DoRequest(e.router, "POST", "/api/v1/requests", payload, e.requesterToken(t))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	data := testutil.ParseResponse(w)["data"].(map[string]interface{})
	errs := data["errors"].([]interface{})
	if len(errs) != 2 {
		t.Fatalf("expected 2 errors, got %v", errs)
	}
	if errs[0] != "Name is required." {
		t.Errorf("unexpected first error %v", errs[0])
	}
	if len(e.mail.sent) != 0 {
		t.Error("no mail should be sent for an invalid form")
	}
}

func TestCreateRequiresSession(t *testing.T) {
	e := setupEnv(t)
	w := testutil.DoRequest(e.router, "POST", "/api/v1/requests", validPayload(), "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestDashboardRequiresCoordinator(t *testing.T) {
	e := setupEnv(t)
	token := e.requesterToken(t)
	for _, path := range []string{"/api/v1/requests", "/api/v1/dashboard/metrics", "/api/v1/requests/export"} {
		w := testutil.DoRequest(e.router, "GET", path, nil, token)
		if w.Code != http.StatusForbidden {
			t.Errorf("%s: expected 403, got %d", path, w.Code)
		}
	}
}

func TestListGetAndMetrics(t *testing.T) {
	e := setupEnv(t)
	submit(t, e)
	submit(t, e)
	token := e.coordinatorToken(t)

	w := testutil.DoRequest(e.router, "GET", "/api/v1/requests", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", w.Code)
	}
	data := testutil.ParseResponse(w)["data"].(map[string]interface{})
	if data["total"] != float64(2) {
		t.Errorf("expected 2 requests, got %v", data["total"])
	}

	w = testutil.DoRequest(e.router, "GET", "/api/v1/requests?status=Declined", nil, token)
	data = testutil.ParseResponse(w)["data"].(map[string]interface{})
	if data["total"] != float64(0) {
		t.Errorf("expected no declined requests, got %v", data["total"])
	}

	w = testutil.DoRequest(e.router, "GET", "/api/v1/requests?status=Bogus", nil, token)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad filter: expected 400, got %d", w.Code)
	}

	w = testutil.DoRequest(e.router, "GET", "/api/v1/requests/GU0002", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", w.Code)
	}
	w = testutil.DoRequest(e.router, "GET", "/api/v1/requests/GU0404", nil, token)
	if w.Code != http.StatusNotFound {
		t.Errorf("missing: expected 404, got %d", w.Code)
	}

	w = testutil.DoRequest(e.router, "GET", "/api/v1/dashboard/metrics", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("metrics: expected 200, got %d", w.Code)
	}
	m := testutil.ParseResponse(w)["data"].(map[string]interface{})
	if m["total"] != float64(2) || m["submitted"] != float64(2) {
		t.Errorf("unexpected metrics %v", m)
	}
}

func TestUpdateStatus(t *testing.T) {
	e := setupEnv(t)
	submit(t, e)
	token := e.coordinatorToken(t)
	e.mail.sent = nil

	w := testutil.DoRequest(e.router, "PUT", "/api/v1/requests/GU0001/status",
		map[string]string{"status": "In Progress"}, token)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing message: expected 400, got %d", w.Code)
	}

	w = testutil.DoRequest(e.router, "PUT", "/api/v1/requests/GU0001/status",
		map[string]string{"status": "In Progress", "message": "Drafting now"}, token)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = testutil.DoMultipart(t, e.router, "PUT", "/api/v1/requests/GU0001/status",
		map[string]string{"status": "Completed", "message": "Final files attached"},
		[]testutil.FormFile{{Field: "outputs", Filename: "final.pdf", Content: "pdf"}}, token)
	if w.Code != http.StatusOK {
		t.Fatalf("complete: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	req := testutil.ParseResponse(w)["data"].(map[string]interface{})["request"].(map[string]interface{})
	if req["status"] != "Completed" {
		t.Errorf("expected Completed, got %v", req["status"])
	}
	if links := req["output_links"].([]interface{}); len(links) != 1 {
		t.Errorf("expected 1 output link, got %v", links)
	}
	if req["closed_date"] == nil {
		t.Error("expected closed date")
	}

	if len(e.mail.sent) != 2 {
		t.Fatalf("expected 2 status mails, got %d", len(e.mail.sent))
	}
	if e.mail.sent[1].to != "robin@example.org" {
		t.Errorf("expected mail to requester, got %s", e.mail.sent[1].to)
	}

	w = testutil.DoRequest(e.router, "GET", "/api/v1/requests/GU0001/history", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("history: expected 200, got %d", w.Code)
	}
	items := testutil.ParseResponse(w)["data"].(map[string]interface{})["items"].([]interface{})
	if len(items) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(items))
	}

	w = testutil.DoRequest(e.router, "PUT", "/api/v1/requests/GU0404/status",
		map[string]string{"status": "Declined", "message": "No"}, token)
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown ticket: expected 404, got %d", w.Code)
	}
}

func TestExportAndRefresh(t *testing.T) {
	e := setupEnv(t)
	submit(t, e)
	token := e.coordinatorToken(t)

	w := testutil.DoRequest(e.router, "POST", "/api/v1/cache/refresh", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("refresh: expected 200, got %d", w.Code)
	}

	w = testutil.DoRequest(e.router, "GET", "/api/v1/requests/export", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("export: expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Header().Get("Content-Disposition"), ".xlsx") {
		t.Errorf("unexpected disposition %q", w.Header().Get("Content-Disposition"))
	}
	f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	if err != nil {
		t.Fatalf("open export: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows(service.ExportSheet)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 || rows[1][0] != "GU0001" {
		t.Errorf("unexpected export rows %v", rows)
	}
}

func TestErrorStatusFromCode(t *testing.T) {
	r := testutil.SetupRouter()
	r.GET("/nf", func(c *gin.Context) { handler.NotFound(c, "gone") })
	r.GET("/bad", func(c *gin.Context) { handler.Error(c, 7, "odd") })

	if w := testutil.DoRequest(r, "GET", "/nf", nil, ""); w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
	if w := testutil.DoRequest(r, "GET", "/bad", nil, ""); w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", w.Code)
	}
}

func TestStoreFailureIsServerError(t *testing.T) {
	tokens := testutil.NewTokens()
	// A directory where the workbook should be cannot be opened.
	wb := store.NewWorkbookStore(t.TempDir(), nil, store.WithRetry(1, 0))
	svc := service.NewRequestService(service.Deps{Store: wb}, nil)

	r := testutil.SetupRouter()
	handler.RegisterRoutes(r, handler.NewHandlers(svc, auth.NewService(tokens, auth.NewDirectory(nil)), nil), tokens)

	token := testutil.IssueToken(t, tokens, testutil.CoordinatorSession("casey@example.org", "Casey"))
	w := testutil.DoRequest(r, "GET", "/api/v1/requests", nil, token)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d: %s", w.Code, w.Body.String())
	}
	if code := testutil.ParseResponse(w)["code"]; code != float64(50001) {
		t.Errorf("expected code 50001, got %v", code)
	}

	w = testutil.DoRequest(r, "GET", "/api/v1/events", nil, token)
	if w.Code != http.StatusNotFound {
		t.Errorf("events without a hub: expected 404, got %d", w.Code)
	}
}
