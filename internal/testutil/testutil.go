// Package testutil holds helpers shared by the HTTP tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/JiaqinWu/CGHPI-Request-System/internal/auth"
	"github.com/gin-gonic/gin"
)

// TokenSecret signs every token issued in tests.
const TokenSecret = "requestdesk-test-secret"

// SetupRouter creates a gin router in test mode.
func SetupRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(gin.Recovery())
	return r
}

// NewTokens returns a token manager with an in-memory revocation list.
func NewTokens() *auth.TokenManager {
	return auth.NewTokenManager(auth.TokenConfig{Secret: TokenSecret, TTL: time.Hour}, auth.NewMemoryRevocations())
}

// IssueToken signs a token for s.
func IssueToken(t *testing.T, tokens *auth.TokenManager, s auth.Session) string {
	t.Helper()
	tok, err := tokens.Issue(s)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return tok.Value
}

// RequesterSession is an anonymous requester.
func RequesterSession() auth.Session {
	return auth.Session{Role: auth.RoleRequester}
}

// CoordinatorSession is a logged-in coordinator.
func CoordinatorSession(email, name string) auth.Session {
	return auth.Session{Authenticated: true, Role: auth.RoleCoordinator, UserEmail: email, UserName: name}
}

// DoRequest executes a JSON request against the router.
func DoRequest(r http.Handler, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(jsonBytes)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, _ := http.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// FormFile is one file part of a multipart body.
type FormFile struct {
	Field    string
	Filename string
	Content  string
}

// DoMultipart executes a multipart/form-data request against the router.
func DoMultipart(t *testing.T, r http.Handler, method, path string, fields map[string]string, files []FormFile, token string) *httptest.ResponseRecorder {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			t.Fatalf("write field %s: %v", k, err)
		}
	}
	for _, f := range files {
		part, err := writer.CreateFormFile(f.Field, f.Filename)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := io.WriteString(part, f.Content); err != nil {
			t.Fatalf("write form file: %v", err)
		}
	}
	writer.Close()

	req, _ := http.NewRequest(method, path, body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// ParseResponse decodes the JSON envelope of a reply.
func ParseResponse(w *httptest.ResponseRecorder) map[string]interface{} {
	var result map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &result)
	return result
}
