package handler

import (
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/JiaqinWu/CGHPI-Request-System/internal/middleware"
	"github.com/JiaqinWu/CGHPI-Request-System/internal/request/service"
	"github.com/gin-gonic/gin"
)

const maxUploadMemory = 32 << 20

type RequestHandler struct {
	svc *service.RequestService
}

func NewRequestHandler(svc *service.RequestService) *RequestHandler {
	return &RequestHandler{svc: svc}
}

// Options returns the choice catalog of the request form.
// GET /api/v1/options
func (h *RequestHandler) Options(c *gin.Context) {
	Success(c, h.svc.Options())
}

// Create submits a request. The body is either JSON (no files) or a
// multipart form with the JSON in "payload" and files under "background"
// and "draft".
// POST /api/v1/requests
func (h *RequestHandler) Create(c *gin.Context) {
	var form service.SubmitForm
	var files service.Attachments

	if isMultipart(c) {
		mf, err := parseMultipart(c)
		if err != nil {
			BadRequest(c, "cannot read upload: "+err.Error())
			return
		}
		payload := mf.Value["payload"]
		if len(payload) == 0 {
			BadRequest(c, "payload is required")
			return
		}
		if err := json.Unmarshal([]byte(payload[0]), &form); err != nil {
			BadRequest(c, "invalid payload: "+err.Error())
			return
		}
		files.Background = toFiles(mf.File["background"])
		files.Drafts = toFiles(mf.File["draft"])
	} else if err := c.ShouldBindJSON(&form); err != nil {
		BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	req, outcome, err := h.svc.Create(c.Request.Context(), form, files)
	if err != nil {
		serviceError(c, "submit request", err)
		return
	}
	Created(c, gin.H{"request": req, "outcome": outcome})
}

// List returns the requests, optionally filtered by status.
// GET /api/v1/requests?status=
func (h *RequestHandler) List(c *gin.Context) {
	items, err := h.svc.List(c.Request.Context(), c.Query("status"))
	if err != nil {
		serviceError(c, "list requests", err)
		return
	}
	Success(c, gin.H{"items": items, "total": len(items)})
}

// Get returns one request.
// GET /api/v1/requests/:ticket
func (h *RequestHandler) Get(c *gin.Context) {
	req, err := h.svc.Get(c.Request.Context(), c.Param("ticket"))
	if err != nil {
		serviceError(c, "get request", err)
		return
	}
	Success(c, req)
}

// History returns the status changes of one request.
// GET /api/v1/requests/:ticket/history
func (h *RequestHandler) History(c *gin.Context) {
	items, err := h.svc.History(c.Request.Context(), c.Param("ticket"))
	if err != nil {
		serviceError(c, "request history", err)
		return
	}
	Success(c, gin.H{"items": items})
}

type statusRequest struct {
	Status  string `json:"status" form:"status"`
	Message string `json:"message" form:"message"`
}

// UpdateStatus changes the status of one request. Output files are sent as
// multipart "outputs".
// PUT /api/v1/requests/:ticket/status
func (h *RequestHandler) UpdateStatus(c *gin.Context) {
	var body statusRequest
	var outputs []service.File

	if isMultipart(c) {
		mf, err := parseMultipart(c)
		if err != nil {
			BadRequest(c, "cannot read upload: "+err.Error())
			return
		}
		body.Status = first(mf.Value["status"])
		body.Message = first(mf.Value["message"])
		outputs = toFiles(mf.File["outputs"])
	} else if err := c.ShouldBindJSON(&body); err != nil {
		BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	s, _ := middleware.GetSession(c)
	req, outcome, err := h.svc.UpdateStatus(c.Request.Context(), service.StatusUpdate{
		Ticket:  c.Param("ticket"),
		Status:  body.Status,
		Message: body.Message,
		Outputs: outputs,
		Actor:   s.UserEmail,
	})
	if err != nil {
		serviceError(c, "update status", err)
		return
	}
	Success(c, gin.H{"request": req, "outcome": outcome})
}

func isMultipart(c *gin.Context) bool {
	return strings.HasPrefix(c.ContentType(), "multipart/form-data")
}

func parseMultipart(c *gin.Context) (*multipart.Form, error) {
	if err := c.Request.ParseMultipartForm(maxUploadMemory); err != nil {
		return nil, err
	}
	if c.Request.MultipartForm == nil {
		return nil, http.ErrNotMultipart
	}
	return c.Request.MultipartForm, nil
}

func toFiles(headers []*multipart.FileHeader) []service.File {
	files := make([]service.File, 0, len(headers))
	for _, fh := range headers {
		fh := fh
		files = append(files, service.File{
			Name:        fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Size:        fh.Size,
			Open: func() (io.ReadCloser, error) {
				return fh.Open()
			},
		})
	}
	return files
}

func first(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}
