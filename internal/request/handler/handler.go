package handler

import (
	"errors"

	"github.com/JiaqinWu/CGHPI-Request-System/internal/auth"
	"github.com/JiaqinWu/CGHPI-Request-System/internal/request/events"
	"github.com/JiaqinWu/CGHPI-Request-System/internal/request/service"
	"github.com/JiaqinWu/CGHPI-Request-System/internal/request/store"
	"github.com/gin-gonic/gin"
)

// Handlers groups the HTTP handlers.
type Handlers struct {
	Session   *SessionHandler
	Request   *RequestHandler
	Dashboard *DashboardHandler
	Events    *EventsHandler
}

// NewHandlers builds every handler. A nil hub disables the event stream.
func NewHandlers(svc *service.RequestService, sessions *auth.Service, hub *events.Hub) *Handlers {
	return &Handlers{
		Session:   NewSessionHandler(sessions),
		Request:   NewRequestHandler(svc),
		Dashboard: NewDashboardHandler(svc),
		Events:    NewEventsHandler(hub),
	}
}

// Response is the envelope of every JSON reply.
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Success replies 200.
func Success(c *gin.Context, data interface{}) {
	c.JSON(200, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// Created replies 201.
func Created(c *gin.Context, data interface{}) {
	c.JSON(201, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// Error replies with an application code; the HTTP status is code/100.
func Error(c *gin.Context, code int, message string) {
	statusCode := code / 100
	if statusCode < 100 || statusCode > 599 {
		statusCode = 500
	}
	c.JSON(statusCode, Response{
		Code:    code,
		Message: message,
	})
}

func BadRequest(c *gin.Context, message string) {
	Error(c, 40000, message)
}

func Unauthorized(c *gin.Context, message string) {
	Error(c, 40100, message)
}

func Forbidden(c *gin.Context, message string) {
	Error(c, 40300, message)
}

func NotFound(c *gin.Context, message string) {
	Error(c, 40400, message)
}

func InternalError(c *gin.Context, message string) {
	Error(c, 50000, message)
}

// ValidationFailed replies 400 with the list of messages under data.errors.
func ValidationFailed(c *gin.Context, messages []string) {
	c.JSON(400, Response{
		Code:    40001,
		Message: "validation failed",
		Data:    gin.H{"errors": messages},
	})
}

// serviceError maps a service error to a reply.
func serviceError(c *gin.Context, action string, err error) {
	var verr *service.ValidationError
	var rerr *store.ReadError
	var werr *store.WriteError
	switch {
	case errors.As(err, &verr):
		ValidationFailed(c, verr.Messages)
	case errors.Is(err, service.ErrRequestNotFound):
		NotFound(c, "Request not found")
	case errors.As(err, &rerr):
		Error(c, 50001, action+": could not read requests: "+rerr.Err.Error())
	case errors.As(err, &werr):
		Error(c, 50002, action+": could not save requests: "+werr.Err.Error())
	default:
		InternalError(c, action+": "+err.Error())
	}
}
