// Package service implements the request lifecycle: submissions from
// requesters, status updates from coordinators and the dashboard queries.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/JiaqinWu/CGHPI-Request-System/internal/request/audit"
	"github.com/JiaqinWu/CGHPI-Request-System/internal/request/entity"
	"github.com/JiaqinWu/CGHPI-Request-System/internal/request/events"
	"github.com/JiaqinWu/CGHPI-Request-System/internal/request/notify"
	"github.com/JiaqinWu/CGHPI-Request-System/internal/request/relay"
	"github.com/JiaqinWu/CGHPI-Request-System/internal/request/store"
	"github.com/JiaqinWu/CGHPI-Request-System/internal/request/summary"
	"go.uber.org/zap"
)

// ErrRequestNotFound is returned when no row carries the ticket.
var ErrRequestNotFound = errors.New("request not found")

// ValidationError lists every problem with an input, in form order. No side
// effect has happened when it is returned.
type ValidationError struct {
	Messages []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Messages, "; ")
}

// Cache is the read cache in front of the record store.
type Cache interface {
	Invalidate(ctx context.Context) error
}

// Dispatcher sends notification intents.
type Dispatcher interface {
	Dispatch(ctx context.Context, intents []notify.Intent) []notify.Delivery
}

// AuditLog keeps the status change history.
type AuditLog interface {
	Record(ctx context.Context, c *audit.StatusChange) error
	History(ctx context.Context, ticketID string) ([]audit.StatusChange, error)
}

// Publisher announces request changes to live dashboards.
type Publisher interface {
	Publish(eventType string, payload interface{})
}

// Renderer draws the summary document.
type Renderer func(f summary.Fields, generatedAt time.Time) ([]byte, error)

// Recipient is a coordinator who is told about new requests.
type Recipient struct {
	Email string
	Name  string
}

// File is an uploaded file waiting to be relayed.
type File struct {
	Name        string
	ContentType string
	Size        int64
	Open        func() (io.ReadCloser, error)
}

// UploadFailure is one file that could not be stored.
type UploadFailure struct {
	Destination relay.Destination `json:"destination"`
	Filename    string            `json:"filename"`
	Error       string            `json:"error"`
}

// Outcome reports the best-effort parts of an operation. The operation
// itself succeeded when an Outcome is returned with a nil error.
type Outcome struct {
	UploadFailures []UploadFailure   `json:"upload_failures,omitempty"`
	SummaryError   string            `json:"summary_error,omitempty"`
	Deliveries     []notify.Delivery `json:"deliveries"`
}

// Deps are the collaborators of the service. Cache, Audit and Events may
// be nil.
type Deps struct {
	Store        store.RecordStore
	Cache        Cache
	Relay        relay.Relay
	Render       Renderer
	Dispatcher   Dispatcher
	Audit        AuditLog
	Events       Publisher
	Coordinators []Recipient
	Options      *entity.Options
}

// RequestService runs the lifecycle operations. Mutating operations are
// serialised within the process; the record store itself has no
// concurrency token, so separate processes can still overwrite each other.
type RequestService struct {
	store        store.RecordStore
	cache        Cache
	relay        relay.Relay
	render       Renderer
	dispatcher   Dispatcher
	audit        AuditLog
	events       Publisher
	coordinators []Recipient
	options      *entity.Options
	logger       *zap.Logger
	now          func() time.Time

	mu sync.Mutex
}

// NewRequestService wires the service.
func NewRequestService(deps Deps, logger *zap.Logger) *RequestService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Render == nil {
		deps.Render = summary.Render
	}
	if deps.Options == nil {
		deps.Options = entity.DefaultOptions()
	}
	return &RequestService{
		store:        deps.Store,
		cache:        deps.Cache,
		relay:        deps.Relay,
		render:       deps.Render,
		dispatcher:   deps.Dispatcher,
		audit:        deps.Audit,
		events:       deps.Events,
		coordinators: deps.Coordinators,
		options:      deps.Options,
		logger:       logger,
		now:          time.Now,
	}
}

// Options returns the form choice catalog.
func (s *RequestService) Options() *entity.Options {
	return s.options
}

func (s *RequestService) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.Warn("Invalidate request cache failed", zap.Error(err))
	}
}

func (s *RequestService) publish(eventType string, change events.RequestChange) {
	if s.events != nil {
		s.events.Publish(eventType, change)
	}
}

func (s *RequestService) dispatch(ctx context.Context, intents []notify.Intent) []notify.Delivery {
	if len(intents) == 0 {
		return []notify.Delivery{}
	}
	if s.dispatcher == nil {
		out := make([]notify.Delivery, len(intents))
		for i, in := range intents {
			out[i] = notify.Delivery{Recipient: in.Recipient, Template: in.Template, Error: "mail disabled"}
		}
		return out
	}
	deliveries := s.dispatcher.Dispatch(ctx, intents)
	for _, d := range deliveries {
		if !d.Sent {
			s.logger.Warn("Notification not delivered",
				zap.String("recipient", d.Recipient),
				zap.String("template", d.Template),
				zap.String("error", d.Error),
			)
		}
	}
	return deliveries
}

// upload relays files one by one. A failed file is reported and skipped.
func (s *RequestService) upload(ctx context.Context, files []File, dest relay.Destination, name func(File) string) ([]string, []UploadFailure) {
	var links []string
	var failures []UploadFailure
	for _, f := range files {
		link, err := s.uploadOne(ctx, f, dest, name(f))
		if err != nil {
			s.logger.Warn("Upload failed", zap.String("file", f.Name), zap.String("destination", string(dest)), zap.Error(err))
			failures = append(failures, UploadFailure{Destination: dest, Filename: f.Name, Error: err.Error()})
			continue
		}
		links = append(links, link)
	}
	return links, failures
}

func (s *RequestService) uploadOne(ctx context.Context, f File, dest relay.Destination, filename string) (string, error) {
	if s.relay == nil {
		return "", errors.New("file storage is not configured")
	}
	if f.Open == nil {
		return "", errors.New("file has no content")
	}
	rc, err := f.Open()
	if err != nil {
		return "", fmt.Errorf("open upload: %w", err)
	}
	defer rc.Close()
	return s.relay.Store(ctx, relay.Upload{Reader: rc, Size: f.Size, Filename: filename, ContentType: f.ContentType}, dest)
}

func findTicket(rows []entity.Request, ticket string) int {
	ticket = strings.TrimSpace(ticket)
	for i, r := range rows {
		if r.TicketID == ticket {
			return i
		}
	}
	return -1
}
