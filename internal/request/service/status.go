package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/JiaqinWu/CGHPI-Request-System/internal/request/audit"
	"github.com/JiaqinWu/CGHPI-Request-System/internal/request/entity"
	"github.com/JiaqinWu/CGHPI-Request-System/internal/request/events"
	"github.com/JiaqinWu/CGHPI-Request-System/internal/request/notify"
	"github.com/JiaqinWu/CGHPI-Request-System/internal/request/relay"
	"go.uber.org/zap"
)

// StatusUpdate is a coordinator's change to one request.
type StatusUpdate struct {
	Ticket  string
	Status  string
	Message string
	// Outputs are stored only when Status is Completed.
	Outputs []File
	Actor   string
}

func (u StatusUpdate) validate() []string {
	var errs []string
	if !entity.IsValidStatus(u.Status) {
		errs = append(errs, fmt.Sprintf("Status must be one of %s.", strings.Join(entity.Statuses, ", ")))
	} else if entity.RequiresMessage(u.Status) && strings.TrimSpace(u.Message) == "" {
		errs = append(errs, "Please add a message for this status update.")
	}
	if strings.TrimSpace(u.Ticket) == "" {
		errs = append(errs, "Ticket ID is required.")
	}
	return errs
}

// UpdateStatus applies a status change, stores output files for Completed,
// rewrites the table and tells the requester. Nothing is uploaded or
// written when the update is rejected.
func (s *RequestService) UpdateStatus(ctx context.Context, u StatusUpdate) (*entity.Request, *Outcome, error) {
	if errs := u.validate(); len(errs) > 0 {
		return nil, nil, &ValidationError{Messages: errs}
	}
	u.Message = strings.TrimSpace(u.Message)

	s.mu.Lock()
	req, from, outcome, err := s.updateStatus(ctx, u)
	s.mu.Unlock()
	if err != nil {
		return nil, nil, err
	}
	s.publish(events.TypeStatusChanged, events.RequestChange{Ticket: req.TicketID, From: from, Status: req.Status, Actor: u.Actor})

	var intents []notify.Intent
	if tpl, ok := notify.StatusTemplate(req.Status); ok && req.Email != "" {
		intents = append(intents, notify.Intent{
			Recipient: req.Email,
			Template:  tpl,
			Data:      notify.Data{Request: *req, RecipientName: req.Name, Message: req.StatusMessage},
		})
	}
	outcome.Deliveries = s.dispatch(ctx, intents)
	return req, outcome, nil
}

func (s *RequestService) updateStatus(ctx context.Context, u StatusUpdate) (*entity.Request, string, *Outcome, error) {
	rows, err := s.store.LoadAll(ctx)
	if err != nil {
		return nil, "", nil, fmt.Errorf("update status: %w", err)
	}
	idx := findTicket(rows, u.Ticket)
	if idx < 0 {
		return nil, "", nil, fmt.Errorf("update status %s: %w", u.Ticket, ErrRequestNotFound)
	}

	r := &rows[idx]
	from := entity.EffectiveStatus(r.Status)
	if !entity.CanTransition(from, u.Status) {
		return nil, "", nil, &ValidationError{Messages: []string{fmt.Sprintf("Cannot move a request from %s to %s.", from, u.Status)}}
	}

	now := s.now()
	outcome := &Outcome{}
	r.Status = u.Status
	r.StatusMessage = u.Message

	stored := 0
	if u.Status == entity.StatusCompleted {
		r.ClosedDate = entity.Date(now)
		links, failures := s.upload(ctx, u.Outputs, relay.DestOutput, func(f File) string {
			return relay.OutputName(r.TicketID, f.Name, now)
		})
		r.OutputLinks = append(r.OutputLinks, links...)
		outcome.UploadFailures = failures
		stored = len(links)
	} else if len(u.Outputs) > 0 {
		s.logger.Debug("Output files ignored for non-completed status",
			zap.String("ticket", r.TicketID), zap.String("status", u.Status), zap.Int("files", len(u.Outputs)))
	}

	if err := s.store.WriteAll(ctx, rows); err != nil {
		return nil, "", nil, fmt.Errorf("update status %s: %w", r.TicketID, err)
	}
	s.invalidate(ctx)
	s.record(ctx, r.TicketID, from, u, stored, now)

	s.logger.Info("Request status changed",
		zap.String("ticket", r.TicketID),
		zap.String("from", from),
		zap.String("to", u.Status),
		zap.String("operator", u.Actor),
	)
	out := r.Clone()
	return &out, from, outcome, nil
}

func (s *RequestService) record(ctx context.Context, ticket, from string, u StatusUpdate, outputs int, at time.Time) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, &audit.StatusChange{
		TicketID:   ticket,
		FromStatus: from,
		ToStatus:   u.Status,
		Message:    u.Message,
		Outputs:    outputs,
		Operator:   u.Actor,
		CreatedAt:  at,
	})
	if err != nil {
		s.logger.Warn("Record status change failed", zap.String("ticket", ticket), zap.Error(err))
	}
}
