package service

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/JiaqinWu/CGHPI-Request-System/internal/request/audit"
	"github.com/JiaqinWu/CGHPI-Request-System/internal/request/entity"
	"github.com/JiaqinWu/CGHPI-Request-System/internal/request/store"
)

// ExportSheet is the worksheet name of an export.
const ExportSheet = "Communication"

// Metrics are the dashboard counters. Each counts distinct tickets.
type Metrics struct {
	Total      int `json:"total"`
	Submitted  int `json:"submitted"`
	InProgress int `json:"in_progress"`
	Declined   int `json:"declined"`
	Completed  int `json:"completed"`
	Last30Days int `json:"last_30_days"`
}

// List returns the requests matching filter, newest submission first.
// Filter is All (or empty) or one of the statuses; a blank status counts as
// Submitted.
func (s *RequestService) List(ctx context.Context, filter string) ([]entity.Request, error) {
	if filter != "" && filter != entity.StatusFilterAll && !entity.IsValidStatus(filter) {
		return nil, &ValidationError{Messages: []string{fmt.Sprintf("Unknown status filter %q.", filter)}}
	}
	rows, err := s.store.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}

	out := make([]entity.Request, 0, len(rows))
	for _, r := range rows {
		if filter == "" || filter == entity.StatusFilterAll || entity.EffectiveStatus(r.Status) == filter {
			out = append(out, r)
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func sortNewestFirst(rows []entity.Request) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i].SubmitDate, rows[j].SubmitDate
		switch {
		case a != nil && b == nil:
			return true
		case a == nil && b != nil:
			return false
		case a != nil && b != nil && !a.Equal(*b):
			return a.After(*b)
		}
		na, _ := entity.TicketSequence(rows[i].TicketID)
		nb, _ := entity.TicketSequence(rows[j].TicketID)
		return na > nb
	})
}

// Get returns one request.
func (s *RequestService) Get(ctx context.Context, ticket string) (*entity.Request, error) {
	rows, err := s.store.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("get request: %w", err)
	}
	idx := findTicket(rows, ticket)
	if idx < 0 {
		return nil, fmt.Errorf("get request %s: %w", ticket, ErrRequestNotFound)
	}
	r := rows[idx].Clone()
	return &r, nil
}

// Metrics counts requests in total, per status and submitted in the 30
// days before now.
func (s *RequestService) Metrics(ctx context.Context) (*Metrics, error) {
	rows, err := s.store.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("dashboard metrics: %w", err)
	}
	since := s.now().Add(-30 * 24 * time.Hour)

	sets := map[string]map[string]bool{}
	add := func(key, ticket string) {
		if sets[key] == nil {
			sets[key] = map[string]bool{}
		}
		sets[key][ticket] = true
	}
	for _, r := range rows {
		if r.TicketID == "" {
			continue
		}
		add("total", r.TicketID)
		add(entity.EffectiveStatus(r.Status), r.TicketID)
		if r.SubmitDate != nil && !r.SubmitDate.Before(since) {
			add("recent", r.TicketID)
		}
	}
	return &Metrics{
		Total:      len(sets["total"]),
		Submitted:  len(sets[entity.StatusSubmitted]),
		InProgress: len(sets[entity.StatusInProgress]),
		Declined:   len(sets[entity.StatusDeclined]),
		Completed:  len(sets[entity.StatusCompleted]),
		Last30Days: len(sets["recent"]),
	}, nil
}

// History returns the recorded status changes of a ticket, oldest first.
func (s *RequestService) History(ctx context.Context, ticket string) ([]audit.StatusChange, error) {
	if _, err := s.Get(ctx, ticket); err != nil {
		return nil, err
	}
	if s.audit == nil {
		return []audit.StatusChange{}, nil
	}
	items, err := s.audit.History(ctx, ticket)
	if err != nil {
		return nil, fmt.Errorf("request history: %w", err)
	}
	return items, nil
}

// RefreshCache drops the cached table so the next read goes to the store.
func (s *RequestService) RefreshCache(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		return fmt.Errorf("refresh cache: %w", err)
	}
	return nil
}

// Export writes the whole table as an .xlsx workbook.
func (s *RequestService) Export(ctx context.Context, w io.Writer) error {
	rows, err := s.store.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("export requests: %w", err)
	}
	if err := store.WriteWorkbook(w, ExportSheet, rows); err != nil {
		return fmt.Errorf("export requests: %w", err)
	}
	return nil
}
