package service

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/JiaqinWu/CGHPI-Request-System/internal/request/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func dated(ticket, status string, submit *time.Time) entity.Request {
	return entity.Request{TicketID: ticket, Status: status, SubmitDate: submit}
}

func day(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.Local)
	return &t
}

func TestListFiltersAndSorts(t *testing.T) {
	f := newFixture(t,
		dated("GU0001", entity.StatusCompleted, day(2025, 5, 1)),
		dated("GU0002", "", day(2025, 6, 2)),
		dated("GU0003", entity.StatusSubmitted, nil),
		dated("GU0004", entity.StatusSubmitted, day(2025, 6, 2)),
		dated("GU0005", entity.StatusDeclined, day(2025, 6, 9)),
	)
	ctx := context.Background()

	all, err := f.svc.List(ctx, entity.StatusFilterAll)
	require.NoError(t, err)
	var ids []string
	for _, r := range all {
		ids = append(ids, r.TicketID)
	}
	assert.Equal(t, []string{"GU0005", "GU0004", "GU0002", "GU0001", "GU0003"}, ids)

	subs, err := f.svc.List(ctx, entity.StatusSubmitted)
	require.NoError(t, err)
	require.Len(t, subs, 3)
	assert.Equal(t, "GU0004", subs[0].TicketID)

	_, err = f.svc.List(ctx, "Archived")
	var verr *ValidationError
	assert.True(t, errors.As(err, &verr))
}

func TestMetrics(t *testing.T) {
	f := newFixture(t,
		dated("GU0001", entity.StatusCompleted, day(2025, 4, 1)),
		dated("GU0002", entity.StatusInProgress, day(2025, 5, 20)),
		dated("GU0003", "", day(2025, 6, 9)),
		dated("GU0003", "", day(2025, 6, 9)),
		dated("GU0004", entity.StatusDeclined, nil),
		dated("", entity.StatusDeclined, day(2025, 6, 9)),
	)

	m, err := f.svc.Metrics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Metrics{Total: 4, Submitted: 1, InProgress: 1, Declined: 1, Completed: 1, Last30Days: 2}, *m)
}

func TestGetAndHistory(t *testing.T) {
	f := newFixture(t, submitted("GU0001"))
	ctx := context.Background()

	_, err := f.svc.Get(ctx, "GU0002")
	assert.ErrorIs(t, err, ErrRequestNotFound)

	_, _, err = f.svc.UpdateStatus(ctx, StatusUpdate{Ticket: "GU0001", Status: entity.StatusInProgress, Message: "started"})
	require.NoError(t, err)
	_, _, err = f.svc.UpdateStatus(ctx, StatusUpdate{Ticket: "GU0001", Status: entity.StatusCompleted, Message: "done"})
	require.NoError(t, err)

	got, err := f.svc.Get(ctx, " GU0001 ")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusCompleted, got.Status)

	history, err := f.svc.History(ctx, "GU0001")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, entity.StatusInProgress, history[1].FromStatus)

	_, err = f.svc.History(ctx, "GU0404")
	assert.ErrorIs(t, err, ErrRequestNotFound)
}

func TestRefreshCache(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.svc.RefreshCache(context.Background()))
	assert.Equal(t, 1, f.cache.invalidations)
}

func TestExport(t *testing.T) {
	f := newFixture(t, submitted("GU0001"), submitted("GU0002"))
	var buf bytes.Buffer
	require.NoError(t, f.svc.Export(context.Background(), &buf))

	wb, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer wb.Close()
	rows, err := wb.GetRows(ExportSheet)
	require.NoError(t, err)
	assert.Len(t, rows, 3)
	assert.Equal(t, "Ticket ID", rows[0][0])
}
