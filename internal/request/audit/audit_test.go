package audit

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepositoryHistory(t *testing.T) {
	db, err := Open(Config{Driver: "sqlite", DSN: "file:audit_history?mode=memory&cache=shared"})
	require.NoError(t, err)
	repo := NewRepository(db)
	ctx := context.Background()

	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Record(ctx, &StatusChange{TicketID: "GU0001", FromStatus: "Submitted", ToStatus: "In Progress", Message: "Started", Operator: "coord@example.org", CreatedAt: base}))
	require.NoError(t, repo.Record(ctx, &StatusChange{TicketID: "GU0002", FromStatus: "Submitted", ToStatus: "Declined", Message: "No", CreatedAt: base}))
	require.NoError(t, repo.Record(ctx, &StatusChange{TicketID: "GU0001", FromStatus: "In Progress", ToStatus: "Completed", Message: "Done", Outputs: 2, CreatedAt: base.Add(time.Hour)}))

	items, err := repo.History(ctx, "GU0001")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "In Progress", items[0].ToStatus)
	assert.Equal(t, "Completed", items[1].ToStatus)
	assert.Equal(t, 2, items[1].Outputs)
	assert.Len(t, items[0].ID, 32)

	items, err = repo.History(ctx, "GU0404")
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "oracle"})
	assert.Error(t, err)
}

func TestOpenCreatesDatabaseDirectory(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "data", "requestdesk.db")
	db, err := Open(Config{Driver: "sqlite", DSN: dsn})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	repo := NewRepository(db)
	ctx := context.Background()
	require.NoError(t, repo.Record(ctx, &StatusChange{TicketID: "GU0001", FromStatus: "Submitted", ToStatus: "Declined", Message: "No"}))
	items, err := repo.History(ctx, "GU0001")
	require.NoError(t, err)
	assert.Len(t, items, 1)

	_, err = os.Stat(dsn)
	assert.NoError(t, err)
}
