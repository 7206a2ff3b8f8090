package store

import (
	"context"
	"fmt"

	"github.com/JiaqinWu/CGHPI-Request-System/internal/request/entity"
)

// RecordStore is the durable table of requests. WriteAll is a full
// overwrite, not an upsert: two writers that both loaded the table race and
// the later one wins.
type RecordStore interface {
	LoadAll(ctx context.Context) ([]entity.Request, error)
	WriteAll(ctx context.Context, rows []entity.Request) error
}

// ReadError wraps a load that failed after every retry.
type ReadError struct {
	Err error
}

func (e *ReadError) Error() string { return fmt.Sprintf("load requests: %v", e.Err) }
func (e *ReadError) Unwrap() error { return e.Err }

// WriteError wraps a failed full-table write.
type WriteError struct {
	Err error
}

func (e *WriteError) Error() string { return fmt.Sprintf("write requests: %v", e.Err) }
func (e *WriteError) Unwrap() error { return e.Err }
