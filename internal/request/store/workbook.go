package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/JiaqinWu/CGHPI-Request-System/internal/request/entity"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

const (
	defaultSheet      = "Communication"
	defaultAttempts   = 3
	defaultRetryDelay = 500 * time.Millisecond
)

// WorkbookStore keeps the request table in one worksheet of an .xlsx file.
type WorkbookStore struct {
	path       string
	sheet      string
	known      []string
	attempts   int
	retryDelay time.Duration
	logger     *zap.Logger
}

// WorkbookOption customises a WorkbookStore.
type WorkbookOption func(*WorkbookStore)

// WithSheet sets the worksheet name.
func WithSheet(name string) WorkbookOption {
	return func(s *WorkbookStore) {
		if name != "" {
			s.sheet = name
		}
	}
}

// WithRetry sets the read attempts and the first backoff delay.
func WithRetry(attempts int, baseDelay time.Duration) WorkbookOption {
	return func(s *WorkbookStore) {
		s.attempts = attempts
		s.retryDelay = baseDelay
	}
}

// WithKnownLabels sets the option labels used to split multi-value cells.
func WithKnownLabels(labels []string) WorkbookOption {
	return func(s *WorkbookStore) { s.known = labels }
}

// NewWorkbookStore returns a store backed by the workbook at path.
func NewWorkbookStore(path string, logger *zap.Logger, opts ...WorkbookOption) *WorkbookStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &WorkbookStore{
		path:       path,
		sheet:      defaultSheet,
		known:      entity.DefaultOptions().Known(),
		attempts:   defaultAttempts,
		retryDelay: defaultRetryDelay,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LoadAll reads every data row. A missing workbook is an empty table.
func (s *WorkbookStore) LoadAll(ctx context.Context) ([]entity.Request, error) {
	attempt := 0
	rows, err := Retry(ctx, s.attempts, s.retryDelay, func(ctx context.Context) ([]entity.Request, error) {
		attempt++
		rows, err := s.read()
		if err != nil {
			s.logger.Warn("Read workbook failed", zap.Int("attempt", attempt), zap.String("path", s.path), zap.Error(err))
		}
		return rows, err
	})
	if err != nil {
		return nil, &ReadError{Err: err}
	}
	return rows, nil
}

func (s *WorkbookStore) read() ([]entity.Request, error) {
	f, err := excelize.OpenFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []entity.Request{}, nil
		}
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()
	return s.readRows(f)
}

func (s *WorkbookStore) readRows(f *excelize.File) ([]entity.Request, error) {
	idx, err := f.GetSheetIndex(s.sheet)
	if err != nil {
		return nil, fmt.Errorf("find sheet: %w", err)
	}
	if idx < 0 {
		return []entity.Request{}, nil
	}

	rows, err := f.GetRows(s.sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", s.sheet, err)
	}
	if len(rows) == 0 {
		return []entity.Request{}, nil
	}

	header := rows[0]
	out := make([]entity.Request, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if isBlank(row) {
			continue
		}
		out = append(out, DecodeRow(header, row, s.known))
	}
	return out, nil
}

// WriteAll replaces the sheet with a header row and one row per request.
// The workbook is written to a temporary file and renamed over the old one.
func (s *WorkbookStore) WriteAll(ctx context.Context, rows []entity.Request) error {
	if err := ctx.Err(); err != nil {
		return &WriteError{Err: err}
	}

	f, err := BuildWorkbook(s.sheet, rows)
	if err != nil {
		return &WriteError{Err: err}
	}
	defer f.Close()

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return &WriteError{Err: fmt.Errorf("create store dir: %w", err)}
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".requests-*.xlsx")
	if err != nil {
		return &WriteError{Err: fmt.Errorf("create temp workbook: %w", err)}
	}
	if err := f.Write(tmp); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return &WriteError{Err: fmt.Errorf("save workbook: %w", err)}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return &WriteError{Err: fmt.Errorf("save workbook: %w", err)}
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return &WriteError{Err: fmt.Errorf("replace workbook: %w", err)}
	}

	s.logger.Debug("Workbook written", zap.String("path", s.path), zap.Int("rows", len(rows)))
	return nil
}

// BuildWorkbook renders rows as a fresh single-sheet workbook with a bold
// header row.
func BuildWorkbook(sheet string, rows []entity.Request) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("name sheet: %w", err)
	}

	boldStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#D9E1F2"}},
	})

	header := Header(rows)
	if err := setRow(f, sheet, 1, header); err != nil {
		f.Close()
		return nil, err
	}
	last, _ := excelize.CoordinatesToCellName(len(header), 1)
	f.SetCellStyle(sheet, "A1", last, boldStyle)

	for i, r := range rows {
		if err := setRow(f, sheet, i+2, EncodeRow(header, r)); err != nil {
			f.Close()
			return nil, err
		}
	}
	return f, nil
}

// WriteWorkbook streams rows as an .xlsx document.
func WriteWorkbook(w io.Writer, sheet string, rows []entity.Request) error {
	f, err := BuildWorkbook(sheet, rows)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, cells []string) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("cell name: %w", err)
	}
	values := make([]interface{}, len(cells))
	for i, c := range cells {
		values[i] = c
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write row %d: %w", row, err)
	}
	return nil
}

func isBlank(row []string) bool {
	for _, c := range row {
		if c != "" {
			return false
		}
	}
	return true
}
