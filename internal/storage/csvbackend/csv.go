package csvbackend

import (
	"context"
	"encoding/base64"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/FranksOps/gofr-dig/internal/storage"
)

// ensure csvBackend implements storage.Backend
var _ storage.Backend = (*csvBackend)(nil)

type csvBackend struct {
	mu   sync.Mutex
	file *os.File
}

// headers defines the CSV column order
var headers = []string{
	"id",
	"mode",
	"started_at",
	"finished_at",
	"duration_ms",
	"request_count",
	"error_count",
	"report_json_base64",
	"error",
}

// New creates a new CSV-backed storage.Backend.
func New(filePath string) (storage.Backend, error) {
	f, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("storage/csvbackend: open: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("storage/csvbackend: stat: %w", err)
	}

	if info.Size() == 0 {
		w := csv.NewWriter(f)
		if err := w.Write(headers); err != nil {
			f.Close()
			return nil, fmt.Errorf("storage/csvbackend: write header: %w", err)
		}
		w.Flush()
		if err := w.Error(); err != nil {
			f.Close()
			return nil, fmt.Errorf("storage/csvbackend: flush header: %w", err)
		}
	}

	return &csvBackend{
		file: f,
	}, nil
}

func (b *csvBackend) Save(ctx context.Context, record *storage.RunRecord) error {
	reportBase64 := base64.StdEncoding.EncodeToString(record.ReportJSON)

	row := []string{
		record.ID,
		record.Mode,
		record.StartedAt.Format(time.RFC3339Nano),
		record.FinishedAt.Format(time.RFC3339Nano),
		strconv.FormatInt(record.Duration.Milliseconds(), 10),
		strconv.Itoa(record.RequestCount),
		strconv.Itoa(record.ErrorCount),
		reportBase64,
		record.Error,
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := b.file.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("storage/csvbackend: seek: %w", err)
	}

	w := csv.NewWriter(b.file)
	if err := w.Write(row); err != nil {
		return fmt.Errorf("storage/csvbackend: write: %w", err)
	}
	w.Flush()

	if err := w.Error(); err != nil {
		return fmt.Errorf("storage/csvbackend: flush: %w", err)
	}

	return nil
}

func (b *csvBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.RunRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := b.file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("storage/csvbackend: seek: %w", err)
	}
	defer func() {
		_, _ = b.file.Seek(0, io.SeekEnd)
	}()

	r := csv.NewReader(b.file)

	if _, err := r.Read(); err != nil {
		if err == io.EOF {
			return []*storage.RunRecord{}, nil
		}
		return nil, fmt.Errorf("storage/csvbackend: read header: %w", err)
	}

	var allFiltered []*storage.RunRecord

	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("storage/csvbackend: read: %w", err)
		}

		if len(row) != len(headers) {
			continue // skip malformed rows
		}

		durationMs, _ := strconv.ParseInt(row[4], 10, 64)
		requestCount, _ := strconv.Atoi(row[5])
		errorCount, _ := strconv.Atoi(row[6])
		startedAt, _ := time.Parse(time.RFC3339Nano, row[2])
		finishedAt, _ := time.Parse(time.RFC3339Nano, row[3])
		reportJSON, _ := base64.StdEncoding.DecodeString(row[7])

		rec := &storage.RunRecord{
			ID:           row[0],
			Mode:         row[1],
			StartedAt:    startedAt,
			FinishedAt:   finishedAt,
			Duration:     time.Duration(durationMs) * time.Millisecond,
			RequestCount: requestCount,
			ErrorCount:   errorCount,
			ReportJSON:   reportJSON,
			Error:        row[8],
		}

		if filter.Mode != "" && rec.Mode != filter.Mode {
			continue
		}
		if filter.Since != nil && rec.StartedAt.Before(*filter.Since) {
			continue
		}

		allFiltered = append(allFiltered, rec)
	}

	for i, j := 0, len(allFiltered)-1; i < j; i, j = i+1, j-1 {
		allFiltered[i], allFiltered[j] = allFiltered[j], allFiltered[i]
	}

	if filter.Offset > 0 {
		if filter.Offset >= len(allFiltered) {
			return []*storage.RunRecord{}, nil
		}
		allFiltered = allFiltered[filter.Offset:]
	}

	if filter.Limit > 0 && filter.Limit < len(allFiltered) {
		allFiltered = allFiltered[:filter.Limit]
	}

	return allFiltered, nil
}

func (b *csvBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.file.Close()
}
