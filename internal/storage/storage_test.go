package storage

import (
	"context"
	"testing"
	"time"
)

func TestRunRecord_Types(t *testing.T) {
	_ = RunRecord{
		ID:           "test1234",
		Mode:         "fixture",
		StartedAt:    time.Now(),
		FinishedAt:   time.Now(),
		Duration:     10 * time.Millisecond,
		RequestCount: 5,
		ErrorCount:   0,
		ReportJSON:   []byte(`{"ok":true}`),
		Error:        "",
	}

	since := time.Now()
	_ = Filter{
		Mode:   "fixture",
		Since:  &since,
		Limit:  10,
		Offset: 0,
	}
}

type mockBackend struct{}

func (m *mockBackend) Save(ctx context.Context, record *RunRecord) error { return nil }
func (m *mockBackend) Query(ctx context.Context, filter Filter) ([]*RunRecord, error) {
	return nil, nil
}
func (m *mockBackend) Close() error { return nil }

func TestBackendInterface(t *testing.T) {
	var b Backend = &mockBackend{}
	_ = b
}
