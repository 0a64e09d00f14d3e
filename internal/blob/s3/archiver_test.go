package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

type fakeWriter struct {
	puts map[string][]byte
}

func (w *fakeWriter) Put(_ context.Context, path string, data io.Reader, _ string) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	if w.puts == nil {
		w.puts = map[string][]byte{}
	}
	w.puts[path] = b
	return nil
}

func (w *fakeWriter) PutMultipart(ctx context.Context, path string, data io.Reader, _ int64) error {
	return w.Put(ctx, path, data, "")
}

type fakeExecStore struct {
	records []domain.ExecutionRecord
	deleted *time.Time
}

func (s *fakeExecStore) ListBefore(_ context.Context, before time.Time, limit int) ([]domain.ExecutionRecord, error) {
	var out []domain.ExecutionRecord
	for _, rec := range s.records {
		if rec.StartedAt.Before(before) {
			out = append(out, rec)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *fakeExecStore) GetByID(_ context.Context, id string) (domain.ExecutionRecord, error) {
	for _, rec := range s.records {
		if rec.ID == id {
			return rec, nil
		}
	}
	return domain.ExecutionRecord{}, domain.ErrNotFound
}

func (s *fakeExecStore) DeleteBefore(_ context.Context, before time.Time) (int64, error) {
	s.deleted = &before
	var kept []domain.ExecutionRecord
	var n int64
	for _, rec := range s.records {
		if rec.StartedAt.Before(before) {
			n++
			continue
		}
		kept = append(kept, rec)
	}
	s.records = kept
	return n, nil
}

type fakeAudit struct {
	events []string
}

func (a *fakeAudit) Log(_ context.Context, event string, _ map[string]any) error {
	a.events = append(a.events, event)
	return nil
}

func (a *fakeAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

func TestArchiveExecutionsUploadsDeletesAndAudits(t *testing.T) {
	cutoff := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	old := domain.ExecutionRecord{
		ID:             "exec-1",
		Symbol:         "BTC-USDC",
		Status:         domain.ExecStatusCompleted,
		PlannedBase:    decimal.RequireFromString("0.01"),
		RealizedProfit: decimal.RequireFromString("1.25"),
		Legs: []domain.LegResult{
			{Venue: domain.VenueMEXC, Side: domain.OrderSideBuy, Type: domain.OrderTypeLimit,
				Requested: decimal.RequireFromString("0.01"), State: domain.LegFilled},
		},
		StartedAt:   cutoff.Add(-48 * time.Hour),
		CompletedAt: cutoff.Add(-48*time.Hour + time.Minute),
	}
	recent := domain.ExecutionRecord{
		ID:        "exec-2",
		Symbol:    "BTC-USDC",
		Status:    domain.ExecStatusCompleted,
		StartedAt: cutoff.Add(time.Hour),
	}

	store := &fakeExecStore{records: []domain.ExecutionRecord{old, recent}}
	writer := &fakeWriter{}
	audit := &fakeAudit{}

	arch := NewArchiver(writer, store, audit)
	count, err := arch.ArchiveExecutions(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	payload, ok := writer.puts["archive/executions/2026-08-01.jsonl"]
	require.True(t, ok, "expected upload at day-partitioned key, got %v", writer.puts)

	sc := bufio.NewScanner(bytes.NewReader(payload))
	require.True(t, sc.Scan())
	var line archiveExecution
	require.NoError(t, json.Unmarshal(sc.Bytes(), &line))
	assert.Equal(t, "exec-1", line.ID)
	assert.True(t, line.RealizedProfit.Equal(old.RealizedProfit))
	require.Len(t, line.Legs, 1)
	assert.Equal(t, "mexc", line.Legs[0].Venue)
	assert.False(t, sc.Scan(), "only the pre-cutoff record should be archived")

	assert.Equal(t, []string{"archive.executions"}, audit.events)
	require.NotNil(t, store.deleted)
	assert.True(t, store.deleted.Equal(cutoff))
	require.Len(t, store.records, 1)
	assert.Equal(t, "exec-2", store.records[0].ID)
}

func TestArchiveExecutionsNoRowsIsNoOp(t *testing.T) {
	store := &fakeExecStore{}
	writer := &fakeWriter{}
	audit := &fakeAudit{}

	arch := NewArchiver(writer, store, audit)
	count, err := arch.ArchiveExecutions(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Empty(t, writer.puts)
	assert.Empty(t, audit.events)
	assert.Nil(t, store.deleted)
}
