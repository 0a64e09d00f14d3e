package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// archiveBatchSize caps how many execution records are pulled from the store
// per query while paging towards the cutoff.
const archiveBatchSize = 500

// ExecutionArchiveStore is the narrow store surface the archiver needs. The
// Postgres ExecutionStore satisfies it implicitly.
type ExecutionArchiveStore interface {
	// ListBefore returns executions started strictly before the cutoff,
	// newest first, without legs or recovery actions.
	ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.ExecutionRecord, error)

	// GetByID returns the full record including legs and recovery actions.
	GetByID(ctx context.Context, id string) (domain.ExecutionRecord, error)

	// DeleteBefore removes executions started strictly before the cutoff and
	// returns the number of rows removed.
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// ArchiveImpl implements domain.Archiver: it drains execution records older
// than a cutoff into a JSONL object, then deletes them from the primary
// store. Deletion happens only after the upload succeeded, so a failed run
// leaves the database untouched and the next run retries the same rows.
type ArchiveImpl struct {
	writer domain.BlobWriter
	execs  ExecutionArchiveStore
	audit  domain.AuditStore
}

// NewArchiver creates a new ArchiveImpl.
func NewArchiver(writer domain.BlobWriter, execs ExecutionArchiveStore, audit domain.AuditStore) *ArchiveImpl {
	return &ArchiveImpl{
		writer: writer,
		execs:  execs,
		audit:  audit,
	}
}

// ArchiveExecutions collects all executions started before the cutoff,
// serializes them (with legs and recovery actions) to JSONL, uploads the
// file to archive/executions/YYYY-MM-DD.jsonl, records the event in the
// audit log, and finally deletes the archived rows. It returns the number
// of archived records.
func (a *ArchiveImpl) ArchiveExecutions(ctx context.Context, before time.Time) (int64, error) {
	var records []archiveExecution

	// Page towards the cutoff using the oldest started_at of each batch as
	// the next cursor. List queries omit legs, so each record is re-read in
	// full before serialization.
	cursor := before
	for {
		batch, err := a.execs.ListBefore(ctx, cursor, archiveBatchSize)
		if err != nil {
			return 0, fmt.Errorf("s3blob: archive executions query: %w", err)
		}
		if len(batch) == 0 {
			break
		}

		for _, rec := range batch {
			full, err := a.execs.GetByID(ctx, rec.ID)
			if err != nil {
				return 0, fmt.Errorf("s3blob: archive executions load %s: %w", rec.ID, err)
			}
			records = append(records, toArchiveExecution(full))
		}

		if len(batch) < archiveBatchSize {
			break
		}
		cursor = batch[len(batch)-1].StartedAt
	}

	if len(records) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(records)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive executions marshal: %w", err)
	}

	path := archivePath("executions", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive executions upload: %w", err)
	}

	count := int64(len(records))

	if err := a.audit.Log(ctx, "archive.executions", map[string]any{
		"path":   path,
		"count":  count,
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive executions audit log: %w", err)
	}

	if _, err := a.execs.DeleteBefore(ctx, before); err != nil {
		return count, fmt.Errorf("s3blob: archive executions delete: %w", err)
	}

	return count, nil
}

// Compile-time interface check.
var _ domain.Archiver = (*ArchiveImpl)(nil)

// ---------------------------------------------------------------------------
// wire format
// ---------------------------------------------------------------------------

// archiveExecution is the JSONL line format. Monetary fields serialize as
// quoted decimal strings.
type archiveExecution struct {
	ID              string            `json:"id"`
	Symbol          string            `json:"symbol"`
	Status          string            `json:"status"`
	DryRun          bool              `json:"dry_run"`
	PlannedBase     decimal.Decimal   `json:"planned_base"`
	BuyLimitPrice   decimal.Decimal   `json:"buy_limit_price"`
	ExpectedProfit  decimal.Decimal   `json:"expected_profit"`
	RealizedProfit  decimal.Decimal   `json:"realized_profit"`
	BoughtBase      decimal.Decimal   `json:"bought_base"`
	SoldBase        decimal.Decimal   `json:"sold_base"`
	Legs            []archiveLeg      `json:"legs,omitempty"`
	RecoveryActions []archiveRecovery `json:"recovery_actions,omitempty"`
	StartedAt       time.Time         `json:"started_at"`
	CompletedAt     time.Time         `json:"completed_at"`
}

type archiveLeg struct {
	OrderID     string          `json:"order_id,omitempty"`
	Venue       string          `json:"venue"`
	Side        string          `json:"side"`
	Type        string          `json:"type"`
	Requested   decimal.Decimal `json:"requested"`
	LimitPrice  decimal.Decimal `json:"limit_price"`
	State       string          `json:"state"`
	FilledBase  decimal.Decimal `json:"filled_base"`
	FilledQuote decimal.Decimal `json:"filled_quote"`
	AvgPrice    decimal.Decimal `json:"avg_price"`
	SubmittedAt time.Time       `json:"submitted_at"`
	CompletedAt time.Time       `json:"completed_at"`
}

type archiveRecovery struct {
	Action string    `json:"action"`
	Detail string    `json:"detail,omitempty"`
	At     time.Time `json:"at"`
}

func toArchiveExecution(rec domain.ExecutionRecord) archiveExecution {
	out := archiveExecution{
		ID:             rec.ID,
		Symbol:         rec.Symbol,
		Status:         string(rec.Status),
		DryRun:         rec.DryRun,
		PlannedBase:    rec.PlannedBase,
		BuyLimitPrice:  rec.BuyLimitPrice,
		ExpectedProfit: rec.ExpectedProfit,
		RealizedProfit: rec.RealizedProfit,
		BoughtBase:     rec.BoughtBase,
		SoldBase:       rec.SoldBase,
		StartedAt:      rec.StartedAt,
		CompletedAt:    rec.CompletedAt,
	}
	for _, leg := range rec.Legs {
		out.Legs = append(out.Legs, archiveLeg{
			OrderID:     leg.OrderID,
			Venue:       string(leg.Venue),
			Side:        string(leg.Side),
			Type:        string(leg.Type),
			Requested:   leg.Requested,
			LimitPrice:  leg.LimitPrice,
			State:       string(leg.State),
			FilledBase:  leg.FilledBase,
			FilledQuote: leg.FilledQuote,
			AvgPrice:    leg.AvgPrice,
			SubmittedAt: leg.SubmittedAt,
			CompletedAt: leg.CompletedAt,
		})
	}
	for _, ra := range rec.RecoveryActions {
		out.RecoveryActions = append(out.RecoveryActions, archiveRecovery{
			Action: ra.Action,
			Detail: ra.Detail,
			At:     ra.At,
		})
	}
	return out
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

// archivePath builds the S3 key for an archive file, partitioned by the
// calendar day of the cutoff time.
//
//	archive/executions/2026-08-06.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.UTC().Format("2006-01-02"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON (JSONL).
// Each element is marshalled as a single compact JSON line followed by '\n'.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
