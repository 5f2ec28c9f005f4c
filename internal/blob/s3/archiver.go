package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/stakeledger/stakeledger/internal/domain"
)

// auditPageSize bounds how many audit entries are pulled per query while
// draining the log for export.
const auditPageSize = 1000

// ArchiveImpl implements domain.Archiver by querying the ledger for old
// records, serializing them to JSONL, and uploading the result to S3.
//
// Deletion of the archived records from the primary store is intentionally
// NOT performed here -- closed positions are permanent ledger state, and the
// audit log retention pass is a separate, explicit step executed after the
// archive has been verified.
type ArchiveImpl struct {
	writer domain.BlobWriter
	ledger domain.LedgerStore
	audit  domain.AuditStore
}

// NewArchiver creates a new ArchiveImpl.
func NewArchiver(writer domain.BlobWriter, ledger domain.LedgerStore, audit domain.AuditStore) *ArchiveImpl {
	return &ArchiveImpl{
		writer: writer,
		ledger: ledger,
		audit:  audit,
	}
}

// archivedPosition is the export form of a closed position. Principal is a
// decimal string so wei-scale values survive JSON round trips.
type archivedPosition struct {
	ID          uint64    `json:"position_id"`
	Owner       string    `json:"owner"`
	TokenName   string    `json:"token_name"`
	TokenSymbol string    `json:"token_symbol"`
	APYBps      uint64    `json:"apy_bps"`
	Principal   string    `json:"principal"`
	CreatedAt   time.Time `json:"created_at"`
}

// Archive exports closed positions opened before the cutoff and all audit
// entries up to the cutoff, one JSONL object per store, and returns the S3
// paths written. Empty data sets produce no objects.
func (a *ArchiveImpl) Archive(ctx context.Context, before time.Time) ([]string, error) {
	var paths []string

	positionsPath, err := a.archivePositions(ctx, before)
	if err != nil {
		return paths, err
	}
	if positionsPath != "" {
		paths = append(paths, positionsPath)
	}

	auditPath, err := a.archiveAudit(ctx, before)
	if err != nil {
		return paths, err
	}
	if auditPath != "" {
		paths = append(paths, auditPath)
	}

	return paths, nil
}

func (a *ArchiveImpl) archivePositions(ctx context.Context, before time.Time) (string, error) {
	var records []archivedPosition
	for offset := 0; ; offset += auditPageSize {
		batch, err := a.ledger.ListClosedBefore(ctx, before, domain.ListOpts{
			Limit:  auditPageSize,
			Offset: offset,
		})
		if err != nil {
			return "", fmt.Errorf("s3blob: archive positions query: %w", err)
		}
		for _, p := range batch {
			principal := p.Principal
			if principal == nil {
				principal = new(big.Int)
			}
			records = append(records, archivedPosition{
				ID:          p.ID,
				Owner:       p.Owner.Hex(),
				TokenName:   p.TokenName,
				TokenSymbol: p.TokenSymbol,
				APYBps:      p.APYBps,
				Principal:   principal.String(),
				CreatedAt:   p.CreatedAt,
			})
		}
		if len(batch) < auditPageSize {
			break
		}
	}
	if len(records) == 0 {
		return "", nil
	}

	buf, err := marshalJSONL(records)
	if err != nil {
		return "", fmt.Errorf("s3blob: archive positions marshal: %w", err)
	}

	path := archivePath("positions", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return "", fmt.Errorf("s3blob: archive positions upload: %w", err)
	}

	if err := a.audit.Log(ctx, "archive.positions", map[string]any{
		"path":   path,
		"count":  len(records),
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return path, fmt.Errorf("s3blob: archive positions audit log: %w", err)
	}

	return path, nil
}

func (a *ArchiveImpl) archiveAudit(ctx context.Context, before time.Time) (string, error) {
	var entries []domain.AuditEntry
	for offset := 0; ; offset += auditPageSize {
		batch, err := a.audit.List(ctx, domain.ListOpts{
			Until:  &before,
			Limit:  auditPageSize,
			Offset: offset,
		})
		if err != nil {
			return "", fmt.Errorf("s3blob: archive audit query: %w", err)
		}
		entries = append(entries, batch...)
		if len(batch) < auditPageSize {
			break
		}
	}
	if len(entries) == 0 {
		return "", nil
	}

	buf, err := marshalJSONL(entries)
	if err != nil {
		return "", fmt.Errorf("s3blob: archive audit marshal: %w", err)
	}

	path := archivePath("audit", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return "", fmt.Errorf("s3blob: archive audit upload: %w", err)
	}

	return path, nil
}

// archivePath builds the S3 key for an archive file, partitioned by the
// year-month of the cutoff time.
//
//	archive/positions/2025-01.jsonl
//	archive/audit/2025-01.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
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
