package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/alanyoungcy/portfolioledger/internal/domain"
)

const (
	// cursorPath holds the last archived sequence number.
	cursorPath = "events/cursor"
	// archivePrefix is shared by every archive file and nothing else.
	archivePrefix = "events/seq-"

	defaultArchiveBatch = 5000
	contentTypeJSONL    = "application/x-ndjson"
)

// EventSource is the read side of the ledger event log the archiver needs.
type EventSource interface {
	Events(ctx context.Context, after uint64, limit int) ([]domain.Event, error)
}

type archiveCursor struct {
	LastSeq uint64 `json:"last_seq"`
}

// EventArchiver implements domain.Archiver. It copies committed events to
// object storage as JSONL files named by their sequence range and advances a
// cursor object after each upload. Events are never removed from the store.
type EventArchiver struct {
	writer domain.BlobWriter
	reader domain.BlobReader
	events EventSource
	audit  domain.AuditStore
	batch  int
}

// NewArchiver creates an EventArchiver. batch bounds the events per file.
func NewArchiver(writer domain.BlobWriter, reader domain.BlobReader, events EventSource, audit domain.AuditStore, batch int) *EventArchiver {
	if batch <= 0 {
		batch = defaultArchiveBatch
	}
	return &EventArchiver{
		writer: writer,
		reader: reader,
		events: events,
		audit:  audit,
		batch:  batch,
	}
}

// ArchiveEvents uploads every event after the cursor and returns how many
// were written. A failed upload leaves the cursor where it was, so the next
// run rewrites the same file.
func (a *EventArchiver) ArchiveEvents(ctx context.Context) (int64, error) {
	cur, err := a.readCursor(ctx)
	if err != nil {
		return 0, err
	}

	var total int64
	for {
		events, err := a.events.Events(ctx, cur.LastSeq, a.batch)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive events query: %w", err)
		}
		if len(events) == 0 {
			return total, nil
		}

		buf, err := marshalJSONL(events)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive events marshal: %w", err)
		}

		from, to := events[0].Seq, events[len(events)-1].Seq
		path := archivePath(from, to)
		if err := a.writer.Put(ctx, path, buf, contentTypeJSONL); err != nil {
			return total, fmt.Errorf("s3blob: archive events upload: %w", err)
		}

		cur.LastSeq = to
		if err := a.writeCursor(ctx, cur); err != nil {
			return total, err
		}
		total += int64(len(events))

		if a.audit != nil {
			if err := a.audit.Log(ctx, "archive.events", map[string]any{
				"path":  path,
				"from":  from,
				"to":    to,
				"count": len(events),
			}); err != nil {
				return total, fmt.Errorf("s3blob: archive events audit log: %w", err)
			}
		}

		if len(events) < a.batch {
			return total, nil
		}
	}
}

// readCursor loads the cursor object. When it is missing the cursor is
// rebuilt from the newest archive file, so a lost cursor never re-exports
// the whole log.
func (a *EventArchiver) readCursor(ctx context.Context) (archiveCursor, error) {
	var cur archiveCursor
	data, err := a.reader.Get(ctx, cursorPath)
	if errors.Is(err, domain.ErrNotFound) {
		return a.recoverCursor(ctx)
	}
	if err != nil {
		return cur, fmt.Errorf("s3blob: read archive cursor: %w", err)
	}
	if err := json.Unmarshal(data, &cur); err != nil {
		return cur, fmt.Errorf("s3blob: decode archive cursor: %w", err)
	}
	return cur, nil
}

func (a *EventArchiver) recoverCursor(ctx context.Context) (archiveCursor, error) {
	var cur archiveCursor
	files, err := a.reader.List(ctx, archivePrefix)
	if err != nil {
		return cur, fmt.Errorf("s3blob: recover archive cursor: %w", err)
	}
	for _, f := range files {
		if _, to, ok := parseArchivePath(f.Path); ok && to > cur.LastSeq {
			cur.LastSeq = to
		}
	}
	return cur, nil
}

func (a *EventArchiver) writeCursor(ctx context.Context, cur archiveCursor) error {
	data, err := json.Marshal(cur)
	if err != nil {
		return fmt.Errorf("s3blob: encode archive cursor: %w", err)
	}
	if err := a.writer.Put(ctx, cursorPath, data, "application/json"); err != nil {
		return fmt.Errorf("s3blob: write archive cursor: %w", err)
	}
	return nil
}

var _ domain.Archiver = (*EventArchiver)(nil)

// archivePath builds the key of one archive file. Sequence numbers are zero
// padded so keys sort in log order.
//
//	events/seq-000000000001-000000005000.jsonl
func archivePath(from, to uint64) string {
	return fmt.Sprintf(archivePrefix+"%012d-%012d.jsonl", from, to)
}

// parseArchivePath is the inverse of archivePath.
func parseArchivePath(path string) (from, to uint64, ok bool) {
	name, found := strings.CutPrefix(path, archivePrefix)
	if !found || !strings.HasSuffix(name, ".jsonl") {
		return 0, 0, false
	}
	if _, err := fmt.Sscanf(name, "%d-%d.jsonl", &from, &to); err != nil || from > to {
		return 0, 0, false
	}
	return from, to, true
}

// marshalJSONL serialises records as newline-delimited JSON.
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
