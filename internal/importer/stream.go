package importer

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/devflowinc/trieve-sub001/internal/errs"
	"github.com/devflowinc/trieve-sub001/internal/metadatastore"
	"github.com/devflowinc/trieve-sub001/internal/queue"
)

// process runs one import end to end: confirm the object is present,
// resolve the file-backed group, stream its rows into BulkUpload
// batches, and record the resulting file row with its actually streamed
// size (spec §4.F).
func (w *Worker) process(ctx context.Context, msg queue.CSVImportMessage) error {
	exists, err := w.Blobs.Exists(ctx, msg.ObjectKey)
	if err != nil {
		return err
	}
	if !exists {
		return errs.NotFound(errs.CodeNotFound, "import object not yet present", nil)
	}

	if _, err := w.datasetConfig(ctx, msg.DatasetID); err != nil {
		return err
	}

	groupTrackingID := fileGroupTrackingID(msg)
	group, err := w.Meta.GetOrCreateGroupByTrackingID(ctx, msg.DatasetID, groupTrackingID)
	if err != nil {
		return err
	}

	obj, err := w.Blobs.Open(ctx, msg.ObjectKey)
	if err != nil {
		return err
	}
	defer func() { _ = obj.Close() }()

	counted := &countingReader{r: obj}
	n, streamErr := w.streamBatches(ctx, msg, counted, groupTrackingID)
	if streamErr != nil {
		return streamErr
	}

	file := metadatastore.File{
		DatasetID: msg.DatasetID,
		SizeMB:    float64(counted.n) / (1024 * 1024),
		GroupID:   &group.ID,
	}
	if _, err := w.Meta.CreateFile(ctx, file); err != nil {
		return err
	}
	w.Logger.WithFields(map[string]any{
		"dataset_id": msg.DatasetID,
		"object_key": msg.ObjectKey,
		"rows":       n,
	}).Info("csv/jsonl import complete")
	return nil
}

// countingReader tracks the number of bytes actually read so the
// resulting file row's size reflects the stream, not an upload-reported
// content-length (spec §4.F: "final file-size is computed from the
// actually streamed byte count").
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

func fileGroupTrackingID(msg queue.CSVImportMessage) string {
	if msg.GroupTrackingID != "" {
		return msg.GroupTrackingID
	}
	return "file:" + msg.ObjectKey
}

// streamBatches detects the object's format, converts each row to a
// ChunkInput, and flushes a BulkUpload batch to the ingestion queue
// every BatchSize rows (spec §4.F).
func (w *Worker) streamBatches(ctx context.Context, msg queue.CSVImportMessage, r io.Reader, groupTrackingID string) (int, error) {
	br := bufio.NewReaderSize(r, 64*1024)
	format, err := detectFormat(br)
	if err != nil {
		return 0, err
	}

	rows, err := rowSource(br, format)
	if err != nil {
		return 0, err
	}

	batch := make([]queue.ChunkInput, 0, w.BatchSize)
	total := 0
	for {
		raw, ok, err := rows()
		if err != nil {
			return total, errs.BadRequest("import_malformed_row", "failed to parse import row", err)
		}
		if !ok {
			break
		}
		batch = append(batch, rowToChunkInput(raw, msg.Mapping, groupTrackingID))
		total++
		if len(batch) == w.BatchSize {
			if err := w.flushBatch(ctx, msg.DatasetID, batch); err != nil {
				return total, err
			}
			batch = batch[:0]
		}
	}
	if len(batch) > 0 {
		if err := w.flushBatch(ctx, msg.DatasetID, batch); err != nil {
			return total, err
		}
	}
	return total, nil
}

func (w *Worker) flushBatch(ctx context.Context, datasetID string, batch []queue.ChunkInput) error {
	chunks := make([]queue.ChunkInput, len(batch))
	copy(chunks, batch)
	msg := queue.IngestMessage{Kind: queue.KindBulkUpload, DatasetID: datasetID, Chunks: chunks}
	raw, err := msg.Encode()
	if err != nil {
		return errs.Internal("import_encode_batch", "failed to encode ingestion batch", err)
	}
	return w.Queue.Push(ctx, queue.Ingestion, raw)
}

type format int

const (
	formatCSV format = iota
	formatJSONL
)

// detectFormat peeks past any leading whitespace to classify the object:
// a line starting with '{' is JSON-per-line, anything else is treated as
// CSV with a header row (spec §4.F: "detects format (JSON-per-line vs
// CSV with header row)").
func detectFormat(br *bufio.Reader) (format, error) {
	for {
		b, err := br.Peek(1)
		if err == io.EOF {
			return formatCSV, nil
		}
		if err != nil {
			return formatCSV, errs.Transient(errs.CodeRemoteStatus, "failed to peek import stream", err)
		}
		switch b[0] {
		case '\n', '\r', ' ', '\t':
			_, _ = br.Discard(1)
			continue
		case '{':
			return formatJSONL, nil
		default:
			return formatCSV, nil
		}
	}
}

// rowSource returns a pull function yielding one decoded row at a time
// until the stream is exhausted.
func rowSource(br *bufio.Reader, f format) (func() (map[string]any, bool, error), error) {
	switch f {
	case formatJSONL:
		scanner := bufio.NewScanner(br)
		scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
		return func() (map[string]any, bool, error) {
			for scanner.Scan() {
				line := strings.TrimSpace(scanner.Text())
				if line == "" {
					continue
				}
				var row map[string]any
				if err := json.Unmarshal([]byte(line), &row); err != nil {
					return nil, false, err
				}
				return row, true, nil
			}
			return nil, false, scanner.Err()
		}, nil
	default:
		cr := csv.NewReader(br)
		cr.FieldsPerRecord = -1
		header, err := cr.Read()
		if err == io.EOF {
			return func() (map[string]any, bool, error) { return nil, false, nil }, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv header: %w", err)
		}
		for i, h := range header {
			header[i] = strings.TrimSpace(h)
		}
		return func() (map[string]any, bool, error) {
			record, err := cr.Read()
			if err == io.EOF {
				return nil, false, nil
			}
			if err != nil {
				return nil, false, err
			}
			row := make(map[string]any, len(header))
			for i, h := range header {
				if i >= len(record) {
					continue
				}
				row[h] = autodetectCell(record[i])
			}
			return row, true, nil
		}, nil
	}
}

// autodetectCell applies spec §4.F's CSV cell typing rule: "null"/"None"
// become null, otherwise try boolean then numeric, falling back to the
// raw string.
func autodetectCell(s string) any {
	trimmed := strings.TrimSpace(s)
	switch trimmed {
	case "null", "None":
		return nil
	}
	if b, err := strconv.ParseBool(trimmed); err == nil {
		return b
	}
	if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return f
	}
	return s
}
