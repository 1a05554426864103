package archive

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"

	"github.com/kode4food/flownode/pkg/api"
)

type (
	// Writer stores archive records as JSON objects in a bucket
	Writer struct {
		bucket Bucket
		prefix string
	}

	// Bucket is the part of a blob bucket the writer uses
	Bucket interface {
		WriteAll(context.Context, string, []byte, *blob.WriterOptions) error
		ReadAll(context.Context, string) ([]byte, error)
	}

	// Record is the archived form of a finished process tree
	Record struct {
		ArchivedAt time.Time              `json:"archived_at"`
		ProcessID  api.ProcessID          `json:"process_id"`
		State      api.ProcessState       `json:"state"`
		Processes  []*api.ProcessResponse `json:"processes"`
	}
)

var (
	ErrBucketRequired = errors.New("bucket is required")
	ErrRecordRequired = errors.New("archive record is required")
	ErrNotArchived    = errors.New("process is not archived")
)

// NewWriter creates a writer storing records under prefix
func NewWriter(bucket Bucket, prefix string) (*Writer, error) {
	if bucket == nil {
		return nil, ErrBucketRequired
	}
	return &Writer{
		bucket: bucket,
		prefix: prefix,
	}, nil
}

// Write stores a record, replacing any earlier record of the same process
func (w *Writer) Write(ctx context.Context, rec *Record) error {
	if rec == nil {
		return ErrRecordRequired
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	key := buildArchiveKey(w.prefix, rec.ProcessID)
	return w.bucket.WriteAll(ctx, key, data, &blob.WriterOptions{
		ContentType: "application/json",
	})
}

// Read loads the record of an archived process
func (w *Writer) Read(ctx context.Context, pid api.ProcessID) (*Record, error) {
	data, err := w.bucket.ReadAll(ctx, buildArchiveKey(w.prefix, pid))
	if gcerrors.Code(err) == gcerrors.NotFound {
		return nil, ErrNotArchived
	}
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func buildArchiveKey(prefix string, pid api.ProcessID) string {
	if prefix == "" {
		return string(pid) + ".json"
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return prefix + string(pid) + ".json"
}
