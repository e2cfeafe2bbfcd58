// Package sink persists collected records. Writers replace the whole file on
// every call so the output is always a complete, parseable snapshot.
package sink

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/feedlark/reelwatch/internal/feed"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DefaultJSONPath returns a timestamped output path under dir.
func DefaultJSONPath(dir string) string {
	return filepath.Join(dir, fmt.Sprintf("reels_%s.json", time.Now().Format("20060102_150405")))
}

// JSONSink writes the record list as a pretty-printed JSON array.
type JSONSink struct {
	path string
}

func NewJSONSink(path string) *JSONSink {
	return &JSONSink{path: path}
}

func (s *JSONSink) Path() string { return s.path }

// WriteAll replaces the file atomically: a reader never observes a
// half-written snapshot.
func (s *JSONSink) WriteAll(ctx context.Context, records []feed.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if records == nil {
		records = []feed.Record{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("sink: marshal records: %w", err)
	}
	return replaceFile(s.path, data)
}

// CSVSink writes the record list as a flat CSV with a header row.
type CSVSink struct {
	path string
}

func NewCSVSink(path string) *CSVSink {
	return &CSVSink{path: path}
}

func (s *CSVSink) Path() string { return s.path }

var csvHeader = []string{
	"permalink", "author_handle", "title", "music",
	"like_count", "comment_count", "thumbnail", "author_avatar_url", "collected_at",
}

func (s *CSVSink) WriteAll(ctx context.Context, records []feed.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rows := make([][]string, 0, len(records)+1)
	rows = append(rows, csvHeader)
	for _, r := range records {
		rows = append(rows, []string{
			r.Permalink,
			r.AuthorHandle,
			r.Title,
			r.Music,
			formatCount(r.LikeCount),
			formatCount(r.CommentCount),
			r.Thumbnail,
			r.AuthorAvatarURL,
			r.CollectedAt.Format(time.RFC3339),
		})
	}
	data, err := encodeCSV(rows)
	if err != nil {
		return fmt.Errorf("sink: encode csv: %w", err)
	}
	return replaceFile(s.path, data)
}

func formatCount(v *int64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatInt(*v, 10)
}

func encodeCSV(rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(rows); err != nil {
		return nil, err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// replaceFile writes via a temp file in the target directory and renames it
// into place.
func replaceFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("sink: create output dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("sink: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sink: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("sink: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("sink: replace %s: %w", path, err)
	}
	return nil
}
