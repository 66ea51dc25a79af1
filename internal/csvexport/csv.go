// Package csvexport renders export results as CSV.
//
// The layout is one row per (asset, timestamp):
//
//	[model_id,] asset_id, asset_name, timestamp, <field>...
//
// model_id is present only when the result covers more than one model. Field
// columns are the sorted union of field names over all rows; a row without a
// field leaves the cell empty. Identical results encode to identical bytes.
package csvexport

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/tejusbharadwaj/univers/internal/export"
	"github.com/tejusbharadwaj/univers/internal/models"
)

// Compression names
const (
	None = ""
	Gzip = "gzip"
	Zstd = "zstd"
)

const ContentType = "text/csv; charset=utf-8"

type Options struct {
	// Compression is None, Gzip or Zstd.
	Compression string
}

func (o Options) validate() error {
	switch o.Compression {
	case None, Gzip, Zstd:
		return nil
	default:
		return fmt.Errorf("unsupported compression type: %s", o.Compression)
	}
}

// Extension is the file suffix for a compression type, including the dot.
func Extension(compression string) string {
	switch compression {
	case Gzip:
		return ".csv.gz"
	case Zstd:
		return ".csv.zst"
	default:
		return ".csv"
	}
}

// Header returns the column names for result.
func Header(result *export.Result) []string {
	var header []string
	if len(result.Models) > 1 {
		header = append(header, "model_id")
	}
	header = append(header, "asset_id", "asset_name", "timestamp")
	return append(header, fieldNames(result.Rows)...)
}

func fieldNames(rows []models.DataRow) []string {
	seen := make(map[string]bool)
	var names []string
	for _, r := range rows {
		for k := range r.Fields {
			if !seen[k] {
				seen[k] = true
				names = append(names, k)
			}
		}
	}
	sort.Strings(names)
	return names
}

// Encode writes result to w.
func Encode(w io.Writer, result *export.Result, opts Options) (err error) {
	if err := opts.validate(); err != nil {
		return err
	}

	switch opts.Compression {
	case Gzip:
		zw := gzip.NewWriter(w)
		defer func() {
			if cerr := zw.Close(); err == nil {
				err = cerr
			}
		}()
		w = zw
	case Zstd:
		zw, zerr := zstd.NewWriter(w)
		if zerr != nil {
			return zerr
		}
		defer func() {
			if cerr := zw.Close(); err == nil {
				err = cerr
			}
		}()
		w = zw
	}

	return encodeCSV(w, result)
}

func encodeCSV(w io.Writer, result *export.Result) error {
	multiModel := len(result.Models) > 1
	fields := fieldNames(result.Rows)

	cw := csv.NewWriter(w)
	if err := cw.Write(Header(result)); err != nil {
		return err
	}

	record := make([]string, 0, 4+len(fields))
	for _, r := range result.Rows {
		record = record[:0]
		if multiModel {
			record = append(record, r.ModelID)
		}
		record = append(record, r.AssetID, r.AssetName, r.Timestamp.UTC().Format(time.RFC3339))
		for _, f := range fields {
			record = append(record, formatValue(r.Fields[f]))
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// Marshal encodes result into memory.
func Marshal(result *export.Result, opts Options) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, result, opts); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteFile encodes result to path, creating parent directories. The file is
// written under a temporary name and renamed into place.
func WriteFile(path string, result *export.Result, opts Options) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := Encode(tmp, result, opts); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

const fileTimeLayout = "20060102T1504Z"

// FileName is the relative output path of an export: a directory named after
// the project holding one file per range.
func FileName(project string, start, end time.Time, compression string) string {
	dir := unsafeChars.ReplaceAllString(project, "_")
	if dir == "" {
		dir = "export"
	}
	name := fmt.Sprintf("%s_%s_%s%s", dir,
		start.UTC().Format(fileTimeLayout), end.UTC().Format(fileTimeLayout), Extension(compression))
	return filepath.Join(dir, name)
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.UTC().Format(time.RFC3339)
	case map[string]any, []any:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	default:
		return fmt.Sprint(x)
	}
}
