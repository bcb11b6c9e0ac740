// Package csv decodes delimited source files into tagged structs.
//
// Headers are normalized before matching struct tags: a leading BOM is
// stripped, names are trimmed, renamed through Options.HeaderMap, and
// otherwise lowercased with spaces replaced by underscores. "Product Name"
// therefore matches the tag `csv:"product_name"`.
package csv

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/jszwec/csvutil"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/transform"
)

// Options controls how a source file is read.
type Options struct {
	Comma      rune
	TrimSpace  bool
	LazyQuotes bool
	// HeaderMap renames raw (trimmed) header names before normalization.
	// A lowercased key also matches, since config loaders fold key case.
	HeaderMap map[string]string
	// Encoding is an IANA charset name. Empty or "utf-8" reads bytes as is.
	Encoding string
}

// DefaultOptions returns comma separated, value trimming options.
func DefaultOptions() Options {
	return Options{Comma: ',', TrimSpace: true}
}

// ErrMissingColumns is matched by every *MissingColumnsError.
var ErrMissingColumns = errors.New("csv: missing required columns")

// MissingColumnsError reports the required columns absent from a header.
type MissingColumnsError struct {
	Source  string
	Missing []string
}

func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("csv: %s: missing required columns: %s", e.Source, strings.Join(e.Missing, ", "))
}

func (e *MissingColumnsError) Is(target error) bool { return target == ErrMissingColumns }

// RowError wraps a decode failure with its position.
type RowError struct {
	Source string
	Line   int
	Err    error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("csv: %s line %d: %v", e.Source, e.Line, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

// Columns returns the csv tag names of T, which are the columns a source of
// T must provide.
func Columns[T any]() ([]string, error) {
	var zero T
	return csvutil.Header(zero, "csv")
}

// NormalizeHeader maps one raw header name to its column name.
func NormalizeHeader(h string, first bool, headerMap map[string]string) string {
	if first {
		h = strings.TrimPrefix(h, "\uFEFF")
	}
	h = strings.TrimSpace(h)
	if mapped, ok := headerMap[h]; ok {
		return mapped
	}
	lower := strings.ToLower(h)
	if mapped, ok := headerMap[lower]; ok {
		return mapped
	}
	return strings.ReplaceAll(lower, " ", "_")
}

// CheckHeader reads only the header of src and verifies it carries every
// column of T.
func CheckHeader[T any](src io.ReadCloser, name string, opt Options) error {
	defer src.Close()

	rr, err := newRecordReader(src, opt)
	if err != nil {
		return fmt.Errorf("csv: %s: %w", name, err)
	}
	_, err = readHeader[T](rr, name, opt)
	return err
}

// Each decodes every record of src into T and calls fn with the record's
// line number, in file order. The first error from decoding or from fn stops
// the scan and is returned.
func Each[T any](ctx context.Context, src io.ReadCloser, name string, opt Options, fn func(line int, rec T) error) error {
	defer src.Close()

	rr, err := newRecordReader(src, opt)
	if err != nil {
		return fmt.Errorf("csv: %s: %w", name, err)
	}
	header, err := readHeader[T](rr, name, opt)
	if err != nil {
		return err
	}

	dec, err := csvutil.NewDecoder(rr, header...)
	if err != nil {
		return fmt.Errorf("csv: %s: %w", name, err)
	}
	dec.DisallowMissingColumns = true

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		var rec T
		err := dec.Decode(&rec)
		if err == io.EOF {
			return nil
		}
		line := rr.lastLine
		if err != nil {
			return &RowError{Source: name, Line: line, Err: err}
		}
		if err := fn(line, rec); err != nil {
			return err
		}
	}
}

func readHeader[T any](rr *recordReader, name string, opt Options) ([]string, error) {
	raw, err := rr.cr.Read()
	if err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("csv: %s: empty file, no header", name)
		}
		return nil, fmt.Errorf("csv: %s: read header: %w", name, err)
	}

	header := make([]string, len(raw))
	have := make(map[string]bool, len(raw))
	for i, h := range raw {
		header[i] = NormalizeHeader(h, i == 0, opt.HeaderMap)
		have[header[i]] = true
	}

	required, err := Columns[T]()
	if err != nil {
		return nil, fmt.Errorf("csv: %s: %w", name, err)
	}
	var missing []string
	for _, c := range required {
		if !have[c] {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, &MissingColumnsError{Source: name, Missing: missing}
	}
	return header, nil
}

// recordReader feeds csvutil and trims values when asked to.
type recordReader struct {
	cr       *csv.Reader
	trim     bool
	lastLine int
}

func newRecordReader(src io.Reader, opt Options) (*recordReader, error) {
	r, err := decodeCharset(src, opt.Encoding)
	if err != nil {
		return nil, err
	}

	cr := csv.NewReader(r)
	cr.Comma = opt.Comma
	if cr.Comma == 0 {
		cr.Comma = ','
	}
	cr.LazyQuotes = opt.LazyQuotes
	cr.FieldsPerRecord = -1
	return &recordReader{cr: cr, trim: opt.TrimSpace}, nil
}

func (r *recordReader) Read() ([]string, error) {
	rec, err := r.cr.Read()
	if err != nil {
		var pe *csv.ParseError
		if errors.As(err, &pe) {
			r.lastLine = pe.Line
		}
		return nil, err
	}
	r.lastLine, _ = r.cr.FieldPos(0)
	if r.trim {
		for i := range rec {
			rec[i] = strings.TrimSpace(rec[i])
		}
	}
	return rec, nil
}

func decodeCharset(src io.Reader, name string) (io.Reader, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "utf-8", "utf8":
		return src, nil
	}
	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil {
		return nil, fmt.Errorf("unknown encoding %q: %w", name, err)
	}
	if enc == nil {
		return nil, fmt.Errorf("unsupported encoding %q", name)
	}
	return transform.NewReader(src, enc.NewDecoder()), nil
}
