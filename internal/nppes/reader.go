package nppes

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// ErrMissingNPIColumn is returned when the header row has no NPI column.
var ErrMissingNPIColumn = errors.New("nppes: header has no NPI column")

var bomUTF8 = []byte{0xEF, 0xBB, 0xBF}

// Record is one raw feed row bound to the reader's header mapping. Line is the
// 1-based row number with the header as row 1.
type Record struct {
	Line   int
	values []string
	index  map[string]int
}

// Get returns the trimmed value of f, or "" when the column is absent.
func (r Record) Get(f Field) string {
	i, ok := r.index[f.Column]
	if !ok || i >= len(r.values) {
		return ""
	}
	return strings.TrimSpace(r.values[i])
}

// Has reports whether the header row carried f.
func (r Record) Has(f Field) bool {
	_, ok := r.index[f.Column]
	return ok
}

// Reader streams feed rows from a delimited file with a header row. Columns
// are matched by NPPES header name or by staging column name, case-insensitively.
// Bytes that are not valid UTF-8 are decoded as ISO-8859-1.
type Reader struct {
	csv      *csv.Reader
	index    map[string]int
	fallback *latin1Fallback
	line     int
}

// NewReader reads the header row from r and builds the column mapping.
func NewReader(r io.Reader) (*Reader, error) {
	br := bufio.NewReader(r)
	if head, _ := br.Peek(len(bomUTF8)); bytes.Equal(head, bomUTF8) {
		_, _ = br.Discard(len(bomUTF8))
	}

	fb := &latin1Fallback{}
	cr := csv.NewReader(transform.NewReader(br, fb))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty file: no header row found")
		}
		return nil, fmt.Errorf("read header row: %w", err)
	}

	index := mapHeader(header)
	if _, ok := index[FieldNPI.Column]; !ok {
		return nil, ErrMissingNPIColumn
	}
	return &Reader{csv: cr, index: index, fallback: fb, line: 1}, nil
}

// Next returns the next record, or io.EOF after the last one.
func (r *Reader) Next() (Record, error) {
	values, err := r.csv.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Record{}, io.EOF
		}
		r.line++
		return Record{Line: r.line}, fmt.Errorf("line %d: %w", r.line, err)
	}
	r.line++
	return Record{Line: r.line, values: values, index: r.index}, nil
}

// IsRowError reports whether err from Next concerns a single malformed row,
// after which reading can continue.
func IsRowError(err error) bool {
	var pe *csv.ParseError
	return errors.As(err, &pe)
}

// Columns reports how many known fields the header row mapped.
func (r *Reader) Columns() int {
	return len(r.index)
}

// Latin1Bytes reports how many bytes so far were decoded as ISO-8859-1.
func (r *Reader) Latin1Bytes() int {
	return r.fallback.replaced
}

func mapHeader(header []string) map[string]int {
	byName := make(map[string]string)
	for _, f := range StagingFields() {
		byName[headerKey(f.Column)] = f.Column
		byName[headerKey(f.Header)] = f.Column
		for _, alias := range f.Aliases {
			byName[headerKey(alias)] = f.Column
		}
	}

	index := make(map[string]int)
	for i, h := range header {
		col, ok := byName[headerKey(h)]
		if !ok {
			continue
		}
		if _, dup := index[col]; !dup {
			index[col] = i
		}
	}
	return index
}

func headerKey(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// CountRows counts data rows (excluding the header) in the file at path.
// Used to estimate remaining time; quoted newlines are handled by the CSV
// parser so the count matches what Reader yields.
func CountRows(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	cr := csv.NewReader(bufio.NewReaderSize(f, 1<<20))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = true

	n := -1
	for {
		_, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if !errors.As(err, &pe) {
				return 0, err
			}
		}
		n++
	}
	if n < 0 {
		n = 0
	}
	return n, nil
}

// latin1Fallback passes valid UTF-8 through and re-encodes every invalid byte
// as the ISO-8859-1 code point of the same value.
type latin1Fallback struct {
	transform.NopResetter
	replaced int
}

func (t *latin1Fallback) Transform(dst, src []byte, atEOF bool) (nDst, nSrc int, err error) {
	for nSrc < len(src) {
		c := src[nSrc]
		if c < utf8.RuneSelf {
			if nDst >= len(dst) {
				return nDst, nSrc, transform.ErrShortDst
			}
			dst[nDst] = c
			nDst++
			nSrc++
			continue
		}

		r, size := utf8.DecodeRune(src[nSrc:])
		if r == utf8.RuneError && size == 1 {
			if !atEOF && !utf8.FullRune(src[nSrc:]) {
				return nDst, nSrc, transform.ErrShortSrc
			}
			r = charmap.ISO8859_1.DecodeByte(c)
			t.replaced++
		}
		if nDst+utf8.RuneLen(r) > len(dst) {
			return nDst, nSrc, transform.ErrShortDst
		}
		nDst += utf8.EncodeRune(dst[nDst:], r)
		nSrc += size
	}
	return nDst, nSrc, nil
}
