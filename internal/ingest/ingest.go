// Package ingest turns an uploaded feedback file into triage items.
//
// Files named *.csv are read as a table: the "feedback" column if the header
// has one, else the first column. Anything else is read as plain text with
// one item per non-blank line. Values are trimmed and blanks dropped in both
// cases. Item IDs are assigned 1-based in file order.
package ingest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/linnemanlabs/fbtriage/internal/triage"
)

// FeedbackColumn is the preferred CSV column name. Matching is case-sensitive.
const FeedbackColumn = "feedback"

var (
	errEmpty       = errors.New("no feedback items found")
	errInvalidUTF8 = errors.New("input is not valid UTF-8")
	errNoHeader    = errors.New("csv has no header row")
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Parse reads all of r and splits it into feedback items according to name's
// extension. Every failure is a *triage.InputParseError.
func Parse(name string, r io.Reader) ([]triage.FeedbackItem, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &triage.InputParseError{Name: name, Err: fmt.Errorf("read: %w", err)}
	}
	data = bytes.TrimPrefix(data, utf8BOM)
	if !utf8.Valid(data) {
		return nil, &triage.InputParseError{Name: name, Err: errInvalidUTF8}
	}

	var texts []string
	if IsCSV(name) {
		texts, err = parseCSV(data)
	} else {
		texts = parseLines(data)
	}
	if err != nil {
		return nil, &triage.InputParseError{Name: name, Err: err}
	}
	if len(texts) == 0 {
		return nil, &triage.InputParseError{Name: name, Err: errEmpty}
	}
	return triage.NewItems(texts), nil
}

// IsCSV reports whether name is treated as tabular input.
func IsCSV(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".csv")
}

// lineEndings folds CRLF and lone CR line breaks into LF.
var lineEndings = strings.NewReplacer("\r\n", "\n", "\r", "\n")

func parseLines(data []byte) []string {
	var out []string
	for line := range strings.Lines(lineEndings.Replace(string(data))) {
		if s := strings.TrimSpace(line); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func parseCSV(data []byte) ([]string, error) {
	cr := csv.NewReader(bytes.NewReader(data))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, errNoHeader
	}
	if err != nil {
		return nil, fmt.Errorf("csv header: %w", err)
	}

	col := slices.Index(header, FeedbackColumn)
	if col < 0 {
		col = 0
	}

	var out []string
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csv: %w", err)
		}
		if col >= len(rec) {
			continue
		}
		if s := strings.TrimSpace(rec[col]); s != "" {
			out = append(out, s)
		}
	}
	return out, nil
}
