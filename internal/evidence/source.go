package evidence

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"
)

// ErrSourceMissing indicates a bound data file does not exist.
var ErrSourceMissing = errors.New("evidence: data source missing")

// Source is a CSV file with a header row.
type Source struct {
	Path string
}

// Check verifies the file exists and is a regular file.
func (s Source) Check() error {
	info, err := os.Stat(s.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrSourceMissing, s.Path)
	}
	if err != nil {
		return fmt.Errorf("evidence: stat %s: %w", s.Path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrSourceMissing, s.Path)
	}
	return nil
}

// Load reads the whole file. Column names are lower-cased and trimmed.
func (s Source) Load() (Table, error) {
	if err := s.Check(); err != nil {
		return Table{}, err
	}
	f, err := os.Open(s.Path)
	if err != nil {
		return Table{}, fmt.Errorf("evidence: open %s: %w", s.Path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true
	records, err := r.ReadAll()
	if err != nil {
		return Table{}, fmt.Errorf("evidence: parse %s: %w", s.Path, err)
	}
	if len(records) == 0 {
		return Table{}, nil
	}

	header := make([]string, len(records[0]))
	for i, h := range records[0] {
		header[i] = strings.ToLower(strings.TrimSpace(h))
	}
	t := Table{Header: header, Rows: make([]Row, 0, len(records)-1)}
	for _, rec := range records[1:] {
		row := make(Row, len(header))
		for i, col := range header {
			if i < len(rec) {
				row[col] = strings.TrimSpace(rec[i])
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// Row maps a column name to its value.
type Row map[string]string

// Table is a loaded data source.
type Table struct {
	Header []string
	Rows   []Row
}

// Filter returns a table holding the rows for which keep returns true.
func (t Table) Filter(keep func(Row) bool) Table {
	out := Table{Header: t.Header}
	for _, r := range t.Rows {
		if keep(r) {
			out.Rows = append(out.Rows, r)
		}
	}
	return out
}

// Equal matches rows whose column equals value, ignoring case.
func Equal(column, value string) func(Row) bool {
	return func(r Row) bool {
		return strings.EqualFold(r[column], value)
	}
}

// Within matches rows whose date column falls in [from, to].
// Rows with an unparsable date never match.
func Within(column string, from, to time.Time) func(Row) bool {
	return func(r Row) bool {
		d, err := time.Parse(dateLayout, r[column])
		if err != nil {
			return false
		}
		return !d.Before(from) && !d.After(to)
	}
}

// All combines predicates with logical AND.
func All(preds ...func(Row) bool) func(Row) bool {
	return func(r Row) bool {
		for _, p := range preds {
			if !p(r) {
				return false
			}
		}
		return true
	}
}

// Render writes the table as comma-separated text, at most limit rows.
func (t Table) Render(limit int) string {
	if len(t.Rows) == 0 {
		return "(no matching records)"
	}
	var b strings.Builder
	b.WriteString(strings.Join(t.Header, ","))
	b.WriteString("\n")
	for i, r := range t.Rows {
		if i == limit {
			fmt.Fprintf(&b, "... %d more rows omitted\n", len(t.Rows)-limit)
			break
		}
		vals := make([]string, len(t.Header))
		for j, col := range t.Header {
			vals[j] = r[col]
		}
		b.WriteString(strings.Join(vals, ","))
		b.WriteString("\n")
	}
	return b.String()
}
