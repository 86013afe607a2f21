package source

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/tbourn/go-clickstream-warehouse/internal/domain"
)

// ErrMissingColumn is returned when the header of a delimited file lacks one
// of the required raw event columns.
var ErrMissingColumn = errors.New("missing required column")

// Columns is the raw event schema every delimited input must provide.
var Columns = []string{
	"event_time",
	"event_type",
	"product_id",
	"category_id",
	"category_code",
	"brand",
	"price",
	"user_id",
	"user_session",
}

// CSVSource reads raw events from a comma-separated file with a header row.
// Columns are located by name, so extra or reordered columns are tolerated.
type CSVSource struct {
	r      *csv.Reader
	idx    [9]int
	closer io.Closer
	line   int
}

// NewCSVSource reads and validates the header from r.
func NewCSVSource(r io.Reader) (*CSVSource, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("read header: %w", ErrMissingColumn)
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	pos := make(map[string]int, len(header))
	for i, h := range header {
		// Strip a UTF-8 BOM some exporters put before the first column name.
		h = strings.TrimPrefix(h, "\ufeff")
		pos[strings.ToLower(strings.TrimSpace(h))] = i
	}

	s := &CSVSource{r: cr, line: 1}
	for i, col := range Columns {
		p, ok := pos[col]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, col)
		}
		s.idx[i] = p
	}
	return s, nil
}

// OpenCSV opens path and returns a CSVSource that closes the file on Close.
func OpenCSV(path string) (*CSVSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	s, err := NewCSVSource(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	s.closer = f
	return s, nil
}

// Next returns the next record or io.EOF. Short rows yield empty (null)
// values for the missing trailing columns.
func (s *CSVSource) Next() (domain.RawEvent, error) {
	rec, err := s.r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return domain.RawEvent{}, io.EOF
		}
		return domain.RawEvent{}, fmt.Errorf("line %d: %w", s.line+1, err)
	}
	s.line++

	field := func(i int) string {
		p := s.idx[i]
		if p >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[p])
	}
	return domain.RawEvent{
		EventTime:    field(0),
		EventType:    field(1),
		ProductID:    field(2),
		CategoryID:   field(3),
		CategoryCode: field(4),
		Brand:        field(5),
		Price:        field(6),
		UserID:       field(7),
		UserSession:  field(8),
	}, nil
}

// Close releases the underlying file, if any.
func (s *CSVSource) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}
