package source

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tbourn/go-clickstream-warehouse/internal/domain"
)

const sampleCSV = `event_time,event_type,product_id,category_id,category_code,brand,price,user_id,user_session
2019-10-01 00:00:00 UTC,view,44600062,2103807459595387724,,shiseido,35.79,541312140,72d76fde-8bb3-4e00-8c23-a032dfb62e2e
2019-10-01 00:00:01 UTC,purchase,3900821,2053013552326770905,appliances.environment.water_heater,aqua,33.20,554748717,9333dfbd-b87a-4708-9857-6336556b0fcc
`

func TestCSVSource_ReadsRecordsByHeaderName(t *testing.T) {
	src, err := NewCSVSource(strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatalf("NewCSVSource: %v", err)
	}
	got, err := ReadAll(context.Background(), src)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}
	want := domain.RawEvent{
		EventTime:    "2019-10-01 00:00:01 UTC",
		EventType:    "purchase",
		ProductID:    "3900821",
		CategoryID:   "2053013552326770905",
		CategoryCode: "appliances.environment.water_heater",
		Brand:        "aqua",
		Price:        "33.20",
		UserID:       "554748717",
		UserSession:  "9333dfbd-b87a-4708-9857-6336556b0fcc",
	}
	if got[1] != want {
		t.Fatalf("record mismatch:\n got %+v\nwant %+v", got[1], want)
	}
	if got[0].CategoryCode != "" {
		t.Fatalf("empty column should stay empty, got %q", got[0].CategoryCode)
	}
}

func TestCSVSource_ReorderedAndExtraColumns(t *testing.T) {
	in := "user_session,extra,user_id,price,brand,category_code,category_id,product_id,event_type,event_time\n" +
		"s1,x,u1,1.50,b,c.d,7,p1,cart,2020-01-01 10:00:00 UTC\n"
	src, err := NewCSVSource(strings.NewReader(in))
	if err != nil {
		t.Fatalf("NewCSVSource: %v", err)
	}
	ev, err := src.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if ev.UserSession != "s1" || ev.UserID != "u1" || ev.EventType != "cart" || ev.ProductID != "p1" {
		t.Fatalf("unexpected mapping: %+v", ev)
	}
	if _, err := src.Next(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func TestCSVSource_ShortRowYieldsNulls(t *testing.T) {
	in := strings.Join(Columns, ",") + "\n2020-01-01 10:00:00 UTC,view,p1\n"
	src, err := NewCSVSource(strings.NewReader(in))
	if err != nil {
		t.Fatalf("NewCSVSource: %v", err)
	}
	ev, err := src.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if ev.UserID != "" || ev.UserSession != "" || ev.ProductID != "p1" {
		t.Fatalf("unexpected short row: %+v", ev)
	}
}

func TestCSVSource_MissingColumnIsFatal(t *testing.T) {
	_, err := NewCSVSource(strings.NewReader("event_time,event_type,product_id\n"))
	if !errors.Is(err, ErrMissingColumn) {
		t.Fatalf("expected ErrMissingColumn, got %v", err)
	}
	_, err = NewCSVSource(strings.NewReader(""))
	if !errors.Is(err, ErrMissingColumn) {
		t.Fatalf("expected ErrMissingColumn for empty input, got %v", err)
	}
}

func TestOpenCSV(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "events.csv")
	if err := os.WriteFile(path, []byte(sampleCSV), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	src, err := OpenCSV(path)
	if err != nil {
		t.Fatalf("OpenCSV: %v", err)
	}
	t.Cleanup(func() { _ = src.Close() })

	got, err := ReadAll(context.Background(), src)
	if err != nil || len(got) != 2 {
		t.Fatalf("ReadAll = %d, %v", len(got), err)
	}

	if _, err := OpenCSV(filepath.Join(dir, "nope.csv")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestReadAll_HonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ReadAll(ctx, NewSliceSource([]domain.RawEvent{{EventType: "view"}}))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
