package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/tbourn/go-clickstream-warehouse/internal/analytics"
	"github.com/tbourn/go-clickstream-warehouse/internal/domain"
	"github.com/tbourn/go-clickstream-warehouse/internal/etl"
)

const sampleCSV = "event_time,event_type,product_id,category_id,category_code,brand,price,user_id,user_session\n" +
	"2019-10-01 09:00:00 UTC,view,p1,1,electronics.phone,acme,1200.50,u1,s1\n" +
	"2019-10-01 09:10:00 UTC,purchase,p1,1,electronics.phone,acme,1200.50,u1,s1\n" +
	"2019-10-02 11:00:00 UTC,purchase,p2,2,home.lamp,lumo,20,u2,s2\n"

func sampleReport(t *testing.T) *analytics.Report {
	t.Helper()
	src := []domain.RawEvent{
		{EventTime: "2019-10-01 09:00:00 UTC", EventType: "view", ProductID: "p1", CategoryCode: "electronics.phone", Brand: "acme", Price: "1200.50", UserID: "u1", UserSession: "s1"},
		{EventTime: "2019-10-01 09:10:00 UTC", EventType: "purchase", ProductID: "p1", CategoryCode: "electronics.phone", Brand: "acme", Price: "1200.50", UserID: "u1", UserSession: "s1"},
	}
	rep, err := analytics.BuildReport(analytics.FromResult(etl.Pipeline{}.Build(context.Background(), src)))
	if err != nil {
		t.Fatalf("BuildReport: %v", err)
	}
	return rep
}

func TestWriteReport_Formats(t *testing.T) {
	rep := sampleReport(t)
	run := &domain.ETLRun{ID: "run-1", Source: "events.csv"}

	var buf bytes.Buffer
	if err := writeReport(&buf, rep, run, "json"); err != nil {
		t.Fatalf("json: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil || doc["run_id"] != "run-1" {
		t.Fatalf("bad json output: %v %s", err, buf.String())
	}

	buf.Reset()
	if err := writeReport(&buf, rep, run, "YAML"); err != nil {
		t.Fatalf("yaml: %v", err)
	}
	var ydoc struct {
		RunID  string `yaml:"run_id"`
		Report struct {
			PurchasingUsers int `yaml:"purchasing_users"`
		} `yaml:"report"`
	}
	if err := yaml.Unmarshal(buf.Bytes(), &ydoc); err != nil || ydoc.RunID != "run-1" || ydoc.Report.PurchasingUsers != 1 {
		t.Fatalf("bad yaml output: %v %s", err, buf.String())
	}

	buf.Reset()
	if err := writeReport(&buf, rep, run, "text"); err != nil {
		t.Fatalf("text: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"Run run-1 (events.csv)", "1,200.50", "Funnel", "conversion"} {
		if !strings.Contains(out, want) {
			t.Fatalf("text output missing %q:\n%s", want, out)
		}
	}

	if err := writeReport(&buf, rep, run, "xml"); err == nil {
		t.Fatalf("expected error for unknown format")
	}
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	defer rootCmd.SetArgs(nil)

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("version: %v", err)
	}
	if got := strings.TrimSpace(out.String()); got != "warehouse "+version {
		t.Fatalf("version output = %q", got)
	}
}

func TestBootstrap_EnvFile(t *testing.T) {
	dir := t.TempDir()
	env := filepath.Join(dir, ".env")
	if err := os.WriteFile(env, []byte("PRODUCT_KEY=id\nLOG_LEVEL=error\n"), 0o644); err != nil {
		t.Fatalf("write env: %v", err)
	}
	t.Setenv("PRODUCT_KEY", "")
	os.Unsetenv("PRODUCT_KEY")
	t.Setenv("LOG_LEVEL", "warn") // environment wins over the file

	if err := bootstrap(env); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if cfg.ETL.ProductKey != "id" || cfg.LogLevel != "warn" {
		t.Fatalf("unexpected config: key=%q level=%q", cfg.ETL.ProductKey, cfg.LogLevel)
	}

	if err := bootstrap(filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("missing env file must be ignored: %v", err)
	}
}

func TestETLThenReport(t *testing.T) {
	dir := t.TempDir()
	events := filepath.Join(dir, "events.csv")
	if err := os.WriteFile(events, []byte(sampleCSV), 0o644); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_DSN", filepath.Join(dir, "warehouse.db"))
	t.Setenv("LOG_LEVEL", "error")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	defer rootCmd.SetArgs(nil)

	rootCmd.SetArgs([]string{"etl", "--env-file", "", "--file", events})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("etl: %v", err)
	}
	var sum struct {
		Run struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"run"`
	}
	if err := json.Unmarshal(out.Bytes(), &sum); err != nil || sum.Run.ID == "" {
		t.Fatalf("bad etl output: %v %s", err, out.String())
	}

	out.Reset()
	rootCmd.SetArgs([]string{"report", "--env-file", "", "--format", "json"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("report: %v", err)
	}
	var doc struct {
		RunID  string `json:"run_id"`
		Report struct {
			TotalRevenue string `json:"total_revenue"`
		} `json:"report"`
	}
	if err := json.Unmarshal(out.Bytes(), &doc); err != nil {
		t.Fatalf("json: %v %s", err, out.String())
	}
	if doc.RunID != sum.Run.ID || doc.Report.TotalRevenue != "1220.5" {
		t.Fatalf("unexpected report: %+v", doc)
	}
}

func TestExport_RequiresDSN(t *testing.T) {
	rootCmd.SetArgs([]string{"export", "--env-file", ""})
	defer rootCmd.SetArgs(nil)
	rootCmd.SetErr(&bytes.Buffer{})
	if err := rootCmd.Execute(); err == nil || !strings.Contains(err.Error(), "--pg-dsn") {
		t.Fatalf("expected missing dsn error, got %v", err)
	}
}
