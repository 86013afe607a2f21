package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-clickstream-warehouse/internal/analytics"
	"github.com/tbourn/go-clickstream-warehouse/internal/domain"
	"github.com/tbourn/go-clickstream-warehouse/internal/etl"
	"github.com/tbourn/go-clickstream-warehouse/internal/services"
)

// ----- Fakes -----

type fakeReports struct {
	model *analytics.Model
	run   *domain.ETLRun
	err   error

	spanPage, spanSize int
}

func (f *fakeReports) Model(ctx context.Context) (*analytics.Model, *domain.ETLRun, error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	return f.model, f.run, nil
}

func (f *fakeReports) Report(ctx context.Context) (*analytics.Report, *domain.ETLRun, error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	rep, err := analytics.BuildReport(f.model)
	return rep, f.run, err
}

func (f *fakeReports) PurchaseSpans(ctx context.Context, page, pageSize int) ([]analytics.PurchaseSpan, int64, error) {
	f.spanPage, f.spanSize = page, pageSize
	all := f.model.PurchaseSpans()
	return all[:1], int64(len(all)), nil
}

type fakeWarehouse struct {
	runSum   *services.RunSummary
	runErr   error
	runPath  string
	audit    etl.IntegrityReport
	auditErr error

	runs               []domain.ETLRun
	total              int64
	listPage, listSize int
}

func (f *fakeWarehouse) RunFile(ctx context.Context, path string) (*services.RunSummary, error) {
	f.runPath = path
	return f.runSum, f.runErr
}

func (f *fakeWarehouse) Integrity(ctx context.Context) (etl.IntegrityReport, error) {
	return f.audit, f.auditErr
}

func (f *fakeWarehouse) ListRuns(ctx context.Context, page, pageSize int) ([]domain.ETLRun, int64, error) {
	f.listPage, f.listSize = page, pageSize
	return f.runs, f.total, nil
}

// ----- Helpers -----

func raw(typ, user, product, price, at string) domain.RawEvent {
	return domain.RawEvent{
		EventTime:    at + " UTC",
		EventType:    typ,
		ProductID:    product,
		CategoryCode: "electronics.phone",
		Brand:        "acme",
		Price:        price,
		UserID:       user,
		UserSession:  "s-" + user,
	}
}

func sampleModel(t *testing.T) *analytics.Model {
	t.Helper()
	res := etl.Pipeline{}.Build(context.Background(), []domain.RawEvent{
		raw("view", "u1", "p1", "10.50", "2019-10-01 09:00:00"),
		raw("purchase", "u1", "p1", "10.50", "2019-10-01 09:10:00"),
		raw("purchase", "u2", "p2", "20", "2019-10-03 12:00:00"),
		raw("return", "u1", "p1", "10.50", "2019-10-05 12:00:00"),
	})
	if !res.Integrity.Clean() {
		t.Fatalf("unexpected integrity violations: %+v", res.Integrity)
	}
	return analytics.FromResult(res)
}

func newRouter(h *Handlers) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/reports", h.Report)
	r.GET("/reports/revenue", h.Revenue)
	r.GET("/reports/revenue/monthly", h.MonthlyRevenue)
	r.GET("/reports/revenue/weekday", h.WeekdayRevenue)
	r.GET("/reports/brands/top", h.TopBrands)
	r.GET("/reports/categories/top-returned", h.TopReturnedCategories)
	r.GET("/reports/products/top-avg-price", h.TopAvgPriceProducts)
	r.GET("/reports/users/spans", h.PurchaseSpans)
	r.GET("/reports/users/purchased-then-returned", h.PurchasedThenReturned)
	r.GET("/reports/conversion", h.Conversion)
	r.GET("/reports/returns/monthly", h.MonthlyReturns)
	r.GET("/reports/funnel", h.Funnel)
	r.GET("/reports/segments", h.Segments)
	r.GET("/reports/cohorts", h.Cohorts)
	r.GET("/warehouse/integrity", h.Integrity)
	r.GET("/warehouse/runs", h.ListRuns)
	r.POST("/warehouse/runs", h.StartRun)
	return r
}

func do(r http.Handler, method, target string, hdr http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for k, vs := range hdr {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("json: %v (%s)", err, w.Body.String())
	}
	return v
}

// ----- Report endpoints -----

func TestReports_AllEndpointsServeLatestRun(t *testing.T) {
	rep := &fakeReports{model: sampleModel(t), run: &domain.ETLRun{ID: "run-7"}}
	r := newRouter(New(&fakeWarehouse{}, rep, "events.csv"))

	for _, path := range []string{
		"/reports",
		"/reports/revenue",
		"/reports/revenue/monthly",
		"/reports/revenue/weekday",
		"/reports/brands/top",
		"/reports/categories/top-returned",
		"/reports/users/purchased-then-returned",
		"/reports/conversion",
		"/reports/returns/monthly",
		"/reports/funnel",
		"/reports/segments",
		"/reports/cohorts",
	} {
		w := do(r, http.MethodGet, path, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("%s: status=%d body=%s", path, w.Code, w.Body.String())
		}
		body := decode[map[string]any](t, w)
		if body["run_id"] != "run-7" || body["data"] == nil {
			t.Fatalf("%s: unexpected envelope %v", path, body)
		}
		if w.Header().Get("ETag") != `W/"run:run-7"` {
			t.Fatalf("%s: etag=%q", path, w.Header().Get("ETag"))
		}
	}
}

func TestReports_Revenue(t *testing.T) {
	rep := &fakeReports{model: sampleModel(t), run: &domain.ETLRun{ID: "r"}}
	r := newRouter(New(&fakeWarehouse{}, rep, ""))

	w := do(r, http.MethodGet, "/reports/revenue", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	var body struct {
		Data struct {
			TotalRevenue      string  `json:"total_revenue"`
			PurchasingUsers   int     `json:"purchasing_users"`
			AverageOrderValue *string `json:"average_order_value"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("json: %v", err)
	}
	if body.Data.TotalRevenue != "30.5" || body.Data.PurchasingUsers != 2 {
		t.Fatalf("unexpected revenue: %+v", body.Data)
	}
	if body.Data.AverageOrderValue == nil || *body.Data.AverageOrderValue != "15.25" {
		t.Fatalf("unexpected aov: %v", body.Data.AverageOrderValue)
	}
}

func TestReports_NotModifiedForSameRun(t *testing.T) {
	rep := &fakeReports{model: sampleModel(t), run: &domain.ETLRun{ID: "r1"}}
	r := newRouter(New(&fakeWarehouse{}, rep, ""))

	hdr := http.Header{"If-None-Match": []string{`W/"run:r1"`}}
	if w := do(r, http.MethodGet, "/reports/funnel", hdr); w.Code != http.StatusNotModified {
		t.Fatalf("status=%d; want 304", w.Code)
	}

	rep.run = &domain.ETLRun{ID: "r2"}
	if w := do(r, http.MethodGet, "/reports/funnel", hdr); w.Code != http.StatusOK {
		t.Fatalf("status=%d; want 200 after a new run", w.Code)
	}
}

func TestReports_NoWarehouse(t *testing.T) {
	r := newRouter(New(&fakeWarehouse{}, &fakeReports{err: services.ErrNoWarehouse}, ""))

	w := do(r, http.MethodGet, "/reports/funnel", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status=%d", w.Code)
	}
	if er := decode[ErrorResponse](t, w); er.Code != ErrCodeNoWarehouse {
		t.Fatalf("code=%q", er.Code)
	}
}

func TestReports_UndefinedMetrics(t *testing.T) {
	res := etl.Pipeline{}.Build(context.Background(), []domain.RawEvent{
		raw("cart", "u1", "p1", "5", "2019-10-01 09:00:00"),
	})
	rep := &fakeReports{model: analytics.FromResult(res), run: &domain.ETLRun{ID: "r"}}
	r := newRouter(New(&fakeWarehouse{}, rep, ""))

	// no views: conversion is undefined
	w := do(r, http.MethodGet, "/reports/conversion", nil)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("conversion status=%d", w.Code)
	}
	if er := decode[ErrorResponse](t, w); er.Code != ErrCodeMetricUndefined {
		t.Fatalf("code=%q", er.Code)
	}

	// no product purchased more than five times
	if w := do(r, http.MethodGet, "/reports/products/top-avg-price", nil); w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("top-avg-price status=%d", w.Code)
	}

	// composite endpoints embed null
	w = do(r, http.MethodGet, "/reports/revenue", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("revenue status=%d", w.Code)
	}
	var body struct {
		Data map[string]any `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("json: %v", err)
	}
	if v, ok := body.Data["average_order_value"]; !ok || v != nil {
		t.Fatalf("expected null aov, got %v", body.Data)
	}
}

func TestReports_TopBrandsClampsN(t *testing.T) {
	rep := &fakeReports{model: sampleModel(t), run: &domain.ETLRun{ID: "r"}}
	r := newRouter(New(&fakeWarehouse{}, rep, ""))

	w := do(r, http.MethodGet, "/reports/brands/top?n=0", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	var body struct {
		Data []analytics.BrandCount `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("json: %v", err)
	}
	if len(body.Data) != 1 || body.Data[0].Brand != "acme" {
		t.Fatalf("unexpected brands: %+v", body.Data)
	}
}

func TestReports_PurchaseSpansPagination(t *testing.T) {
	rep := &fakeReports{model: sampleModel(t), run: &domain.ETLRun{ID: "r"}}
	r := newRouter(New(&fakeWarehouse{}, rep, ""))

	w := do(r, http.MethodGet, "/reports/users/spans?page=0&page_size=1000", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if rep.spanPage != 1 || rep.spanSize != maxPageSize {
		t.Fatalf("pagination not clamped: page=%d size=%d", rep.spanPage, rep.spanSize)
	}
	resp := decode[SpansResponse](t, w)
	if resp.RunID != "r" || len(resp.Spans) != 1 || resp.Pagination.Total != 2 || resp.Pagination.TotalPages != 1 {
		t.Fatalf("unexpected spans response: %+v", resp)
	}
}

// ----- Warehouse endpoints -----

func TestWarehouse_Integrity(t *testing.T) {
	wh := &fakeWarehouse{audit: etl.IntegrityReport{Facts: 4, Columns: []etl.ColumnIntegrity{{Column: etl.ColProductKey, Orphans: 2}}}}
	r := newRouter(New(wh, &fakeReports{}, ""))

	w := do(r, http.MethodGet, "/warehouse/integrity", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	resp := decode[IntegrityResponse](t, w)
	if resp.Clean || resp.Violations != 2 {
		t.Fatalf("unexpected integrity: %+v", resp)
	}

	wh.auditErr = services.ErrNoWarehouse
	if w := do(r, http.MethodGet, "/warehouse/integrity", nil); w.Code != http.StatusNotFound {
		t.Fatalf("status=%d; want 404", w.Code)
	}
}

func TestWarehouse_ListRuns(t *testing.T) {
	wh := &fakeWarehouse{
		runs:  []domain.ETLRun{{ID: "b"}, {ID: "a"}},
		total: 5,
	}
	r := newRouter(New(wh, &fakeReports{}, ""))

	w := do(r, http.MethodGet, "/warehouse/runs?page=2&page_size=2", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if wh.listPage != 2 || wh.listSize != 2 {
		t.Fatalf("paging passed through wrong: %d/%d", wh.listPage, wh.listSize)
	}
	resp := decode[ListRunsResponse](t, w)
	if len(resp.Runs) != 2 || resp.Pagination.TotalPages != 3 || !resp.Pagination.HasNext {
		t.Fatalf("unexpected list response: %+v", resp)
	}
}

func TestWarehouse_StartRun(t *testing.T) {
	sum := &services.RunSummary{Run: &domain.ETLRun{ID: "new"}}
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"success", nil, http.StatusCreated, ""},
		{"integrity gate", services.ErrIntegrity, http.StatusUnprocessableEntity, ErrCodeETLFailed},
		{"in progress", services.ErrRunInProgress, http.StatusConflict, ErrCodeConflict},
		{"other", errors.New("open events.csv: no such file"), http.StatusInternalServerError, ErrCodeETLFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			wh := &fakeWarehouse{runSum: sum, runErr: tc.err}
			r := newRouter(New(wh, &fakeReports{}, "data/events.csv"))

			w := do(r, http.MethodPost, "/warehouse/runs", nil)
			if w.Code != tc.status {
				t.Fatalf("status=%d want %d (%s)", w.Code, tc.status, w.Body.String())
			}
			if wh.runPath != "data/events.csv" {
				t.Fatalf("run path=%q", wh.runPath)
			}
			if tc.code != "" {
				if er := decode[ErrorResponse](t, w); er.Code != tc.code {
					t.Fatalf("code=%q want %q", er.Code, tc.code)
				}
			}
		})
	}
}
