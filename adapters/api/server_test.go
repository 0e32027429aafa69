package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"buurtstat/domain/model"
	"buurtstat/domain/report"
)

func testSummary() *report.Summary {
	return &report.Summary{
		SchemaVersion: report.SchemaVersion,
		RunID:         "run-test-1",
		GeneratedAt:   time.Now().UTC(),
		Sample: report.SampleCounts{
			Respondents: 6000, AnalysisN: 5000,
			Buurten: 320, Wijken: 180, Gemeenten: 40,
		},
		ICC: model.NewICCResult(17.8, 512.4),
		KeyEffect: report.KeyEffectTrack{
			Predictor: "b_perc_low40_hh",
			Models: []model.Coefficient{
				{Label: "m1_key_pred", Estimate: 0.25, SE: 0.05},
			},
			FinalCI: [2]float64{0.152, 0.348},
			CILevel: 0.95,
		},
		Moderation: &report.ModerationResult{
			Moderator:    "wealth_index",
			MainEffect:   model.Coefficient{Label: "b_perc_low40_hh", Estimate: 0.4, SE: 0.08},
			Interaction:  model.Coefficient{Label: "b_perc_low40_hh:wealth_index", Estimate: -0.1, SE: 0.03},
			SimpleSlopes: map[string]float64{"0": 0.4, "4": 0.0},
			Verdict:      report.VerdictSupported,
			N:            4800,
		},
		Comparison: []report.ModelFitRow{
			{Model: "two_level/m0_empty", N: 5000, NClusters: 320, AIC: 41000.2, BIC: 41015.8, Converged: true},
		},
		Validation: []report.MergeCheck{
			{Level: "Buurt", NMatched: 5400, NMissing: 600, PctMatched: 90, Status: "OK"},
		},
	}
}

func writeSummaryFile(t *testing.T, dir string, s *report.Summary) string {
	t.Helper()
	data, err := s.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	path := filepath.Join(dir, "precomputed_results.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	path := writeSummaryFile(t, t.TempDir(), testSummary())
	return NewServer(Config{Port: "0", Source: NewFileSource(path)})
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	w := get(t, newTestServer(t), "/healthz")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("body = %v", body)
	}
}

func TestResultsEndpoint(t *testing.T) {
	w := get(t, newTestServer(t), "/api/results")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	sum, err := report.UnmarshalSummary(w.Body.Bytes())
	if err != nil {
		t.Fatalf("UnmarshalSummary: %v", err)
	}
	if sum.RunID != "run-test-1" || sum.Sample.AnalysisN != 5000 {
		t.Errorf("summary = %+v", sum)
	}
}

func TestSectionEndpoints(t *testing.T) {
	s := newTestServer(t)
	for _, path := range []string{
		"/api/results/sample",
		"/api/results/icc",
		"/api/results/key-effect",
		"/api/results/sensitivity",
		"/api/results/moderation",
		"/api/results/comparison",
		"/api/results/validation",
	} {
		w := get(t, s, path)
		if w.Code != http.StatusOK {
			t.Errorf("%s: status = %d", path, w.Code)
		}
		if ct := w.Header().Get("Content-Type"); ct != "application/json" {
			t.Errorf("%s: content type = %q", path, ct)
		}
	}

	w := get(t, s, "/api/results/icc")
	var icc model.ICCResult
	if err := json.Unmarshal(w.Body.Bytes(), &icc); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if icc.VarBetween != 17.8 {
		t.Errorf("ICC payload = %+v", icc)
	}
}

func TestResultsUnavailable(t *testing.T) {
	missing := NewFileSource(filepath.Join(t.TempDir(), "absent.json"))
	s := NewServer(Config{Port: "0", Source: missing})

	w := get(t, s, "/api/results")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
}

func TestModerationNotRun(t *testing.T) {
	sum := testSummary()
	sum.Moderation = nil
	path := writeSummaryFile(t, t.TempDir(), sum)
	s := NewServer(Config{Port: "0", Source: NewFileSource(path)})

	w := get(t, s, "/api/results/moderation")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestFallbackSource(t *testing.T) {
	missing := NewFileSource(filepath.Join(t.TempDir(), "absent.json"))
	path := writeSummaryFile(t, t.TempDir(), testSummary())
	s := NewServer(Config{Port: "0", Source: missing, Fallback: NewFileSource(path)})

	w := get(t, s, "/api/results")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, fallback should serve results", w.Code)
	}
}

func TestReportPageMissing(t *testing.T) {
	s := NewServer(Config{
		Port:   "0",
		Source: NewFileSource(filepath.Join(t.TempDir(), "absent.json")),
	})
	w := get(t, s, "/")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 without a generated report", w.Code)
	}
}

func TestReportPageServed(t *testing.T) {
	dir := t.TempDir()
	reportPath := filepath.Join(dir, "analysis_report.html")
	if err := os.WriteFile(reportPath, []byte("<html><body>report</body></html>"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	s := NewServer(Config{
		Port:       "0",
		Source:     NewFileSource(filepath.Join(dir, "absent.json")),
		ReportFile: reportPath,
	})
	w := get(t, s, "/")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestProcessedTableServed(t *testing.T) {
	dir := t.TempDir()
	tablePath := filepath.Join(dir, "analysis_ready.csv")
	if err := os.WriteFile(tablePath, []byte("buurt_id,DV_single\n03630100,57.5\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	s := NewServer(Config{
		Port:      "0",
		Source:    NewFileSource(filepath.Join(dir, "absent.json")),
		TableFile: tablePath,
	})

	w := get(t, s, "/api/table")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/csv" {
		t.Errorf("Content-Type = %q, want text/csv", ct)
	}
	if !strings.Contains(w.Body.String(), "03630100") {
		t.Errorf("body missing table row: %q", w.Body.String())
	}
}

func TestProcessedTableMissing(t *testing.T) {
	s := NewServer(Config{
		Port:   "0",
		Source: NewFileSource(filepath.Join(t.TempDir(), "absent.json")),
	})
	w := get(t, s, "/api/table")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 without a processed table", w.Code)
	}
}

func TestFileSourceCaching(t *testing.T) {
	dir := t.TempDir()
	path := writeSummaryFile(t, dir, testSummary())
	src := NewFileSource(path)

	first, err := src.LatestSummary(context.Background())
	if err != nil {
		t.Fatalf("LatestSummary: %v", err)
	}
	second, err := src.LatestSummary(context.Background())
	if err != nil {
		t.Fatalf("LatestSummary: %v", err)
	}
	if first != second {
		t.Error("unchanged file should serve the cached summary")
	}

	// Rewrite with a new run and bump the mtime past filesystem
	// granularity.
	updated := testSummary()
	updated.RunID = "run-test-2"
	writeSummaryFile(t, dir, updated)
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}

	third, err := src.LatestSummary(context.Background())
	if err != nil {
		t.Fatalf("LatestSummary: %v", err)
	}
	if third.RunID != "run-test-2" {
		t.Errorf("run id = %q, want reloaded run-test-2", third.RunID)
	}
}
