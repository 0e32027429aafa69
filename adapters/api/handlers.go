package api

import (
	"encoding/json"
	"log"
	"net/http"
	"os"
	"time"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	sum, err := s.summary(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "results not available", err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleSample(w http.ResponseWriter, r *http.Request) {
	sum, err := s.summary(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "results not available", err)
		return
	}
	writeJSON(w, http.StatusOK, sum.Sample)
}

func (s *Server) handleICC(w http.ResponseWriter, r *http.Request) {
	sum, err := s.summary(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "results not available", err)
		return
	}
	writeJSON(w, http.StatusOK, sum.ICC)
}

func (s *Server) handleKeyEffect(w http.ResponseWriter, r *http.Request) {
	sum, err := s.summary(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "results not available", err)
		return
	}
	out := map[string]any{"two_level": sum.KeyEffect}
	if sum.FourLevel != nil {
		out["four_level"] = sum.FourLevel
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSensitivity(w http.ResponseWriter, r *http.Request) {
	sum, err := s.summary(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "results not available", err)
		return
	}
	writeJSON(w, http.StatusOK, sum.Sensitivity)
}

func (s *Server) handleModeration(w http.ResponseWriter, r *http.Request) {
	sum, err := s.summary(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "results not available", err)
		return
	}
	if sum.Moderation == nil {
		writeError(w, http.StatusNotFound, "moderation test was not run", nil)
		return
	}
	writeJSON(w, http.StatusOK, sum.Moderation)
}

func (s *Server) handleComparison(w http.ResponseWriter, r *http.Request) {
	sum, err := s.summary(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "results not available", err)
		return
	}
	writeJSON(w, http.StatusOK, sum.Comparison)
}

func (s *Server) handleValidation(w http.ResponseWriter, r *http.Request) {
	sum, err := s.summary(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "results not available", err)
		return
	}
	writeJSON(w, http.StatusOK, sum.Validation)
}

func (s *Server) handleReportPage(w http.ResponseWriter, r *http.Request) {
	s.serveHTMLFile(w, r, s.reportFile, "analysis report not generated yet")
}

func (s *Server) handleRegressionTable(w http.ResponseWriter, r *http.Request) {
	s.serveHTMLFile(w, r, s.regressionFile, "regression table not generated yet")
}

func (s *Server) handleTable(w http.ResponseWriter, r *http.Request) {
	if s.tableFile == "" {
		writeError(w, http.StatusNotFound, "processed table not generated yet", nil)
		return
	}
	if _, err := os.Stat(s.tableFile); err != nil {
		writeError(w, http.StatusNotFound, "processed table not generated yet", err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	http.ServeFile(w, r, s.tableFile)
}

func (s *Server) serveHTMLFile(w http.ResponseWriter, r *http.Request, path, missingMsg string) {
	if path == "" {
		writeError(w, http.StatusNotFound, missingMsg, nil)
		return
	}
	if _, err := os.Stat(path); err != nil {
		writeError(w, http.StatusNotFound, missingMsg, err)
		return
	}
	http.ServeFile(w, r, path)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[API] Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string, err error) {
	if err != nil {
		log.Printf("[API] %s: %v", msg, err)
	}
	writeJSON(w, status, map[string]string{"error": msg})
}
