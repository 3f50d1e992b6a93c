package httpserver

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"asta_radar/internal/app"
	"asta_radar/internal/domain"
)

const maxBodyBytes = 1 << 20

type Handlers struct {
	P *app.ProcessingService
	Q *app.QueryService
}

type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

type entitiesRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	FullText    string `json:"full_text"`
	Text        string `json:"text"`
}

type scoreResponse struct {
	ExternalID string                `json:"external_id,omitempty"`
	Score      float64               `json:"score"`
	Breakdown  domain.ScoreBreakdown `json:"score_breakdown"`
}

func (s *Server) MountHandlers(h *Handlers) {
	s.mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })
	s.mux.Post("/v1/process", h.process)
	s.mux.Post("/v1/extract-entities", h.extractEntities)
	s.mux.Post("/v1/calculate-score", h.calculateScore)
	s.mux.Get("/v1/runs", h.listRuns)
}

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(problem{Type: "about:blank", Title: title, Status: status, Detail: detail}); err != nil {
		log.Error().Err(err).Msg("write JSON problem response failed")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("write JSON response failed")
	}
}

// calcETagAndBody marshals once and hashes once, returning both ETag and body.
func calcETagAndBody(v any) (string, []byte) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal object for ETag/body")
		return "", nil
	}
	sum := sha1.Sum(body)
	return `W/"` + hex.EncodeToString(sum[:]) + `"`, body
}

// readBody reads a bounded request body, writing the problem response itself
// on failure.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	b, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeProblem(w, http.StatusRequestEntityTooLarge, "Body too large", "request body exceeds 1 MiB")
			return nil, false
		}
		writeProblem(w, http.StatusBadRequest, "Unreadable body", err.Error())
		return nil, false
	}
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		writeProblem(w, http.StatusBadRequest, "Empty body", "a JSON body is required")
		return nil, false
	}
	return b, true
}

func decodeRecord(w http.ResponseWriter, b []byte) (domain.AuctionRecord, bool) {
	var rec domain.AuctionRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid record", err.Error())
		return domain.AuctionRecord{}, false
	}
	return rec, true
}

// process accepts one record or an array of records and returns them
// normalized and scored, in input order.
func (h *Handlers) process(w http.ResponseWriter, r *http.Request) {
	b, ok := readBody(w, r)
	if !ok {
		return
	}
	if b[0] == '[' {
		var recs []domain.AuctionRecord
		if err := json.Unmarshal(b, &recs); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid records", err.Error())
			return
		}
		out, err := h.P.ProcessAll(r.Context(), recs)
		if err != nil {
			writeProblem(w, http.StatusServiceUnavailable, "Processing interrupted", err.Error())
			return
		}
		writeJSON(w, http.StatusOK, out)
		return
	}
	rec, ok := decodeRecord(w, b)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.P.Process(rec))
}

func (h *Handlers) extractEntities(w http.ResponseWriter, r *http.Request) {
	b, ok := readBody(w, r)
	if !ok {
		return
	}
	var req entitiesRequest
	if err := json.Unmarshal(b, &req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid request", err.Error())
		return
	}
	if req.Title == "" && req.Description == "" && req.FullText == "" && req.Text == "" {
		writeProblem(w, http.StatusUnprocessableEntity, "No text", "one of title, description, full_text or text is required")
		return
	}
	full := req.FullText
	if req.Text != "" {
		full = req.Text + " " + full
	}
	writeJSON(w, http.StatusOK, h.P.ExtractEntities(req.Title, req.Description, full))
}

func (h *Handlers) calculateScore(w http.ResponseWriter, r *http.Request) {
	b, ok := readBody(w, r)
	if !ok {
		return
	}
	rec, ok := decodeRecord(w, b)
	if !ok {
		return
	}
	s, bd := h.P.Score(rec)
	writeJSON(w, http.StatusOK, scoreResponse{ExternalID: rec.ExternalID, Score: s, Breakdown: bd})
}

func (h *Handlers) listRuns(w http.ResponseWriter, r *http.Request) {
	limit := app.DefaultRunsLimit
	if ls := r.URL.Query().Get("limit"); ls != "" {
		l, err := strconv.Atoi(ls)
		if err != nil || l <= 0 || l > app.MaxRunsLimit {
			writeProblem(w, http.StatusBadRequest, "Invalid limit", "limit must be an integer between 1 and 100")
			return
		}
		limit = l
	}

	out, err := h.Q.ListRuns(r.Context(), limit)
	if err != nil {
		log.Error().Err(err).Msg("list runs failed")
		writeProblem(w, http.StatusServiceUnavailable, "Run log unavailable", "could not read run reports")
		return
	}

	etag, body := calcETagAndBody(out)
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Msg("failed to write listRuns body")
	}
}
