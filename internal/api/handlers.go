package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"newsroom/internal/digest"
	"newsroom/internal/domain"
	"newsroom/internal/storage"
)

type scrapeResponse struct {
	Sources    []domain.ScrapeReport `json:"sources"`
	LinksFound int                   `json:"links_found"`
	Added      int                   `json:"articles_added"`
	Skipped    int                   `json:"articles_skipped"`
}

// decodeToggles reads an optional enrichment-override body. An empty body
// means "use each source's own toggles".
func decodeToggles(r *http.Request) (*domain.EnrichmentToggles, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 4096))
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return nil, nil
	}
	var toggles domain.EnrichmentToggles
	if err := json.Unmarshal(body, &toggles); err != nil {
		return nil, err
	}
	return &toggles, nil
}

func (s *Server) handleScrapeAll(w http.ResponseWriter, r *http.Request) {
	toggles, err := decodeToggles(r)
	if err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	reports, err := s.runner.RunAll(r.Context(), toggles)
	if err != nil {
		s.logger.Error("full scrape failed", zap.Error(err))
		s.respondWithError(w, http.StatusInternalServerError, "Scrape run failed")
		return
	}

	s.respondWithJSON(w, http.StatusOK, summarize(reports))
}

func (s *Server) handleScrapeSource(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "sourceID"), 10, 64)
	if err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid source id")
		return
	}

	toggles, err := decodeToggles(r)
	if err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	report, err := s.runner.RunSourceByID(r.Context(), id, toggles)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondWithError(w, http.StatusNotFound, "Source not found")
			return
		}
		s.logger.Error("source scrape failed", zap.Int64("source_id", id), zap.Error(err))
		s.respondWithError(w, http.StatusInternalServerError, "Scrape run failed")
		return
	}

	s.respondWithJSON(w, http.StatusOK, summarize([]domain.ScrapeReport{report}))
}

func (s *Server) handleDigest(w http.ResponseWriter, r *http.Request) {
	edition, err := s.digester.Generate(r.Context())
	if err != nil {
		if errors.Is(err, digest.ErrNoArticles) {
			s.respondWithError(w, http.StatusConflict, "No articles in the digest window")
			return
		}
		s.logger.Error("digest generation failed", zap.Error(err))
		s.respondWithError(w, http.StatusInternalServerError, "Digest generation failed: "+err.Error())
		return
	}

	s.respondWithJSON(w, http.StatusOK, map[string]any{
		"message":      "Digest edition published",
		"edition_id":   edition.ID,
		"published_on": edition.PublishedOn.Format("2006-01-02"),
	})
}

type narrationCallback struct {
	TaskID   string `json:"task_id"`
	AudioURL string `json:"audio_url"`
}

// handleNarrationCallback completes a pending synthesis task. The pipeline
// persists the task handle and never blocks on this arriving.
func (s *Server) handleNarrationCallback(w http.ResponseWriter, r *http.Request) {
	var cb narrationCallback
	if err := json.NewDecoder(r.Body).Decode(&cb); err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if cb.TaskID == "" || cb.AudioURL == "" {
		s.respondWithError(w, http.StatusBadRequest, "task_id and audio_url are required")
		return
	}

	if err := s.pgStore.CompleteNarration(r.Context(), cb.TaskID, cb.AudioURL); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondWithError(w, http.StatusNotFound, "Unknown narration task")
			return
		}
		s.logger.Error("failed to complete narration", zap.String("task_id", cb.TaskID), zap.Error(err))
		s.respondWithError(w, http.StatusInternalServerError, "Could not store narration result")
		return
	}

	s.respondWithJSON(w, http.StatusOK, map[string]string{"message": "Narration stored"})
}

func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	healthStatus := make(map[string]string)

	if err := s.pgStore.Ping(ctx); err != nil {
		healthStatus["postgres"] = "unhealthy"
		s.logger.Error("health check failed for postgres", zap.Error(err))
	} else {
		healthStatus["postgres"] = "healthy"
	}

	if err := s.redisStore.Ping(ctx); err != nil {
		healthStatus["redis"] = "unhealthy"
		s.logger.Error("health check failed for redis", zap.Error(err))
	} else {
		healthStatus["redis"] = "healthy"
	}

	if healthStatus["postgres"] != "healthy" || healthStatus["redis"] != "healthy" {
		s.respondWithJSON(w, http.StatusServiceUnavailable, healthStatus)
		return
	}
	s.respondWithJSON(w, http.StatusOK, healthStatus)
}

func summarize(reports []domain.ScrapeReport) scrapeResponse {
	resp := scrapeResponse{Sources: reports}
	for _, rep := range reports {
		resp.LinksFound += rep.LinksFound
		resp.Added += rep.Added
		resp.Skipped += rep.Skipped
	}
	return resp
}

// --- Helper Functions ---

func (s *Server) respondWithError(w http.ResponseWriter, code int, message string) {
	s.respondWithJSON(w, code, map[string]string{"error": message})
}

func (s *Server) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
