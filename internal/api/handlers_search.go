package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/jibzus/enterprise-spendguard/internal/retriever"
)

type searchRequest struct {
	Query         string `json:"query"`
	TopK          int    `json:"top_k"`
	SectionFilter string `json:"section_filter"`
}

type searchSection struct {
	Section string  `json:"section"`
	Title   string  `json:"title"`
	Content string  `json:"content"`
	Page    int     `json:"page_number"`
	Score   float64 `json:"score"`
}

type searchResponse struct {
	Query            string          `json:"query"`
	RelevantSections []searchSection `json:"relevant_sections"`
	Citations        []string        `json:"citations"`
	Confidence       float64         `json:"confidence"`
	Summary          string          `json:"summary"`
	Source           string          `json:"source"`
}

// handlePolicySearch exposes raw semantic lookup over the active corpus.
// Results carry per-hit similarity scores and human-readable citations like
// "Section 3.2 (Equipment Tiers)".
func (s *Server) handlePolicySearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Query == "" {
		jsonError(w, "query is required", http.StatusBadRequest)
		return
	}
	if req.TopK <= 0 {
		req.TopK = s.cfg.TopK
	}

	snap := s.store.Active()
	if snap == nil {
		jsonError(w, "no policy corpus loaded", http.StatusServiceUnavailable)
		return
	}

	ret := retriever.New(snap.Embedder, s.cfg.MinSimilarity)
	start := time.Now()
	hits, err := ret.RetrieveAll(r.Context(), snap.Index, req.Query, req.TopK, req.SectionFilter)
	s.met.RetrievalDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		jsonError(w, "search failed: "+err.Error(), http.StatusBadGateway)
		return
	}

	resp := searchResponse{
		Query:            req.Query,
		RelevantSections: []searchSection{},
		Citations:        []string{},
		Source:           snap.Version.Title,
	}
	var total float64
	for _, h := range hits {
		title := ""
		if n := len(h.Entry.SectionPath); n > 0 {
			title = h.Entry.SectionPath[n-1]
		}
		resp.RelevantSections = append(resp.RelevantSections, searchSection{
			Section: h.Entry.SectionID,
			Title:   title,
			Content: h.Entry.Text,
			Page:    h.Entry.Page,
			Score:   h.Score,
		})
		resp.Citations = append(resp.Citations, fmt.Sprintf("Section %s (%s)", h.Entry.SectionID, title))
		total += h.Score
	}
	if len(hits) > 0 {
		resp.Confidence = total / float64(len(hits))
	}
	resp.Summary = searchSummary(resp.RelevantSections)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// searchSummary condenses the hit list to the top section's content, capped
// at 500 characters.
func searchSummary(sections []searchSection) string {
	if len(sections) == 0 {
		return "No relevant policy sections found for this query."
	}
	top := sections[0]
	content := top.Content
	if len(content) > 500 {
		content = content[:500] + "..."
	}
	return fmt.Sprintf("Based on Section %s: %s", top.Section, content)
}
