package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/jibzus/enterprise-spendguard/internal/evaluator"
	"github.com/jibzus/enterprise-spendguard/internal/retriever"
	"github.com/jibzus/enterprise-spendguard/internal/rules"
)

type evaluateResponse struct {
	evaluator.Verdict
	CorpusVersion string `json:"corpus_version"`
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req evaluator.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	snap := s.store.Active()
	if snap == nil {
		jsonError(w, "no policy corpus loaded", http.StatusServiceUnavailable)
		return
	}

	ret := retriever.New(snap.Embedder, s.cfg.MinSimilarity)
	resolver := rules.NewResolver(ret, s.cfg.TopK, s.log)

	start := time.Now()
	rs, err := resolver.Resolve(r.Context(), snap.Index, rules.RequestFeatures{
		Role:     req.RequestorRole,
		Category: req.Category,
		Amount:   req.Amount,
	})
	s.met.RetrievalDuration.Observe(time.Since(start).Seconds())

	verdict := evaluator.Evaluate(req, rs, err)
	s.met.EvaluationsTotal.WithLabelValues(string(verdict.Status)).Inc()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(evaluateResponse{
		Verdict:       verdict,
		CorpusVersion: snap.Version.ID,
	})
}
