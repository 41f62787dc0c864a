package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jibzus/enterprise-spendguard/internal/chunker"
	"github.com/jibzus/enterprise-spendguard/internal/config"
	"github.com/jibzus/enterprise-spendguard/internal/corpus"
	"github.com/jibzus/enterprise-spendguard/internal/embedding"
	"github.com/jibzus/enterprise-spendguard/internal/evaluator"
	"github.com/jibzus/enterprise-spendguard/internal/metrics"
)

const testAPIKey = "test-key"

const testPolicy = `# ACME Corp Procurement Policy

## 3. Equipment Purchases

### 3.1 General

All equipment purchases must go through the procurement portal.

### 3.2 Equipment Tiers

| Role | Cap | Example 1 | Example 2 |
| --- | --- | --- | --- |
| Intern | $2,000 | Dell Latitude 5400 ($1,200) | MacBook Air ($1,800) |
| Engineer | $3,500 | MacBook Pro 14 ($2,400) | ThinkPad X1 ($2,100) |

### 3.3 Prohibited Purchases

The following categories are prohibited for all roles: gaming equipment, cryptocurrency mining hardware, personal entertainment devices.

## 4. Approvals

### 4.1 Software Approvals

| Amount Range | Approvers | Timeline |
| --- | --- | --- |
| $0 - $500 | Manager | 2 business days |
| $501 - $2,000 | Manager, Finance | 4 business days |
| $2,001 - $10,000 | Director, Finance | 7 business days |
| $10,000+ | C-level, Legal | 10 business days |

### 4.2 Preferred Vendors

| Category | Vendor | Rank |
| --- | --- | --- |
| laptop | Dell | 1 |
| laptop | Apple | 2 |
`

func testConfig() config.Config {
	return config.Config{
		APIKey:         testAPIKey,
		TopK:           3,
		MinSimilarity:  -1,
		MaxUploadBytes: 1 << 20,
	}
}

func newTestServer(t *testing.T, withCorpus bool) (*Server, *corpus.Store) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	met := metrics.New()
	store := corpus.NewStore()
	factory := func() (embedding.Embedder, error) { return embedding.NewTFIDF(), nil }
	loader := corpus.NewLoader(factory, chunker.DefaultConfig(), 2, nil, 3, met, log)

	if withCorpus {
		snap, err := loader.Build(context.Background(), corpus.NewJob("policy.md", "", []byte(testPolicy)))
		if err != nil {
			t.Fatalf("boot load: %v", err)
		}
		store.Publish(snap)
	}

	orch := corpus.NewOrchestrator(loader, store, 1, 4, time.Hour, met, log)
	ctx, cancel := context.WithCancel(context.Background())
	orch.Start(ctx)
	t.Cleanup(func() {
		cancel()
		orch.Stop()
	})

	return NewServer(orch, store, met, log, testConfig()), store
}

func doJSON(t *testing.T, srv http.Handler, method, path string, body any, authed bool) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if authed {
		req.Header.Set("Authorization", "Bearer "+testAPIKey)
	}
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	return w
}

type verdictResponse struct {
	evaluator.Verdict
	CorpusVersion string `json:"corpus_version"`
}

func evaluate(t *testing.T, srv http.Handler, req evaluator.Request) verdictResponse {
	t.Helper()
	w := doJSON(t, srv, http.MethodPost, "/api/evaluate", req, true)
	if w.Code != http.StatusOK {
		t.Fatalf("evaluate returned %d: %s", w.Code, w.Body.String())
	}
	var resp verdictResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode verdict: %v", err)
	}
	return resp
}

func TestServer_HealthIsPublic(t *testing.T) {
	srv, _ := newTestServer(t, true)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
}

func TestServer_MetricsIsPublic(t *testing.T) {
	srv, _ := newTestServer(t, true)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
}

func TestServer_AuthRequired(t *testing.T) {
	srv, _ := newTestServer(t, true)

	w := doJSON(t, srv, http.MethodPost, "/api/evaluate", evaluator.Request{}, false)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/evaluate", strings.NewReader("{}"))
	req.Header.Set("Authorization", "Bearer wrong-key")
	w = httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 with bad token, got %d", w.Code)
	}
}

func TestServer_EvaluateCompliant(t *testing.T) {
	srv, store := newTestServer(t, true)
	resp := evaluate(t, srv, evaluator.Request{
		ItemDescription: "Dell Latitude 5400",
		Amount:          1200,
		Currency:        "USD",
		RequestorRole:   "Intern",
		Category:        "laptop",
	})
	if resp.Status != evaluator.StatusCompliant {
		t.Fatalf("expected COMPLIANT, got %s (%v)", resp.Status, resp.Reasons)
	}
	if resp.ApprovalChain == nil || len(resp.ApprovalChain.Approvers) == 0 {
		t.Error("expected approval chain on compliant verdict")
	}
	if resp.CorpusVersion != store.Active().Version.ID {
		t.Error("expected verdict tagged with active corpus version")
	}
}

func TestServer_EvaluateCapViolation(t *testing.T) {
	srv, _ := newTestServer(t, true)
	resp := evaluate(t, srv, evaluator.Request{
		ItemDescription: "MacBook Pro 16",
		Amount:          4500,
		Currency:        "USD",
		RequestorRole:   "Intern",
		Category:        "laptop",
	})
	if resp.Status != evaluator.StatusViolation {
		t.Fatalf("expected VIOLATION, got %s (%v)", resp.Status, resp.Reasons)
	}
	if resp.DeltaOverCap != 2500 {
		t.Errorf("expected delta 2500, got %v", resp.DeltaOverCap)
	}
	if len(resp.Alternatives) != 2 {
		t.Fatalf("expected 2 alternatives under the cap, got %d", len(resp.Alternatives))
	}
	if resp.Alternatives[0].Amount > resp.Alternatives[1].Amount {
		t.Error("expected alternatives sorted cheapest first")
	}
	cited := strings.Join(resp.CitedSections, ",")
	if !strings.Contains(cited, "3.2") {
		t.Errorf("expected section 3.2 cited, got %v", resp.CitedSections)
	}
}

func TestServer_EvaluateProhibited(t *testing.T) {
	srv, _ := newTestServer(t, true)
	resp := evaluate(t, srv, evaluator.Request{
		ItemDescription: "gaming console",
		Amount:          50,
		Currency:        "USD",
		RequestorRole:   "Intern",
		Category:        "gaming equipment",
	})
	if resp.Status != evaluator.StatusViolation {
		t.Fatalf("expected VIOLATION for prohibited category, got %s", resp.Status)
	}
}

func TestServer_EvaluateDeterministic(t *testing.T) {
	srv, _ := newTestServer(t, true)
	req := evaluator.Request{Amount: 4500, RequestorRole: "Intern", Category: "laptop", ItemDescription: "laptop"}

	first := doJSON(t, srv, http.MethodPost, "/api/evaluate", req, true).Body.String()
	for i := 0; i < 3; i++ {
		again := doJSON(t, srv, http.MethodPost, "/api/evaluate", req, true).Body.String()
		if first != again {
			t.Fatalf("verdict changed between identical requests:\n%s\n%s", first, again)
		}
	}
}

func TestServer_EvaluateWithoutCorpus(t *testing.T) {
	srv, _ := newTestServer(t, false)
	w := doJSON(t, srv, http.MethodPost, "/api/evaluate", evaluator.Request{RequestorRole: "Intern", Category: "laptop", Amount: 100}, true)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 with no corpus, got %d", w.Code)
	}
}

func TestServer_PolicySearch(t *testing.T) {
	srv, _ := newTestServer(t, true)
	w := doJSON(t, srv, http.MethodPost, "/api/policy/search", map[string]any{
		"query": "role cap intern equipment",
		"top_k": 3,
	}, true)
	if w.Code != http.StatusOK {
		t.Fatalf("search returned %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Query            string `json:"query"`
		RelevantSections []struct {
			Section string  `json:"section"`
			Title   string  `json:"title"`
			Content string  `json:"content"`
			Page    int     `json:"page_number"`
			Score   float64 `json:"score"`
		} `json:"relevant_sections"`
		Citations  []string `json:"citations"`
		Confidence float64  `json:"confidence"`
		Summary    string   `json:"summary"`
		Source     string   `json:"source"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.Contains(w.Body.String(), `"page_number"`) {
		t.Error("expected page_number on each relevant section")
	}
	if len(resp.RelevantSections) != 3 {
		t.Fatalf("expected 3 results, got %d", len(resp.RelevantSections))
	}
	if resp.RelevantSections[0].Section != "3.2" {
		t.Errorf("expected tier table ranked first, got section %q", resp.RelevantSections[0].Section)
	}
	if len(resp.Citations) != 3 || !strings.HasPrefix(resp.Citations[0], "Section 3.2 (") {
		t.Errorf("unexpected citations: %v", resp.Citations)
	}
	if resp.Source != "ACME Corp Procurement Policy" {
		t.Errorf("expected corpus title as source, got %q", resp.Source)
	}
	if !strings.HasPrefix(resp.Summary, "Based on Section 3.2:") {
		t.Errorf("expected summary built from the top section, got %q", resp.Summary)
	}
}

func TestServer_PolicySearchSectionFilter(t *testing.T) {
	srv, _ := newTestServer(t, true)
	w := doJSON(t, srv, http.MethodPost, "/api/policy/search", map[string]any{
		"query":          "approvers amount range",
		"top_k":          5,
		"section_filter": "4",
	}, true)
	if w.Code != http.StatusOK {
		t.Fatalf("search returned %d", w.Code)
	}
	var resp struct {
		RelevantSections []struct {
			Section string `json:"section"`
		} `json:"relevant_sections"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, s := range resp.RelevantSections {
		if !strings.HasPrefix(s.Section, "4") {
			t.Errorf("section filter leaked %q", s.Section)
		}
	}
}

func TestServer_CorpusUploadLifecycle(t *testing.T) {
	srv, store := newTestServer(t, true)
	before := store.Active().Version.ID

	// Upload an amended policy (different bytes, so no dedup skip).
	amended := testPolicy + "\n### 4.3 Furniture\n\nStanding desks require Facilities approval.\n"
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "policy-v2.md")
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	fw.Write([]byte(amended))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/corpus", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+testAPIKey)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}

	var accepted struct {
		JobID   string `json:"job_id"`
		PollURL string `json:"poll_url"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &accepted); err != nil {
		t.Fatalf("decode: %v", err)
	}

	// Poll until the load publishes.
	deadline := time.Now().Add(5 * time.Second)
	var status corpus.JobSnapshot
	for time.Now().Before(deadline) {
		pw := doJSON(t, srv, http.MethodGet, accepted.PollURL, nil, true)
		if pw.Code != http.StatusOK {
			t.Fatalf("poll returned %d", pw.Code)
		}
		if err := json.Unmarshal(pw.Body.Bytes(), &status); err != nil {
			t.Fatalf("decode poll: %v", err)
		}
		if status.Status == corpus.StatusPublished || status.Status == corpus.StatusFailed {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if status.Status != corpus.StatusPublished {
		t.Fatalf("expected published load, got %s (%v)", status.Status, status.Progress.Errors)
	}

	if store.Active().Version.ID == before {
		t.Error("expected active corpus replaced after upload")
	}

	// The new section is retrievable.
	sw := doJSON(t, srv, http.MethodPost, "/api/policy/search", map[string]any{
		"query": "standing desks facilities approval furniture",
		"top_k": 1,
	}, true)
	var sr struct {
		RelevantSections []struct {
			Section string `json:"section"`
		} `json:"relevant_sections"`
	}
	if err := json.Unmarshal(sw.Body.Bytes(), &sr); err != nil {
		t.Fatalf("decode search: %v", err)
	}
	if len(sr.RelevantSections) != 1 || sr.RelevantSections[0].Section != "4.3" {
		t.Errorf("expected new section retrievable, got %+v", sr.RelevantSections)
	}
}

func TestServer_CorpusUploadRejectsUnsupportedType(t *testing.T) {
	srv, _ := newTestServer(t, true)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, _ := mw.CreateFormFile("file", "policy.csv")
	fw.Write([]byte("a,b\n1,2\n"))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/corpus", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+testAPIKey)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unsupported type, got %d", w.Code)
	}
}

func TestServer_CorpusActiveAndVersions(t *testing.T) {
	srv, store := newTestServer(t, true)

	w := doJSON(t, srv, http.MethodGet, "/api/corpus/active", nil, true)
	if w.Code != http.StatusOK {
		t.Fatalf("active returned %d", w.Code)
	}
	var v corpus.Version
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if v.ID != store.Active().Version.ID {
		t.Errorf("unexpected active version %q", v.ID)
	}

	w = doJSON(t, srv, http.MethodGet, "/api/corpus/versions", nil, true)
	var vs struct {
		Versions []corpus.Version `json:"versions"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &vs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(vs.Versions) != 1 {
		t.Errorf("expected 1 version, got %d", len(vs.Versions))
	}
}

func TestServer_LoadStatusNotFound(t *testing.T) {
	srv, _ := newTestServer(t, true)
	w := doJSON(t, srv, http.MethodGet, "/api/corpus/loads/no-such-job", nil, true)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}
