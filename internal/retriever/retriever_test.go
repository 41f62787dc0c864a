package retriever

import (
	"context"
	"errors"
	"testing"

	"github.com/jibzus/enterprise-spendguard/internal/embedding"
	"github.com/jibzus/enterprise-spendguard/internal/index"
)

var corpusTexts = []string{
	"equipment caps by role intern engineer laptop",
	"prohibited categories gaming equipment cryptocurrency",
	"approvers amount range manager finance",
}

func buildFixture(t *testing.T) (*embedding.TFIDF, *index.Index) {
	t.Helper()
	emb := embedding.NewTFIDF()
	if err := emb.Prepare(corpusTexts); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	ix := index.New(emb.ModelID(), emb.Dimension())
	for i, text := range corpusTexts {
		vec, err := emb.Embed(context.Background(), text)
		if err != nil {
			t.Fatalf("embed: %v", err)
		}
		err = ix.Add(index.Entry{
			ChunkID:   []string{"1#p0", "2#p0", "3#p0"}[i],
			SectionID: []string{"1", "2", "3"}[i],
			Text:      text,
			Vector:    vec,
		})
		if err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	return emb, ix
}

func TestRetrieve_RanksRelevantChunkFirst(t *testing.T) {
	emb, ix := buildFixture(t)
	r := New(emb, -1)

	hits, err := r.Retrieve(context.Background(), ix, "gaming equipment prohibited", 3, "")
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(hits) == 0 {
		t.Fatal("expected hits")
	}
	if hits[0].Entry.SectionID != "2" {
		t.Errorf("expected prohibition chunk first, got section %q", hits[0].Entry.SectionID)
	}
}

func TestRetrieve_MinScoreFloorFiltersHits(t *testing.T) {
	emb, ix := buildFixture(t)

	// A query sharing no vocabulary scores zero everywhere; a floor above
	// zero must drop every hit.
	r := New(emb, 0.01)
	hits, err := r.Retrieve(context.Background(), ix, "zzz unrelated nonsense", 3, "")
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("expected floor to drop zero-score hits, got %d", len(hits))
	}

	all, err := r.RetrieveAll(context.Background(), ix, "zzz unrelated nonsense", 3, "")
	if err != nil {
		t.Fatalf("retrieve all: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("expected RetrieveAll to keep ranked hits, got %d", len(all))
	}
}

func TestRetrieve_ModelMismatchFailsLoudly(t *testing.T) {
	_, ix := buildFixture(t)

	other := embedding.NewTFIDF()
	if err := other.Prepare([]string{"entirely different vocabulary text"}); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	r := New(other, -1)

	_, err := r.Retrieve(context.Background(), ix, "anything", 3, "")
	var mismatch *embedding.MismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected MismatchError, got %v", err)
	}
	if mismatch.IndexModel == mismatch.QueryModel {
		t.Error("mismatch error should carry both model ids")
	}
}

func TestRetrieve_NilIndex(t *testing.T) {
	emb := embedding.NewTFIDF()
	if err := emb.Prepare([]string{"some text"}); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	r := New(emb, -1)
	if _, err := r.Retrieve(context.Background(), nil, "query", 3, ""); err == nil {
		t.Error("expected error for nil index")
	}
}

func TestRetrieve_SectionFilter(t *testing.T) {
	emb, ix := buildFixture(t)
	r := New(emb, -1)

	hits, err := r.Retrieve(context.Background(), ix, "equipment", 10, "1")
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	for _, h := range hits {
		if h.Entry.SectionID != "1" {
			t.Errorf("section filter leaked section %q", h.Entry.SectionID)
		}
	}
}
