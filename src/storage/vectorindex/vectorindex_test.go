package vectorindex_test

import (
	"sync"
	"testing"
	"time"

	"supportkb/src/storage/vectorindex"
)

func newIndex(t *testing.T, dims int) *vectorindex.Memory {
	t.Helper()
	idx, err := vectorindex.NewMemory(dims)
	if err != nil {
		t.Fatalf("NewMemory() error = %v", err)
	}
	return idx
}

func entry(chunkID, articleID int64, vector []float32, updated time.Time) vectorindex.Entry {
	return vectorindex.Entry{
		ChunkID:          chunkID,
		ArticleID:        articleID,
		Vector:           vector,
		ArticleUpdatedAt: updated,
	}
}

func TestQueryOrderingAndLimit(t *testing.T) {
	idx := newIndex(t, 3)
	now := time.Now()

	if err := idx.UpsertArticle(1, []vectorindex.Entry{
		entry(10, 1, []float32{1, 0, 0}, now), // identical direction, score 1
		entry(11, 1, []float32{0, 1, 0}, now), // orthogonal, score 0
	}); err != nil {
		t.Fatalf("UpsertArticle() error = %v", err)
	}
	if err := idx.UpsertArticle(2, []vectorindex.Entry{
		entry(20, 2, []float32{1, 1, 0}, now),  // score ~0.707
		entry(21, 2, []float32{-1, 0, 0}, now), // opposite, score -1
	}); err != nil {
		t.Fatalf("UpsertArticle() error = %v", err)
	}

	results, err := idx.Query([]float32{1, 0, 0}, 10)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(results) != 4 {
		t.Fatalf("Query() returned %d results, want 4", len(results))
	}
	for i := 1; i < len(results); i++ {
		if results[i].Score > results[i-1].Score {
			t.Errorf("results not sorted: score[%d]=%f > score[%d]=%f", i, results[i].Score, i-1, results[i-1].Score)
		}
	}
	if results[0].ChunkID != 10 {
		t.Errorf("best match chunk = %d, want 10", results[0].ChunkID)
	}
	if last := results[len(results)-1]; last.Score < -1 || results[0].Score > 1 {
		t.Errorf("scores outside [-1, 1]: %f .. %f", last.Score, results[0].Score)
	}

	top2, err := idx.Query([]float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(top2) != 2 || top2[0].ChunkID != 10 || top2[1].ChunkID != 20 {
		t.Errorf("top-2 = %+v, want chunks 10 and 20", top2)
	}
}

func TestQueryZeroK(t *testing.T) {
	idx := newIndex(t, 2)
	if err := idx.UpsertArticle(1, []vectorindex.Entry{entry(1, 1, []float32{1, 0}, time.Now())}); err != nil {
		t.Fatalf("UpsertArticle() error = %v", err)
	}

	for _, k := range []int{0, -1, -100} {
		results, err := idx.Query([]float32{1, 0}, k)
		if err != nil {
			t.Fatalf("Query(k=%d) error = %v", k, err)
		}
		if len(results) != 0 {
			t.Errorf("Query(k=%d) returned %d results, want 0", k, len(results))
		}
	}
}

func TestQueryTieBreakByArticleRecency(t *testing.T) {
	idx := newIndex(t, 2)
	older := time.Now().Add(-time.Hour)
	newer := time.Now()

	// Same vector, so identical scores; the newer article must win.
	if err := idx.UpsertArticle(1, []vectorindex.Entry{entry(10, 1, []float32{1, 0}, older)}); err != nil {
		t.Fatalf("UpsertArticle() error = %v", err)
	}
	if err := idx.UpsertArticle(2, []vectorindex.Entry{entry(20, 2, []float32{1, 0}, newer)}); err != nil {
		t.Fatalf("UpsertArticle() error = %v", err)
	}

	results, err := idx.Query([]float32{1, 0}, 2)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Query() returned %d results, want 2", len(results))
	}
	if results[0].ChunkID != 20 {
		t.Errorf("tie broken wrong: first chunk = %d, want 20 (newer article)", results[0].ChunkID)
	}
}

func TestUpsertReplacesWholeSet(t *testing.T) {
	idx := newIndex(t, 2)
	now := time.Now()

	if err := idx.UpsertArticle(1, []vectorindex.Entry{
		entry(10, 1, []float32{1, 0}, now),
		entry(11, 1, []float32{0, 1}, now),
	}); err != nil {
		t.Fatalf("UpsertArticle() error = %v", err)
	}
	if err := idx.UpsertArticle(1, []vectorindex.Entry{
		entry(12, 1, []float32{1, 0}, now),
	}); err != nil {
		t.Fatalf("UpsertArticle() error = %v", err)
	}

	results, err := idx.Query([]float32{1, 1}, 10)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	for _, r := range results {
		if r.ChunkID == 10 || r.ChunkID == 11 {
			t.Errorf("query returned chunk %d from the replaced set", r.ChunkID)
		}
	}
	if len(results) != 1 || results[0].ChunkID != 12 {
		t.Errorf("results = %+v, want only chunk 12", results)
	}
}

func TestUpsertValidation(t *testing.T) {
	idx := newIndex(t, 3)
	now := time.Now()

	if err := idx.UpsertArticle(1, []vectorindex.Entry{entry(10, 1, []float32{1, 0}, now)}); err == nil {
		t.Error("UpsertArticle() accepted a vector with wrong dimension")
	}
	if err := idx.UpsertArticle(1, []vectorindex.Entry{entry(10, 2, []float32{1, 0, 0}, now)}); err == nil {
		t.Error("UpsertArticle() accepted an entry belonging to another article")
	}

	// A rejected upsert must not clobber existing entries.
	if err := idx.UpsertArticle(1, []vectorindex.Entry{entry(10, 1, []float32{1, 0, 0}, now)}); err != nil {
		t.Fatalf("UpsertArticle() error = %v", err)
	}
	if err := idx.UpsertArticle(1, []vectorindex.Entry{entry(11, 1, []float32{1}, now)}); err == nil {
		t.Fatal("UpsertArticle() accepted an invalid replacement")
	}
	results, err := idx.Query([]float32{1, 0, 0}, 1)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(results) != 1 || results[0].ChunkID != 10 {
		t.Errorf("previous entries lost after rejected upsert: %+v", results)
	}
}

func TestDeleteArticle(t *testing.T) {
	idx := newIndex(t, 2)
	now := time.Now()

	if err := idx.UpsertArticle(1, []vectorindex.Entry{entry(10, 1, []float32{1, 0}, now)}); err != nil {
		t.Fatalf("UpsertArticle() error = %v", err)
	}
	idx.DeleteArticle(1)
	idx.DeleteArticle(99) // unknown article is a no-op

	results, err := idx.Query([]float32{1, 0}, 10)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(results) != 0 {
		t.Errorf("Query() after delete returned %d results", len(results))
	}
}

// TestConcurrentUpsertNeverExposesMixedSets hammers one article with
// alternating generations of entries while readers assert every observed
// snapshot is a single complete generation.
func TestConcurrentUpsertNeverExposesMixedSets(t *testing.T) {
	idx := newIndex(t, 2)
	now := time.Now()

	const generations = 200
	setFor := func(gen int64) []vectorindex.Entry {
		// Chunk IDs encode the generation: gen*10 and gen*10+1.
		return []vectorindex.Entry{
			entry(gen*10, 1, []float32{1, 0}, now),
			entry(gen*10+1, 1, []float32{1, 0}, now),
		}
	}
	if err := idx.UpsertArticle(1, setFor(1)); err != nil {
		t.Fatalf("UpsertArticle() error = %v", err)
	}

	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for gen := int64(2); gen <= generations; gen++ {
			if err := idx.UpsertArticle(1, setFor(gen)); err != nil {
				t.Errorf("UpsertArticle() error = %v", err)
				return
			}
		}
	}()

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				results, err := idx.Query([]float32{1, 0}, 10)
				if err != nil {
					t.Errorf("Query() error = %v", err)
					return
				}
				if len(results) != 2 {
					t.Errorf("observed partial set of %d entries", len(results))
					return
				}
				genA, genB := results[0].ChunkID/10, results[1].ChunkID/10
				if genA != genB {
					t.Errorf("observed mixed generations %d and %d", genA, genB)
					return
				}
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		time.Sleep(50 * time.Millisecond)
		close(stop)
	}()
	wg.Wait()
}
