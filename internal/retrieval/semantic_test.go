package retrieval

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/walkative/knowledge-engine/internal/embedding"
)

func newTestSemanticEngine(idx VectorIndex, emb embedding.Embedder) *SemanticEngine {
	if emb == nil {
		emb = &fakeEmbedder{vec: []float32{1, 0, 0}}
	}
	return NewSemanticEngine(emb, idx, nil, DefaultSemanticConfig())
}

func match(chunk, doc, entity string, sim float64) SemanticMatch {
	return SemanticMatch{
		ChunkID:    chunk,
		DocumentID: doc,
		EntityType: entity,
		Similarity: sim,
		DocTitle:   "Doc " + doc,
		Text:       "text of " + chunk,
		Origin:     OriginIndex,
	}
}

func chunkIDs(fragments []Fragment) []string {
	out := make([]string, len(fragments))
	for i, f := range fragments {
		out[i], _ = f.Metadata["chunk_id"].(string)
	}
	return out
}

func TestSemanticEngine_EmbeddingFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"missing credential", embedding.ErrMissingCredential},
		{"provider error", fmt.Errorf("%w: rate limited", embedding.ErrProviderError)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx := &fakeIndex{}
			engine := newTestSemanticEngine(idx, &fakeEmbedder{err: tt.err})

			fragments, err := engine.Search(context.Background(), "food tour")

			assert.ErrorIs(t, err, ErrEmbeddingUnavailable)
			assert.ErrorIs(t, err, tt.err)
			assert.NotNil(t, fragments)
			assert.Empty(t, fragments)
			assert.Zero(t, idx.matchCalls)
		})
	}
}

func TestSemanticEngine_DiversifiesPerDocument(t *testing.T) {
	idx := &fakeIndex{matches: []SemanticMatch{
		match("a1", "A", "article", 0.9),
		match("a2", "A", "article", 0.85),
		match("a3", "A", "article", 0.8),
		match("b1", "B", "article", 0.7),
	}}
	engine := newTestSemanticEngine(idx, nil)

	fragments, err := engine.Search(context.Background(), "history of the square")
	require.NoError(t, err)

	assert.Equal(t, []string{"a1", "a2", "b1"}, chunkIDs(fragments))
	assert.Equal(t, "[ARTICLE] Doc A (90%)", fragments[0].Source)
}

func TestSemanticEngine_ToursFirstForProductQueries(t *testing.T) {
	matches := []SemanticMatch{
		match("art", "A", "article", 0.95),
		match("t1", "B", "tour", 0.6),
		match("city", "C", "city", 0.8),
		match("t2", "D", "tour", 0.7),
	}

	engine := newTestSemanticEngine(&fakeIndex{matches: matches}, nil)
	fragments, err := engine.Search(context.Background(), "which tours do you offer?")
	require.NoError(t, err)
	assert.Equal(t, []string{"t2", "t1", "art", "city"}, chunkIDs(fragments))

	engine = newTestSemanticEngine(&fakeIndex{matches: matches}, nil)
	fragments, err = engine.Search(context.Background(), "history of the old town")
	require.NoError(t, err)
	assert.Equal(t, []string{"art", "city", "t2", "t1"}, chunkIDs(fragments))
}

func TestSemanticEngine_TopK(t *testing.T) {
	var matches []SemanticMatch
	for i := 0; i < 30; i++ {
		matches = append(matches, match(fmt.Sprintf("c%02d", i), fmt.Sprintf("d%02d", i), "article", 0.9-float64(i)*0.01))
	}

	fragments, err := newTestSemanticEngine(&fakeIndex{matches: matches}, nil).Search(context.Background(), "pierogi")
	require.NoError(t, err)
	require.Len(t, fragments, 10)
	assert.Equal(t, "c00", chunkIDs(fragments)[0])
	assert.Equal(t, "c09", chunkIDs(fragments)[9])
}

func TestSemanticEngine_ClampsSimilarity(t *testing.T) {
	idx := &fakeIndex{matches: []SemanticMatch{match("c1", "d1", "article", 1.4)}}

	fragments, err := newTestSemanticEngine(idx, nil).Search(context.Background(), "pierogi")
	require.NoError(t, err)
	require.Len(t, fragments, 1)
	assert.Equal(t, 1.0, fragments[0].Metadata["similarity"])
	assert.Equal(t, "[ARTICLE] Doc d1 (100%)", fragments[0].Source)
}

func TestSemanticEngine_ExactScanFallback(t *testing.T) {
	var records []EmbeddingRecord
	for i := 0; i < 8; i++ {
		records = append(records, EmbeddingRecord{
			Match:     match(fmt.Sprintf("s%d", i), fmt.Sprintf("d%d", i), "article", 0),
			Embedding: []float32{1, float32(i) * 0.2, 0},
		})
	}
	records = append(records,
		EmbeddingRecord{Match: match("far", "x", "article", 0), Embedding: []float32{0, 0, 1}},
		EmbeddingRecord{Match: match("short", "y", "article", 0), Embedding: []float32{1}},
	)
	idx := &fakeIndex{matchErr: errors.New("function missing"), records: records}

	fragments, err := newTestSemanticEngine(idx, nil).Search(context.Background(), "old town")
	require.NoError(t, err)

	assert.Equal(t, []string{"s0", "s1", "s2", "s3", "s4"}, chunkIDs(fragments))
	assert.Equal(t, 1.0, fragments[0].Metadata["similarity"])
}

func TestSemanticEngine_ExactScanDiversifies(t *testing.T) {
	var records []EmbeddingRecord
	for i := 0; i < 6; i++ {
		records = append(records, EmbeddingRecord{
			Match:     match(fmt.Sprintf("m%d", i), "menu", "article", 0),
			Embedding: []float32{1, float32(i) * 0.1, 0},
		})
	}
	records = append(records, EmbeddingRecord{Match: match("o1", "other", "article", 0), Embedding: []float32{1, 0.9, 0}})
	idx := &fakeIndex{matchErr: errors.New("function missing"), records: records}

	fragments, err := newTestSemanticEngine(idx, nil).Search(context.Background(), "old town")
	require.NoError(t, err)

	assert.Equal(t, []string{"m0", "m1", "o1"}, chunkIDs(fragments))
}

func TestSemanticEngine_ExactScanFailure(t *testing.T) {
	idx := &fakeIndex{matchErr: errors.New("function missing"), listErr: errors.New("table missing")}

	fragments, err := newTestSemanticEngine(idx, nil).Search(context.Background(), "old town")

	require.NoError(t, err)
	assert.NotNil(t, fragments)
	assert.Empty(t, fragments)
}

func TestSemanticEngine_CityFallbackOnNoMatches(t *testing.T) {
	idx := &fakeIndex{tours: []SemanticMatch{
		{ChunkID: "k1", DocumentID: "d1", EntityType: "tour", DocTitle: "Old Town Walk", Text: "Kraków walk"},
	}}

	fragments, err := newTestSemanticEngine(idx, nil).Search(context.Background(), "Jakie wycieczki w Krakowie?")
	require.NoError(t, err)

	assert.Equal(t, []string{"krakow"}, idx.cityCalls)
	require.Len(t, fragments, 1)
	assert.Equal(t, "[TOUR] Old Town Walk (city match)", fragments[0].Source)
	assert.Equal(t, "city_fallback", fragments[0].Metadata["match"])
}

func TestSemanticEngine_CityFallbackDiversifies(t *testing.T) {
	var tours []SemanticMatch
	for i := 0; i < 6; i++ {
		tours = append(tours, SemanticMatch{ChunkID: fmt.Sprintf("w%d", i), DocumentID: "walk", EntityType: "tour", DocTitle: "Old Town Walk"})
	}
	tours = append(tours, SemanticMatch{ChunkID: "j1", DocumentID: "jewish", EntityType: "tour", DocTitle: "Kazimierz Walk"})

	fragments, err := newTestSemanticEngine(&fakeIndex{tours: tours}, nil).Search(context.Background(), "wycieczki w Krakowie")
	require.NoError(t, err)
	assert.Equal(t, []string{"w0", "w1", "j1"}, chunkIDs(fragments))

	idx := &fakeIndex{
		matches: []SemanticMatch{match("a1", "A", "article", 0.9)},
		tours:   tours,
	}
	fragments, err = newTestSemanticEngine(idx, nil).Search(context.Background(), "tours in Krakow")
	require.NoError(t, err)
	assert.Equal(t, []string{"w0", "w1", "j1"}, chunkIDs(fragments))
}

func TestSemanticEngine_NoCityFallbackWithoutProductIntent(t *testing.T) {
	idx := &fakeIndex{tours: []SemanticMatch{match("k1", "d1", "tour", 0)}}

	fragments, err := newTestSemanticEngine(idx, nil).Search(context.Background(), "weather in Krakow")
	require.NoError(t, err)

	assert.Empty(t, idx.cityCalls)
	assert.NotNil(t, fragments)
	assert.Empty(t, fragments)
}

func TestSemanticEngine_NoCityFallbackWithoutCity(t *testing.T) {
	idx := &fakeIndex{}

	fragments, err := newTestSemanticEngine(idx, nil).Search(context.Background(), "what tours are there")
	require.NoError(t, err)

	assert.Empty(t, idx.cityCalls)
	assert.Empty(t, fragments)
}

func TestSemanticEngine_CityFallbackReplacesTourlessResults(t *testing.T) {
	idx := &fakeIndex{
		matches: []SemanticMatch{match("a1", "A", "article", 0.9), match("c1", "C", "city", 0.8)},
		tours:   []SemanticMatch{{ChunkID: "g1", DocumentID: "G", EntityType: "tour", DocTitle: "Shipyard Tour"}},
	}

	fragments, err := newTestSemanticEngine(idx, nil).Search(context.Background(), "tours in Gdańsk")
	require.NoError(t, err)

	assert.Equal(t, []string{"gdansk"}, idx.cityCalls)
	assert.Equal(t, []string{"g1"}, chunkIDs(fragments))
}

func TestSemanticEngine_KeepsResultsWhenCityFallbackEmpty(t *testing.T) {
	idx := &fakeIndex{
		matches:  []SemanticMatch{match("a1", "A", "article", 0.9)},
		toursErr: errors.New("timeout"),
	}

	fragments, err := newTestSemanticEngine(idx, nil).Search(context.Background(), "tours in Gdańsk")
	require.NoError(t, err)

	assert.Equal(t, []string{"a1"}, chunkIDs(fragments))
}

func TestSemanticEngine_TourPresentSkipsCityFallback(t *testing.T) {
	idx := &fakeIndex{matches: []SemanticMatch{match("t1", "A", "tour", 0.5)}}

	_, err := newTestSemanticEngine(idx, nil).Search(context.Background(), "tours in Gdańsk")
	require.NoError(t, err)

	assert.Empty(t, idx.cityCalls)
}

func TestDiversify(t *testing.T) {
	in := []SemanticMatch{
		{ChunkID: "1", DocumentID: "A"},
		{ChunkID: "2", DocumentID: "B"},
		{ChunkID: "3", DocumentID: "A"},
		{ChunkID: "4", DocumentID: "A"},
		{ChunkID: "5", DocumentID: "B"},
	}

	out := diversify(in, 1)

	require.Len(t, out, 2)
	assert.Equal(t, "1", out[0].ChunkID)
	assert.Equal(t, "2", out[1].ChunkID)
}
