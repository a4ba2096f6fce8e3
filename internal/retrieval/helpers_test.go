package retrieval

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/walkative/knowledge-engine/internal/config"
	"github.com/walkative/knowledge-engine/internal/storage"
)

type queryCall struct {
	query string
	args  []any
}

// fakeQuerier answers every statement through respond and records calls.
type fakeQuerier struct {
	mu      sync.Mutex
	calls   []queryCall
	respond func(query string, args []any) ([]storage.Row, error)
}

func (f *fakeQuerier) Query(_ context.Context, query string, args ...any) ([]storage.Row, error) {
	f.mu.Lock()
	f.calls = append(f.calls, queryCall{query: query, args: args})
	f.mu.Unlock()

	if f.respond == nil {
		return []storage.Row{}, nil
	}
	return f.respond(query, args)
}

func (f *fakeQuerier) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeQuerier) callMatching(substr string) (queryCall, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if strings.Contains(c.query, substr) {
			return c, true
		}
	}
	return queryCall{}, false
}

// fakeIndex is a scripted VectorIndex.
type fakeIndex struct {
	mu         sync.Mutex
	matches    []SemanticMatch
	matchErr   error
	records    []EmbeddingRecord
	listErr    error
	tours      []SemanticMatch
	toursErr   error
	cityCalls  []string
	matchCalls int
}

func (f *fakeIndex) Match(_ context.Context, _ []float32, _ float64, _ int) ([]SemanticMatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.matchCalls++
	if f.matchErr != nil {
		return nil, f.matchErr
	}
	return append([]SemanticMatch(nil), f.matches...), nil
}

func (f *fakeIndex) ListEmbeddings(_ context.Context, _ int) ([]EmbeddingRecord, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]EmbeddingRecord(nil), f.records...), nil
}

func (f *fakeIndex) ToursByCity(_ context.Context, city string, _ int) ([]SemanticMatch, error) {
	f.mu.Lock()
	f.cityCalls = append(f.cityCalls, city)
	f.mu.Unlock()
	if f.toursErr != nil {
		return nil, f.toursErr
	}
	return append([]SemanticMatch(nil), f.tours...), nil
}

// fakeEmbedder returns a fixed vector or error.
type fakeEmbedder struct {
	vec []float32
	err error
}

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := f.EmbedSingle(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedSingle(_ context.Context, _ string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vec, nil
}

func (f *fakeEmbedder) Model() string  { return "fake" }
func (f *fakeEmbedder) Dimension() int { return len(f.vec) }

func testTables() config.TablesConfig {
	return config.TablesConfig{
		Products:      "products_product",
		Cities:        "cities_city",
		Tours:         "tours_tour",
		Bookings:      "bookings_booking",
		BookingItems:  "bookings_bookingitem",
		Chunks:        "chunks",
		Documents:     "documents",
		MatchFunction: "match_chunks",
	}
}

const catalogFixture = `
CREATE TABLE cities_city (
	id INTEGER PRIMARY KEY, slug TEXT, name_en TEXT, name TEXT,
	description_en TEXT, description TEXT, country TEXT
);
CREATE TABLE products_product (
	id INTEGER PRIMARY KEY, slug TEXT, title_en TEXT, title TEXT,
	short_description_en TEXT, short_description TEXT,
	long_description_en TEXT, long_description TEXT, city_id INTEGER
);
CREATE TABLE tours_tour (id INTEGER PRIMARY KEY, product_id INTEGER);
CREATE TABLE bookings_booking (id INTEGER PRIMARY KEY, tour_id INTEGER);
CREATE TABLE bookings_bookingitem (id INTEGER PRIMARY KEY, booking_id INTEGER);
CREATE TABLE documents (id TEXT PRIMARY KEY, title TEXT);
CREATE TABLE chunks (
	id TEXT PRIMARY KEY, document_id TEXT, content TEXT, entity_type TEXT,
	metadata TEXT, embedding TEXT
);

INSERT INTO cities_city VALUES
	(1, 'krakow', 'Krakow', 'Kraków', 'Former royal capital of Poland.', NULL, 'Poland'),
	(2, 'gdansk', 'Gdansk', 'Gdańsk', NULL, 'Miasto portowe.', 'Poland'),
	(3, 'warsaw', 'Warsaw', 'Warszawa', NULL, NULL, 'Poland');

INSERT INTO products_product VALUES
	(1, 'old-town-walk', 'Old Town Walk', 'Stare Miasto', 'Two hours around the Main Square.', NULL, 'A long stroll.', NULL, 1),
	(2, 'wawel-castle', 'Wawel Castle Tour', 'Zamek', NULL, 'Zwiedzanie zamku.', NULL, NULL, 1),
	(3, 'shipyard', 'Gdansk Shipyard Tour', 'Stocznia', NULL, NULL, NULL, NULL, 2),
	(4, 'vodka', 'Vodka Tasting', 'Degustacja', NULL, NULL, NULL, NULL, NULL);

INSERT INTO tours_tour VALUES (1, 1), (2, 1), (3, 3);
INSERT INTO bookings_booking VALUES (1, 1), (2, 1), (3, 3);
INSERT INTO bookings_bookingitem VALUES (1, 1), (2, 1), (3, 2), (4, 3);

INSERT INTO documents VALUES ('d1', 'Old Town Walk'), ('d2', 'Shipyard Tour'), ('d3', 'Pierogi guide');
INSERT INTO chunks VALUES
	('c1', 'd1', 'A walk around Kraków market square.', 'tour', '{"lang":"en"}', '[1,0,0]'),
	('c2', 'd2', 'Solidarity history in Gdansk.', 'tour', NULL, '[0,1,0]'),
	('c3', 'd3', 'Where to eat pierogi in Krakow.', 'article', NULL, '[0,0,1]'),
	('c4', 'd3', 'Broken vector.', 'article', NULL, 'not a vector');
`

// openCatalog creates an isolated in-memory sqlite catalog.
func openCatalog(t *testing.T) *storage.ReadOnlyStore {
	t.Helper()

	store, err := storage.Open(context.Background(), storage.Options{
		Driver:       "sqlite",
		DSN:          "file:" + uuid.NewString() + "?mode=memory&cache=shared",
		MaxOpenConns: 2,
		MaxIdleConns: 2,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	_, err = store.DB().Exec(catalogFixture)
	require.NoError(t, err)
	return store
}

func fragmentSources(fragments []Fragment) []string {
	out := make([]string, len(fragments))
	for i, f := range fragments {
		out[i] = f.Source
	}
	return out
}
