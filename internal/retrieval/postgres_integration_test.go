//go:build integration

package retrieval

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/walkative/knowledge-engine/internal/config"
	"github.com/walkative/knowledge-engine/internal/observability"
	"github.com/walkative/knowledge-engine/internal/storage"
)

const postgresFixture = `
CREATE EXTENSION IF NOT EXISTS vector;
CREATE SCHEMA IF NOT EXISTS main;
CREATE SCHEMA IF NOT EXISTS knowledge;

CREATE TABLE public.cities_city (
	id INTEGER PRIMARY KEY, slug TEXT, name_en TEXT, name TEXT,
	description_en TEXT, description TEXT, country TEXT
);
CREATE TABLE main.products_product (
	id INTEGER PRIMARY KEY, slug TEXT, title_en TEXT, title TEXT,
	short_description_en TEXT, short_description TEXT,
	long_description_en TEXT, long_description TEXT, city_id INTEGER
);
CREATE TABLE main.tours_tour (id INTEGER PRIMARY KEY, product_id INTEGER);
CREATE TABLE main.bookings_booking (id INTEGER PRIMARY KEY, tour_id INTEGER);
CREATE TABLE main.bookings_bookingitem (id INTEGER PRIMARY KEY, booking_id INTEGER);

CREATE TABLE knowledge.documents (id TEXT PRIMARY KEY, title TEXT);
CREATE TABLE knowledge.chunks (
	id TEXT PRIMARY KEY, document_id TEXT REFERENCES knowledge.documents(id),
	content TEXT, entity_type TEXT, metadata JSONB, embedding vector(3)
);

CREATE FUNCTION knowledge.match_chunks(query_embedding vector, match_threshold float, match_count int)
RETURNS TABLE (chunk_id text, document_id text, content text, entity_type text,
	similarity float, doc_title text, metadata jsonb)
LANGUAGE sql STABLE AS $$
	SELECT c.id, c.document_id, c.content, c.entity_type,
		1 - (c.embedding <=> query_embedding), d.title, c.metadata
	FROM knowledge.chunks c
	JOIN knowledge.documents d ON d.id = c.document_id
	WHERE 1 - (c.embedding <=> query_embedding) >= match_threshold
	ORDER BY c.embedding <=> query_embedding
	LIMIT match_count
$$;

INSERT INTO public.cities_city VALUES
	(1, 'krakow', 'Krakow', 'Kraków', 'Former royal capital of Poland.', NULL, 'Poland'),
	(2, 'gdansk', 'Gdansk', 'Gdańsk', NULL, 'Miasto portowe.', 'Poland');
INSERT INTO main.products_product VALUES
	(1, 'old-town-walk', 'Old Town Walk', 'Stare Miasto', 'Two hours around the Main Square.', NULL, NULL, NULL, 1),
	(2, 'wawel-castle', 'Wawel Castle Tour', 'Zamek', NULL, 'Zwiedzanie zamku.', NULL, NULL, 1);
INSERT INTO main.tours_tour VALUES (1, 1), (2, 2);
INSERT INTO main.bookings_booking VALUES (1, 1), (2, 1);
INSERT INTO main.bookings_bookingitem VALUES (1, 1), (2, 2);

INSERT INTO knowledge.documents VALUES ('d1', 'Old Town Walk'), ('d2', 'Shipyard Tour'), ('d3', 'Pierogi guide');
INSERT INTO knowledge.chunks VALUES
	('c1', 'd1', 'A walk around Kraków market square.', 'tour', '{"lang":"en"}', '[1,0,0]'),
	('c2', 'd2', 'Solidarity history in Gdansk.', 'tour', NULL, '[0,1,0]'),
	('c3', 'd3', 'Where to eat pierogi in Krakow.', 'article', NULL, '[0,0,1]');
`

func startPostgres(t *testing.T) *storage.ReadOnlyStore {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"pgvector/pgvector:pg17",
		tcpostgres.WithDatabase("tours"),
		tcpostgres.WithUsername("reader"),
		tcpostgres.WithPassword("reader"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate postgres container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	store, err := storage.Open(ctx, storage.Options{Driver: "postgres", DSN: dsn, MaxOpenConns: 4})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	_, err = store.DB().ExecContext(ctx, postgresFixture)
	require.NoError(t, err)
	return store
}

func TestPostgresIntegration(t *testing.T) {
	ctx := context.Background()
	store := startPostgres(t)
	tables := config.DefaultTables()

	t.Run("structured product match", func(t *testing.T) {
		cfg := DefaultStructuredConfig()
		cfg.Tables = tables
		engine := NewStructuredEngine(store, store.Dialect(), observability.NopLogger(), cfg)

		fragments := engine.Search(ctx, "WAWEL castle")

		require.Len(t, fragments, 1)
		assert.Equal(t, "Product: Wawel Castle Tour", fragments[0].Source)
	})

	index := NewPGVectorIndex(store, store.Dialect(), tables)

	t.Run("match function", func(t *testing.T) {
		matches, err := index.Match(ctx, []float32{1, 0, 0}, 0.4, 10)
		require.NoError(t, err)

		require.Len(t, matches, 1)
		assert.Equal(t, "c1", matches[0].ChunkID)
		assert.InDelta(t, 1.0, matches[0].Similarity, 1e-6)
		assert.Equal(t, "Old Town Walk", matches[0].DocTitle)
		assert.Equal(t, "en", matches[0].Metadata["lang"])
	})

	t.Run("list embeddings", func(t *testing.T) {
		records, err := index.ListEmbeddings(ctx, 10)
		require.NoError(t, err)

		require.Len(t, records, 3)
		for _, r := range records {
			assert.Len(t, r.Embedding, 3)
		}
	})

	t.Run("tours by city", func(t *testing.T) {
		matches, err := index.ToursByCity(ctx, "gdansk", 10)
		require.NoError(t, err)

		require.Len(t, matches, 1)
		assert.Equal(t, "c2", matches[0].ChunkID)
		assert.Equal(t, OriginCityFallback, matches[0].Origin)
	})

	t.Run("semantic engine", func(t *testing.T) {
		engine := NewSemanticEngine(&fakeEmbedder{vec: []float32{0, 0, 1}}, index, nil, DefaultSemanticConfig())

		fragments, err := engine.Search(ctx, "where to eat pierogi")
		require.NoError(t, err)

		require.Len(t, fragments, 1)
		assert.Equal(t, "[ARTICLE] Pierogi guide (100%)", fragments[0].Source)
	})
}
