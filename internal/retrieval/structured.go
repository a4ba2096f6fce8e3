package retrieval

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/walkative/knowledge-engine/internal/config"
	"github.com/walkative/knowledge-engine/internal/keywords"
	"github.com/walkative/knowledge-engine/internal/observability"
	"github.com/walkative/knowledge-engine/internal/storage"
)

// StructuredConfig holds row caps and table names for the structured engine.
type StructuredConfig struct {
	Tables       config.TablesConfig
	ProductLimit int
	CityLimit    int
	StatsLimit   int
	ListLimit    int
	Formatter    Formatter
}

// DefaultStructuredConfig returns the production defaults.
func DefaultStructuredConfig() StructuredConfig {
	return StructuredConfig{
		Tables:       config.DefaultTables(),
		ProductLimit: 10,
		CityLimit:    5,
		StatsLimit:   5,
		ListLimit:    50,
		Formatter:    DefaultFormatter(),
	}
}

// StructuredEngine answers queries with pattern-matched SQL over the
// product, city and booking tables.
type StructuredEngine struct {
	store  storage.Querier
	sql    sqlBuilder
	logger *observability.Logger
	config StructuredConfig
}

// NewStructuredEngine creates a new structured engine.
func NewStructuredEngine(store storage.Querier, dialect storage.Dialect, logger *observability.Logger, cfg StructuredConfig) *StructuredEngine {
	defaults := DefaultStructuredConfig()
	if cfg.ProductLimit <= 0 {
		cfg.ProductLimit = defaults.ProductLimit
	}
	if cfg.CityLimit <= 0 {
		cfg.CityLimit = defaults.CityLimit
	}
	if cfg.StatsLimit <= 0 {
		cfg.StatsLimit = defaults.StatsLimit
	}
	if cfg.ListLimit <= 0 {
		cfg.ListLimit = defaults.ListLimit
	}
	if cfg.Formatter.MaxContentChars <= 0 {
		cfg.Formatter = defaults.Formatter
	}
	if cfg.Tables.Products == "" {
		cfg.Tables = defaults.Tables
	}
	if logger == nil {
		logger = observability.NopLogger()
	}

	return &StructuredEngine{
		store:  store,
		sql:    sqlBuilder{tables: cfg.Tables, dialect: dialect},
		logger: logger.WithComponent("structured"),
		config: cfg,
	}
}

// Search classifies and normalizes the query, then runs one strategy.
func (e *StructuredEngine) Search(ctx context.Context, query string) []Fragment {
	intent := ClassifyIntent(query)
	return e.SearchIntent(ctx, query, TokensFor(query, intent), intent)
}

// TokensFor returns the token set the given intent filters on. Statistics
// queries drop quantity filler first.
func TokensFor(query string, intent Intent) []string {
	if intent == IntentStatistics {
		return keywords.Normalize(StatisticsBasis(query))
	}
	return keywords.Normalize(query)
}

// SearchIntent runs the strategy for intent. Query faults are logged and
// produce an empty, non-nil slice.
func (e *StructuredEngine) SearchIntent(ctx context.Context, query string, tokens []string, intent Intent) []Fragment {
	logger := e.logger.WithContext(ctx)

	var (
		fragments []Fragment
		err       error
	)
	switch intent {
	case IntentListAll:
		fragments, err = e.searchCatalog(ctx)
	case IntentStatistics:
		fragments, err = e.searchStatistics(ctx, tokens, IsRankingQuery(query))
	default:
		fragments, err = e.searchDefault(ctx, tokens)
	}

	if err != nil {
		observability.StructuredErrorsTotal.WithLabelValues(string(intent)).Inc()
		logger.Error().Err(err).
			Str("intent", string(intent)).
			Strs("tokens", tokens).
			Msg("Structured search failed")
		return []Fragment{}
	}

	logger.Debug().
		Str("intent", string(intent)).
		Strs("tokens", tokens).
		Int("fragments", len(fragments)).
		Msg("Structured search completed")
	return fragments
}

// searchDefault runs the product and city queries concurrently and
// concatenates product fragments before city fragments.
func (e *StructuredEngine) searchDefault(ctx context.Context, tokens []string) ([]Fragment, error) {
	var products, cities []storage.Row

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		query, args := e.sql.productSearch(tokens, e.config.ProductLimit)
		rows, err := e.store.Query(gctx, query, args...)
		if err != nil {
			return fmt.Errorf("product search: %w", err)
		}
		products = rows
		return nil
	})
	g.Go(func() error {
		query, args := e.sql.citySearch(tokens, e.config.CityLimit)
		rows, err := e.store.Query(gctx, query, args...)
		if err != nil {
			return fmt.Errorf("city search: %w", err)
		}
		cities = rows
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	fragments := make([]Fragment, 0, len(products)+len(cities))
	for _, row := range products {
		fragments = append(fragments, e.config.Formatter.Product(row))
	}
	for _, row := range cities {
		fragments = append(fragments, e.config.Formatter.City(row))
	}
	return fragments, nil
}

func (e *StructuredEngine) searchStatistics(ctx context.Context, tokens []string, ranking bool) ([]Fragment, error) {
	query, args := e.sql.bookingStats(tokens, ranking, e.config.StatsLimit)
	rows, err := e.store.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("booking stats: %w", err)
	}

	fragments := make([]Fragment, 0, len(rows))
	for _, row := range rows {
		fragments = append(fragments, e.config.Formatter.Stats(row))
	}
	return fragments, nil
}

func (e *StructuredEngine) searchCatalog(ctx context.Context) ([]Fragment, error) {
	query, args := e.sql.catalog(e.config.ListLimit)
	rows, err := e.store.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	if len(rows) == 0 {
		return []Fragment{}, nil
	}
	return []Fragment{e.config.Formatter.Catalog(rows)}, nil
}
