package retrieval

import (
	"fmt"
	"strings"

	"github.com/walkative/knowledge-engine/internal/config"
	"github.com/walkative/knowledge-engine/internal/storage"
)

var productSearchColumns = []string{
	"p.title_en", "p.title",
	"p.short_description_en", "p.short_description",
	"p.long_description_en", "p.long_description",
	"c.name_en", "c.name",
}

var citySearchColumns = []string{"name_en", "name", "description_en", "description", "country"}

var statsSearchColumns = []string{"p.title_en", "p.title", "c.name_en", "c.name"}

// sqlBuilder renders the parameterized statements for the structured engine.
// Placeholders are numbered in order of first appearance, which both lib/pq
// and go-sqlite3 bind positionally.
type sqlBuilder struct {
	tables  config.TablesConfig
	dialect storage.Dialect
}

// tokenFilter builds a disjunction of "col OP $n" over every token/column
// pair, one parameter per token. No tokens means match everything.
func (b sqlBuilder) tokenFilter(tokens []string, columns []string, firstParam int) (string, []any) {
	if len(tokens) == 0 {
		return "1=1", nil
	}

	op := b.dialect.PatternOperator()
	groups := make([]string, 0, len(tokens))
	args := make([]any, 0, len(tokens))
	for i, tok := range tokens {
		n := firstParam + i
		conds := make([]string, len(columns))
		for j, col := range columns {
			conds[j] = fmt.Sprintf("%s %s $%d", col, op, n)
		}
		groups = append(groups, "("+strings.Join(conds, " OR ")+")")
		args = append(args, "%"+tok+"%")
	}
	return strings.Join(groups, " OR "), args
}

func (b sqlBuilder) productSearch(tokens []string, limit int) (string, []any) {
	where, args := b.tokenFilter(tokens, productSearchColumns, 1)
	query := fmt.Sprintf(`SELECT p.id, p.slug, p.title_en, p.title,
		p.short_description_en, p.short_description,
		p.long_description_en, p.long_description,
		c.name_en AS city_name_en, c.name AS city_name
		FROM %s p
		LEFT JOIN %s c ON p.city_id = c.id
		WHERE %s
		LIMIT $%d`, b.tables.Products, b.tables.Cities, where, len(args)+1)
	return query, append(args, limit)
}

func (b sqlBuilder) citySearch(tokens []string, limit int) (string, []any) {
	where, args := b.tokenFilter(tokens, citySearchColumns, 1)
	query := fmt.Sprintf(`SELECT id, slug, name_en, name, description_en, description, country
		FROM %s
		WHERE %s
		LIMIT $%d`, b.tables.Cities, where, len(args)+1)
	return query, append(args, limit)
}

// bookingStats aggregates over outer joins so products without tours or
// bookings still appear with zero counts. dropZero adds a HAVING clause.
func (b sqlBuilder) bookingStats(tokens []string, dropZero bool, limit int) (string, []any) {
	where, args := b.tokenFilter(tokens, statsSearchColumns, 1)
	having := ""
	if dropZero {
		having = "HAVING COUNT(DISTINCT b.id) > 0"
	}
	query := fmt.Sprintf(`SELECT p.id, p.title_en, p.title,
		c.name_en AS city_name_en, c.name AS city_name,
		COUNT(DISTINCT b.id) AS total_bookings,
		COUNT(DISTINCT bi.id) AS total_participants,
		COUNT(DISTINCT t.id) AS total_tours
		FROM %s p
		LEFT JOIN %s c ON p.city_id = c.id
		LEFT JOIN %s t ON t.product_id = p.id
		LEFT JOIN %s b ON b.tour_id = t.id
		LEFT JOIN %s bi ON bi.booking_id = b.id
		WHERE %s
		GROUP BY p.id, p.title_en, p.title, c.name_en, c.name
		%s
		ORDER BY total_bookings DESC, p.title_en
		LIMIT $%d`,
		b.tables.Products, b.tables.Cities, b.tables.Tours, b.tables.Bookings, b.tables.BookingItems,
		where, having, len(args)+1)
	return query, append(args, limit)
}

func (b sqlBuilder) catalog(limit int) (string, []any) {
	query := fmt.Sprintf(`SELECT p.id, p.title_en, p.title,
		c.name_en AS city_name_en, c.name AS city_name
		FROM %s p
		LEFT JOIN %s c ON p.city_id = c.id
		ORDER BY c.name_en, p.title_en
		LIMIT $1`, b.tables.Products, b.tables.Cities)
	return query, []any{limit}
}
