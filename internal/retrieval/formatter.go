package retrieval

import (
	"fmt"
	"math"
	"strings"

	"github.com/walkative/knowledge-engine/internal/storage"
)

// Formatter maps heterogeneous result rows onto Fragments.
type Formatter struct {
	MaxContentChars       int
	ShortDescriptionChars int
	LongDescriptionChars  int
	CityDescriptionChars  int
}

// DefaultFormatter returns the production content budgets.
func DefaultFormatter() Formatter {
	return Formatter{
		MaxContentChars:       DefaultMaxContentChars,
		ShortDescriptionChars: 300,
		LongDescriptionChars:  800,
		CityDescriptionChars:  500,
	}
}

func cityLabel(row storage.Row) string {
	return FirstNonEmpty(row.String("city_name_en"), row.String("city_name"), "Unknown")
}

func productTitle(row storage.Row) string {
	return FirstNonEmpty(row.String("title_en"), row.String("title"), "Untitled")
}

// Product formats a product row joined with its city.
func (f Formatter) Product(row storage.Row) Fragment {
	title := productTitle(row)
	city := cityLabel(row)

	var b strings.Builder
	fmt.Fprintf(&b, "**%s**\nLocation: %s\n", title, city)
	if short := FirstNonEmpty(row.String("short_description_en"), row.String("short_description")); short != "" {
		fmt.Fprintf(&b, "Short Description: %s\n", Truncate(short, f.ShortDescriptionChars))
	}
	if long := FirstNonEmpty(row.String("long_description_en"), row.String("long_description")); long != "" {
		fmt.Fprintf(&b, "Full Description: %s", Truncate(long, f.LongDescriptionChars))
	}

	return NewFragment("Product: "+title, strings.TrimRight(b.String(), "\n"), map[string]any{
		"id":   row.String("id"),
		"type": "product",
		"slug": row.String("slug"),
		"city": city,
	}, f.MaxContentChars)
}

// City formats a city row.
func (f Formatter) City(row storage.Row) Fragment {
	name := FirstNonEmpty(row.String("name_en"), row.String("name"), "Unknown")
	country := row.String("country")

	header := "**" + name + "**"
	if country != "" {
		header += ", " + country
	}
	desc := FirstNonEmpty(row.String("description_en"), row.String("description"), "No description available")

	return NewFragment("City: "+name, header+"\n"+Truncate(desc, f.CityDescriptionChars), map[string]any{
		"id":      row.String("id"),
		"type":    "city",
		"slug":    row.String("slug"),
		"country": country,
	}, f.MaxContentChars)
}

// Stats formats one aggregated booking row.
func (f Formatter) Stats(row storage.Row) Fragment {
	title := productTitle(row)
	bookings := row.Int64("total_bookings")
	participants := row.Int64("total_participants")
	tours := row.Int64("total_tours")

	content := fmt.Sprintf("**%s** (%s)\nTotal bookings: %d\nTotal participants: %d\nTours scheduled: %d",
		title, cityLabel(row), bookings, participants, tours)

	return NewFragment("Booking Stats: "+title, content, map[string]any{
		"type":         "stats",
		"product_id":   row.String("id"),
		"bookings":     bookings,
		"participants": participants,
		"tours":        tours,
	}, f.MaxContentChars)
}

// Catalog groups product rows by city into a single bulleted catalog.
// Cities keep their first-seen order; products without a city go last
// under "Other".
func (f Formatter) Catalog(rows []storage.Row) Fragment {
	var order []string
	groups := make(map[string][]string)
	for _, row := range rows {
		city := FirstNonEmpty(row.String("city_name_en"), row.String("city_name"))
		if city == "" {
			city = otherGroup
		}
		if _, ok := groups[city]; !ok && city != otherGroup {
			order = append(order, city)
		}
		groups[city] = append(groups[city], productTitle(row))
	}
	if _, ok := groups[otherGroup]; ok {
		order = append(order, otherGroup)
	}

	var b strings.Builder
	b.WriteString("**Complete Tour List**\n")
	for _, city := range order {
		fmt.Fprintf(&b, "\n**%s:**\n", city)
		for _, title := range groups[city] {
			fmt.Fprintf(&b, "  - %s\n", title)
		}
	}

	return NewFragment("Complete Tour Catalog", strings.TrimRight(b.String(), "\n"), map[string]any{
		"type":   "list",
		"count":  len(rows),
		"cities": order,
	}, f.MaxContentChars)
}

const otherGroup = "Other"

// Match formats a semantic match. Match metadata is merged first so the
// provenance keys always win.
func (f Formatter) Match(m SemanticMatch) Fragment {
	metadata := make(map[string]any, len(m.Metadata)+6)
	for k, v := range m.Metadata {
		metadata[k] = v
	}
	metadata["type"] = "semantic"
	metadata["similarity"] = m.Similarity
	metadata["chunk_id"] = m.ChunkID
	metadata["document_id"] = m.DocumentID
	metadata["entity_type"] = m.EntityType

	title := FirstNonEmpty(m.DocTitle, "Untitled")
	entity := strings.ToUpper(FirstNonEmpty(m.EntityType, "document"))

	var label string
	if m.Origin == OriginCityFallback {
		metadata["match"] = string(OriginCityFallback)
		label = fmt.Sprintf("[%s] %s (city match)", entity, title)
	} else {
		label = fmt.Sprintf("[%s] %s (%d%%)", entity, title, int(math.Round(m.Similarity*100)))
	}

	return NewFragment(label, m.Text, metadata, f.MaxContentChars)
}
