package render

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/go-go-golems/houser/pkg/assembler"
	"github.com/go-go-golems/houser/pkg/events"
)

const maxFeatures = 2

var descriptionClause = regexp.MustCompile(`[,;|]+`)

// Features returns at most two feature phrases for l, falling back to the
// first clauses of the description.
func Features(l events.Listing) []string {
	if len(l.KeyFeatures) > 0 {
		return firstN([]string(l.KeyFeatures), maxFeatures)
	}
	desc := strings.TrimSpace(l.Description)
	if desc == "" {
		return nil
	}
	if i := strings.IndexAny(desc, ".\n"); i >= 0 {
		desc = desc[:i]
	}
	var out []string
	for _, p := range descriptionClause.Split(desc, -1) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return firstN(out, maxFeatures)
}

func firstN(s []string, n int) []string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

// ListingBullet renders "title – location – AED price – beds – f1, f2".
func ListingBullet(l events.Listing) string {
	title := firstNonEmpty(l.Title, "Untitled")
	location := firstNonEmpty(l.Location, l.Area, l.City, "Unknown Location")
	beds := firstNonEmpty(l.BedsLabel(), "N/A")

	parts := []string{title, location, l.Price.FormatAED(), beds}
	if feats := Features(l); len(feats) > 0 {
		parts = append(parts, strings.Join(feats, ", "))
	}
	return strings.Join(parts, " – ")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// Highlights returns provided when set, otherwise computes count, average
// and range over the positive prices in items.
func Highlights(items []events.Listing, provided *events.KeyHighlights) events.KeyHighlights {
	if provided != nil {
		return *provided
	}
	h := events.KeyHighlights{Count: len(items)}
	sum, n := 0.0, 0
	for _, l := range items {
		if !l.Price.Valid || l.Price.Value <= 0 {
			continue
		}
		v := l.Price.Value
		if n == 0 || v < h.LowestPrice.Value {
			h.LowestPrice = events.NewPrice(v)
		}
		if n == 0 || v > h.HighestPrice.Value {
			h.HighestPrice = events.NewPrice(v)
		}
		sum += v
		n++
	}
	if n > 0 {
		h.AvgPrice = events.NewPrice(sum / float64(n))
	}
	return h
}

// HighlightsMarkdown renders the "Key Highlights" block.
func HighlightsMarkdown(h events.KeyHighlights) string {
	var b strings.Builder
	b.WriteString("### Key Highlights\n\n")
	fmt.Fprintf(&b, "- Listings: %d\n", h.Count)
	fmt.Fprintf(&b, "- Average Price: %s\n", h.AvgPrice.FormatAED())
	fmt.Fprintf(&b, "- Price Range: %s – %s\n", h.LowestPrice.FormatAED(), h.HighestPrice.FormatAED())
	return b.String()
}

// ListingsMarkdown renders the "Retrieved Listings (Summary)" block.
func ListingsMarkdown(items []events.Listing, isFallback bool) string {
	if len(items) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("### Retrieved Listings (Summary)\n\n")
	if isFallback {
		b.WriteString("_No exact matches; showing similar listings._\n\n")
	}
	for _, l := range items {
		b.WriteString("- ")
		b.WriteString(escapeInline(ListingBullet(l)))
		if l.IsExactMatch != nil && !*l.IsExactMatch {
			b.WriteString(" _(recommended)_")
		}
		b.WriteString("\n")
	}
	return b.String()
}

// StatsMarkdown renders a market stats card.
func StatsMarkdown(ms events.MarketStats) string {
	var b strings.Builder
	title := "Market Stats"
	if ms.Area != "" {
		title += ": " + ms.Area
	}
	fmt.Fprintf(&b, "### %s\n\n", title)
	fmt.Fprintf(&b, "- Listings: %d (%d active)\n", ms.Counts.Total, ms.Counts.Active)
	fmt.Fprintf(&b, "- Average Price: %s\n", ms.Prices.Avg.FormatAED())
	fmt.Fprintf(&b, "- Price Range: %s – %s\n", ms.Prices.Min.FormatAED(), ms.Prices.Max.FormatAED())
	if ms.Prices.TotalValue.Valid {
		fmt.Fprintf(&b, "- Total Value: %s\n", ms.Prices.TotalValue.FormatAED())
	}
	if len(ms.CityBreakdown) > 0 {
		b.WriteString("\n| City | Listings | Average | Min | Max |\n|---|---:|---:|---:|---:|\n")
		for _, c := range ms.CityBreakdown {
			fmt.Fprintf(&b, "| %s | %d | %s | %s | %s |\n",
				escapeCell(c.Name), c.Count, c.Avg.FormatAED(), c.Min.FormatAED(), c.Max.FormatAED())
		}
	}
	return b.String()
}

// TableMarkdown renders t as a markdown table.
func TableMarkdown(t *events.Table) string {
	cols := t.ColumnNames()
	if len(cols) == 0 {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "### %s\n\n", firstNonEmpty(t.Title, "Property Comparison"))
	b.WriteString("|")
	for _, c := range cols {
		b.WriteString(" " + escapeCell(c) + " |")
	}
	b.WriteString("\n|")
	for range cols {
		b.WriteString("---|")
	}
	b.WriteString("\n")
	for _, row := range t.Rows {
		b.WriteString("|")
		for _, c := range cols {
			b.WriteString(" " + escapeCell(cellText(row[c])) + " |")
		}
		b.WriteString("\n")
	}
	return b.String()
}

func cellText(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case float64:
		return events.NewPrice(x).Grouped()
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}

var cellEscaper = strings.NewReplacer("|", `\|`, "\n", " ")

func escapeCell(s string) string { return cellEscaper.Replace(s) }

var inlineEscaper = strings.NewReplacer("*", `\*`, "_", `\_`, "`", "\\`")

func escapeInline(s string) string { return inlineEscaper.Replace(s) }

// Markdown renders the whole snapshot: answer text, listings, highlights,
// stats, table, then the failure indicator.
func Markdown(s assembler.Snapshot) string {
	var sections []string
	if text := strings.TrimSpace(s.TextContent); text != "" {
		sections = append(sections, text)
	}
	if len(s.ResultItems) > 0 {
		sections = append(sections,
			ListingsMarkdown(s.ResultItems, s.IsFallback),
			HighlightsMarkdown(Highlights(s.ResultItems, s.KeyHighlights)))
	} else if s.KeyHighlights != nil {
		sections = append(sections, HighlightsMarkdown(*s.KeyHighlights))
	}
	if ms, ok, err := events.DecodeMarketStats(s.Stats); err == nil && ok {
		sections = append(sections, StatsMarkdown(ms))
	} else if strings.TrimSpace(s.StatsSummary) != "" {
		sections = append(sections, "### Market Stats\n\n"+s.StatsSummary)
	}
	if s.Table != nil {
		if t := TableMarkdown(s.Table); t != "" {
			sections = append(sections, t)
		}
	}
	if msg := s.FailureMessage(); msg != "" {
		sections = append(sections, "**"+msg+"**")
	}
	out := make([]string, 0, len(sections))
	for _, sec := range sections {
		out = append(out, strings.TrimRight(sec, "\n"))
	}
	return strings.Join(out, "\n\n") + "\n"
}
