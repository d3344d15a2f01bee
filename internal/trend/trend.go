package trend

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"agri-price-notify/internal/storage"
)

// Direction classifies the most recent price movement of a product.
type Direction string

const (
	DirectionUp     Direction = "up"
	DirectionDown   Direction = "down"
	DirectionStable Direction = "stable"
	DirectionNew    Direction = "new"
)

// Entry is a derived per-product summary of the latest price movement.
// It is a view over price records, recomputed on every request.
type Entry struct {
	Product       string           `json:"product"`
	CurrentPrice  decimal.Decimal  `json:"current_price"`
	Unit          string           `json:"unit"`
	Market        string           `json:"market"`
	Date          string           `json:"date"`
	Change        *decimal.Decimal `json:"change,omitempty"`
	ChangePercent *decimal.Decimal `json:"change_percent,omitempty"`
	Direction     Direction        `json:"trend"`
}

var dec100 = decimal.NewFromInt(100)

// Compute aggregates price records into one entry per product, comparing the
// most recent record against the second most recent. Input order is not
// trusted; the two latest records are selected by date with a stable sort so
// identical input always yields identical output. Entries come back sorted
// by product name.
func Compute(records []storage.PriceRecord) []Entry {
	groups := make(map[string][]storage.PriceRecord)
	for _, rec := range records {
		groups[rec.ProductName] = append(groups[rec.ProductName], rec)
	}

	entries := make([]Entry, 0, len(groups))
	for product, group := range groups {
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].RecordedAt.After(group[j].RecordedAt)
		})

		current := group[0]
		entry := Entry{
			Product:      product,
			CurrentPrice: current.Price,
			Unit:         current.Unit,
			Market:       marketLabel(current),
			Date:         current.RecordedAt.Format("2006-01-02"),
			Direction:    DirectionNew,
		}

		if len(group) > 1 {
			previous := group[1]
			change := current.Price.Sub(previous.Price)
			entry.Change = &change

			if previous.Price.IsZero() {
				// Comparing against a zero price yields no meaningful
				// percentage; clamp to stable rather than divide.
				pct := decimal.Zero
				entry.ChangePercent = &pct
				entry.Direction = DirectionStable
			} else {
				pct := change.Div(previous.Price).Mul(dec100)
				entry.ChangePercent = &pct
				entry.Direction = classifyChange(change)
			}
		}

		entries = append(entries, entry)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Product < entries[j].Product
	})
	return entries
}

func classifyChange(change decimal.Decimal) Direction {
	switch change.Sign() {
	case 1:
		return DirectionUp
	case -1:
		return DirectionDown
	default:
		return DirectionStable
	}
}

func marketLabel(rec storage.PriceRecord) string {
	if rec.MarketName != "" {
		return rec.MarketName
	}
	return rec.Location
}

// Samples returns the built-in fallback trend set used when no price data is
// available, so message generation never fails for lack of records.
func Samples(date time.Time) []Entry {
	day := date.Format("2006-01-02")

	tomatoChange := decimal.NewFromFloat(2.50)
	tomatoPct := decimal.NewFromFloat(5.8)
	onionChange := decimal.NewFromFloat(-1.50)
	onionPct := decimal.NewFromFloat(-4.5)
	zero := decimal.Zero

	return []Entry{
		{
			Product:       "Tomato",
			CurrentPrice:  decimal.NewFromFloat(45.50),
			Unit:          "kg",
			Market:        "Central Market",
			Date:          day,
			Change:        &tomatoChange,
			ChangePercent: &tomatoPct,
			Direction:     DirectionUp,
		},
		{
			Product:       "Onion",
			CurrentPrice:  decimal.NewFromFloat(32.00),
			Unit:          "kg",
			Market:        "Local Market",
			Date:          day,
			Change:        &onionChange,
			ChangePercent: &onionPct,
			Direction:     DirectionDown,
		},
		{
			Product:       "Potato",
			CurrentPrice:  decimal.NewFromFloat(28.75),
			Unit:          "kg",
			Market:        "Wholesale Market",
			Date:          day,
			Change:        &zero,
			ChangePercent: &zero,
			Direction:     DirectionStable,
		},
	}
}
