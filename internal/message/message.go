// Package message renders price trends and templates into channel-specific
// message bodies. Formatting is pure: the reference date is always passed in
// so identical inputs produce identical output.
package message

import (
	"fmt"
	"strings"
	"time"

	"agri-price-notify/internal/trend"
)

// MaxSMSLength is the single-segment SMS limit. The formatter itself never
// truncates; callers reject or split messages beyond this for SMS channels.
const MaxSMSLength = 160

// FormatWhatsApp renders the full multi-block trend message: greeting, dated
// header, one block per product, and the tips footer. audienceNames
// personalizes the greeting when present.
func FormatWhatsApp(trends []trend.Entry, audienceNames []string, date time.Time) string {
	greeting := "Hello!"
	if len(audienceNames) > 0 {
		greeting = "Hello " + strings.Join(audienceNames, ", ") + "!"
	}

	var b strings.Builder
	b.WriteString("🌾 *Market Price Analyzer* 🌾\n")
	b.WriteString(greeting + "\n\n")
	b.WriteString("📊 *Current Market Price Trends*\n")
	b.WriteString("📅 Date: " + date.Format("02 Jan 2006") + "\n\n")

	for _, entry := range trends {
		changeText := ""
		if entry.Change != nil && !entry.Change.IsZero() && entry.ChangePercent != nil {
			sign := "+"
			if entry.Change.Sign() < 0 {
				sign = "-"
			}
			changeText = fmt.Sprintf(" (%s₹%s, %s%s%%)",
				sign, entry.Change.Abs().StringFixed(2),
				sign, entry.ChangePercent.Abs().StringFixed(1))
		}

		b.WriteString(fmt.Sprintf("🥬 *%s*: ₹%s/%s%s %s\n",
			entry.Product,
			entry.CurrentPrice.StringFixed(2),
			entry.Unit,
			changeText,
			directionEmoji(entry.Direction)))

		if entry.Market != "" {
			b.WriteString("📍 " + entry.Market + "\n")
		}
		b.WriteString("\n")
	}

	b.WriteString("💡 *Tips:*\n")
	b.WriteString("🔸 Best time to sell: When prices show upward trend\n")
	b.WriteString("🔸 Plan your harvest: Based on demand forecasts\n\n")
	b.WriteString("📱 For more updates, visit our platform\n")
	b.WriteString("🤝 Market Price Analyzer Team")

	return b.String()
}

// FormatSMS renders a condensed single-line trend summary suitable for the
// 160-character SMS limit. One clause per product, no footer.
func FormatSMS(trends []trend.Entry, date time.Time) string {
	parts := make([]string, 0, len(trends))
	for _, entry := range trends {
		clause := fmt.Sprintf("%s Rs%s/%s", entry.Product, entry.CurrentPrice.StringFixed(2), entry.Unit)
		if entry.ChangePercent != nil && !entry.ChangePercent.IsZero() {
			sign := ""
			if entry.ChangePercent.Sign() > 0 {
				sign = "+"
			}
			clause += fmt.Sprintf(" %s%s%%", sign, entry.ChangePercent.StringFixed(1))
		}
		parts = append(parts, clause)
	}

	return "Prices " + date.Format("02 Jan") + ": " + strings.Join(parts, ", ")
}

// RenderTemplate substitutes {key} placeholders with the given variables.
// Unknown placeholders are left untouched.
func RenderTemplate(body string, variables map[string]string) string {
	for key, value := range variables {
		body = strings.ReplaceAll(body, "{"+key+"}", value)
	}
	return body
}

// PriceAlertTemplate is the built-in fallback used when no alert template is
// configured in the template store.
const PriceAlertTemplate = "Hello {name}, {product} price at {market} is Rs.{price}/{unit} today. - Market Price Analyzer"

func directionEmoji(d trend.Direction) string {
	switch d {
	case trend.DirectionUp:
		return "📈"
	case trend.DirectionDown:
		return "📉"
	case trend.DirectionStable:
		return "➡️"
	case trend.DirectionNew:
		return "🆕"
	default:
		return "📊"
	}
}
