package provider

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"

	"github.com/rs/zerolog"
)

// WhatsAppLink derives wa.me deep links instead of calling a delivery API.
// Delivery is deferred to a human clicking the link, so every send succeeds
// and the generated URL is the provider response.
type WhatsAppLink struct {
	logger zerolog.Logger
}

// NewWhatsAppLink constructs the WhatsApp link adapter.
func NewWhatsAppLink(logger zerolog.Logger) *WhatsAppLink {
	return &WhatsAppLink{logger: logger.With().Str("component", "provider_whatsapp").Logger()}
}

func (w *WhatsAppLink) Name() string { return NameWhatsApp }

func (w *WhatsAppLink) MaxMessageLength() int { return 0 }

// Send synthesizes the deep link for one recipient.
func (w *WhatsAppLink) Send(ctx context.Context, recipient, message string) Result {
	link := LinkURL(recipient, message)
	raw, _ := json.Marshal(map[string]string{
		"whatsapp_url": link,
		"clean_number": strings.TrimPrefix(recipient, "+"),
	})
	return Result{Success: true, MessageID: link, Response: raw}
}

// LinkURL builds the wa.me URL for a canonical phone number. The number
// loses its plus prefix and the message is query-encoded.
func LinkURL(canonical, message string) string {
	number := strings.TrimPrefix(canonical, "+")
	return "https://wa.me/" + number + "?text=" + url.QueryEscape(message)
}

var _ Adapter = (*WhatsAppLink)(nil)
