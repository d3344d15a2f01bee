package provider

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// TextBeltOptions parameterise the TextBelt adapter. The free tier uses
// "textbelt" as the API key and serves US/Canada numbers only.
type TextBeltOptions struct {
	APIURL string `mapstructure:"api_url"`
	APIKey string `mapstructure:"api_key"`
}

// TextBelt sends one form POST per recipient against textbelt.com.
type TextBelt struct {
	opts   TextBeltOptions
	client *resty.Client
	logger zerolog.Logger
}

// NewTextBelt constructs the TextBelt adapter.
func NewTextBelt(opts TextBeltOptions, timeout time.Duration, logger zerolog.Logger) *TextBelt {
	if opts.APIURL == "" {
		opts.APIURL = "https://textbelt.com/text"
	}
	if opts.APIKey == "" {
		opts.APIKey = "textbelt"
	}
	return &TextBelt{
		opts:   opts,
		client: newHTTPClient(timeout),
		logger: logger.With().Str("component", "provider_textbelt").Logger(),
	}
}

func (t *TextBelt) Name() string { return NameTextBelt }

func (t *TextBelt) MaxMessageLength() int { return 160 }

// Send posts the message and interprets TextBelt's success flag.
func (t *TextBelt) Send(ctx context.Context, recipient, message string) Result {
	resp, err := t.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"phone":   recipient,
			"message": message,
			"key":     t.opts.APIKey,
		}).
		Post(t.opts.APIURL)
	if err != nil {
		return transportFailure(err)
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return httpFailure(resp.StatusCode(), resp.Body())
	}

	var payload struct {
		Success bool        `json:"success"`
		TextID  json.Number `json:"textId"`
		Error   string      `json:"error"`
	}
	if err := json.Unmarshal(resp.Body(), &payload); err != nil {
		return Result{Success: false, ErrorDetail: "unparseable provider response", Response: rawBody(resp.Body())}
	}

	result := Result{
		Success:   payload.Success,
		MessageID: payload.TextID.String(),
		Response:  rawBody(resp.Body()),
	}
	if !payload.Success {
		result.ErrorDetail = payload.Error
		if result.ErrorDetail == "" {
			result.ErrorDetail = "provider reported failure"
		}
	}
	return result
}

var _ Adapter = (*TextBelt)(nil)
