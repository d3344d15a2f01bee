package provider

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// VonageOptions parameterise the Vonage (Nexmo) adapter. APIKey and
// APISecret are both required; without them Send short-circuits.
type VonageOptions struct {
	APIURL    string `mapstructure:"api_url"`
	APIKey    string `mapstructure:"api_key"`
	APISecret string `mapstructure:"api_secret"`
	From      string `mapstructure:"from"`
}

// Vonage sends via the legacy Nexmo SMS JSON API.
type Vonage struct {
	opts   VonageOptions
	client *resty.Client
	logger zerolog.Logger
}

// NewVonage constructs the Vonage adapter.
func NewVonage(opts VonageOptions, timeout time.Duration, logger zerolog.Logger) *Vonage {
	if opts.APIURL == "" {
		opts.APIURL = "https://rest.nexmo.com/sms/json"
	}
	if opts.From == "" {
		opts.From = "MARKET"
	}
	return &Vonage{
		opts:   opts,
		client: newHTTPClient(timeout),
		logger: logger.With().Str("component", "provider_vonage").Logger(),
	}
}

func (v *Vonage) Name() string { return NameVonage }

func (v *Vonage) MaxMessageLength() int { return 160 }

// Send posts the message, or reports a credential failure without any
// network call when the account is not configured.
func (v *Vonage) Send(ctx context.Context, recipient, message string) Result {
	if v.opts.APIKey == "" || v.opts.APISecret == "" {
		return Result{Success: false, ErrorDetail: "vonage credentials not configured"}
	}

	resp, err := v.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"api_key":    v.opts.APIKey,
			"api_secret": v.opts.APISecret,
			"to":         strings.TrimPrefix(recipient, "+"),
			"from":       v.opts.From,
			"text":       message,
		}).
		Post(v.opts.APIURL)
	if err != nil {
		return transportFailure(err)
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return httpFailure(resp.StatusCode(), resp.Body())
	}

	var payload struct {
		Messages []struct {
			Status    string `json:"status"`
			MessageID string `json:"message-id"`
			ErrorText string `json:"error-text"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(resp.Body(), &payload); err != nil || len(payload.Messages) == 0 {
		return Result{Success: false, ErrorDetail: "unparseable provider response", Response: rawBody(resp.Body())}
	}

	first := payload.Messages[0]
	if first.Status != "0" {
		detail := first.ErrorText
		if detail == "" {
			detail = "provider reported failure"
		}
		return Result{Success: false, ErrorDetail: detail, Response: rawBody(resp.Body())}
	}
	return Result{Success: true, MessageID: first.MessageID, Response: rawBody(resp.Body())}
}

var _ Adapter = (*Vonage)(nil)
