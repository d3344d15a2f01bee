package provider

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// TextLocalOptions parameterise the TextLocal adapter.
type TextLocalOptions struct {
	APIURL string `mapstructure:"api_url"`
	APIKey string `mapstructure:"api_key"`
	Sender string `mapstructure:"sender"`
}

// TextLocal sends via the TextLocal bulk SMS API, popular for Indian
// destinations.
type TextLocal struct {
	opts   TextLocalOptions
	client *resty.Client
	logger zerolog.Logger
}

// NewTextLocal constructs the TextLocal adapter.
func NewTextLocal(opts TextLocalOptions, timeout time.Duration, logger zerolog.Logger) *TextLocal {
	if opts.APIURL == "" {
		opts.APIURL = "https://api.textlocal.in/send/"
	}
	if opts.Sender == "" {
		opts.Sender = "MARKET"
	}
	return &TextLocal{
		opts:   opts,
		client: newHTTPClient(timeout),
		logger: logger.With().Str("component", "provider_textlocal").Logger(),
	}
}

func (t *TextLocal) Name() string { return NameTextLocal }

func (t *TextLocal) MaxMessageLength() int { return 160 }

// Send posts the message and checks TextLocal's status field.
func (t *TextLocal) Send(ctx context.Context, recipient, message string) Result {
	resp, err := t.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"apikey":  t.opts.APIKey,
			"numbers": recipient,
			"message": message,
			"sender":  t.opts.Sender,
		}).
		Post(t.opts.APIURL)
	if err != nil {
		return transportFailure(err)
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return httpFailure(resp.StatusCode(), resp.Body())
	}

	var payload struct {
		Status   string `json:"status"`
		Messages []struct {
			ID json.Number `json:"id"`
		} `json:"messages"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(resp.Body(), &payload); err != nil {
		return Result{Success: false, ErrorDetail: "unparseable provider response", Response: rawBody(resp.Body())}
	}

	if payload.Status != "success" {
		detail := "provider reported failure"
		if len(payload.Errors) > 0 && payload.Errors[0].Message != "" {
			detail = payload.Errors[0].Message
		}
		return Result{Success: false, ErrorDetail: detail, Response: rawBody(resp.Body())}
	}

	result := Result{Success: true, Response: rawBody(resp.Body())}
	if len(payload.Messages) > 0 {
		result.MessageID = payload.Messages[0].ID.String()
	}
	return result
}

var _ Adapter = (*TextLocal)(nil)
