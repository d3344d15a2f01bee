package provider

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// Fast2SMSOptions parameterise the Fast2SMS adapter.
type Fast2SMSOptions struct {
	APIURL string `mapstructure:"api_url"`
	APIKey string `mapstructure:"api_key"`
	Sender string `mapstructure:"sender"`
}

// Fast2SMS sends via the Fast2SMS bulk API using the promotional route.
type Fast2SMS struct {
	opts   Fast2SMSOptions
	client *resty.Client
	logger zerolog.Logger
}

// NewFast2SMS constructs the Fast2SMS adapter.
func NewFast2SMS(opts Fast2SMSOptions, timeout time.Duration, logger zerolog.Logger) *Fast2SMS {
	if opts.APIURL == "" {
		opts.APIURL = "https://www.fast2sms.com/dev/bulkV2"
	}
	if opts.Sender == "" {
		opts.Sender = "MARKET"
	}
	return &Fast2SMS{
		opts:   opts,
		client: newHTTPClient(timeout),
		logger: logger.With().Str("component", "provider_fast2sms").Logger(),
	}
}

func (f *Fast2SMS) Name() string { return NameFast2SMS }

func (f *Fast2SMS) MaxMessageLength() int { return 160 }

// Send posts the message and checks the return flag. Fast2SMS reports
// errors either as a string or as an array of strings in the message field.
func (f *Fast2SMS) Send(ctx context.Context, recipient, message string) Result {
	resp, err := f.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/x-www-form-urlencoded").
		SetFormData(map[string]string{
			"authorization": f.opts.APIKey,
			"sender_id":     f.opts.Sender,
			"message":       message,
			"language":      "english",
			"route":         "q",
			"numbers":       strings.TrimPrefix(recipient, "+"),
		}).
		Post(f.opts.APIURL)
	if err != nil {
		return transportFailure(err)
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return httpFailure(resp.StatusCode(), resp.Body())
	}

	var payload struct {
		Return    bool            `json:"return"`
		RequestID string          `json:"request_id"`
		Message   json.RawMessage `json:"message"`
	}
	if err := json.Unmarshal(resp.Body(), &payload); err != nil {
		return Result{Success: false, ErrorDetail: "unparseable provider response", Response: rawBody(resp.Body())}
	}

	if !payload.Return {
		return Result{
			Success:     false,
			ErrorDetail: flattenMessage(payload.Message),
			Response:    rawBody(resp.Body()),
		}
	}
	return Result{Success: true, MessageID: payload.RequestID, Response: rawBody(resp.Body())}
}

func flattenMessage(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "provider reported failure"
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil && single != "" {
		return single
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err == nil && len(many) > 0 {
		return strings.Join(many, ", ")
	}
	return "provider reported failure"
}

var _ Adapter = (*Fast2SMS)(nil)
