package provider

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// TwilioOptions parameterise the Twilio adapter. AccountSID and AuthToken
// are both required; without them Send short-circuits.
type TwilioOptions struct {
	BaseURL    string `mapstructure:"base_url"`
	AccountSID string `mapstructure:"account_sid"`
	AuthToken  string `mapstructure:"auth_token"`
	FromNumber string `mapstructure:"from_number"`
}

// Twilio sends via the Twilio Messages API with HTTP basic auth.
type Twilio struct {
	opts   TwilioOptions
	client *resty.Client
	logger zerolog.Logger
}

// NewTwilio constructs the Twilio adapter.
func NewTwilio(opts TwilioOptions, timeout time.Duration, logger zerolog.Logger) *Twilio {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.twilio.com"
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	return &Twilio{
		opts:   opts,
		client: newHTTPClient(timeout),
		logger: logger.With().Str("component", "provider_twilio").Logger(),
	}
}

func (t *Twilio) Name() string { return NameTwilio }

func (t *Twilio) MaxMessageLength() int { return 160 }

// Send posts the message, or reports a credential failure without any
// network call when the account is not configured.
func (t *Twilio) Send(ctx context.Context, recipient, message string) Result {
	if t.opts.AccountSID == "" || t.opts.AuthToken == "" {
		return Result{Success: false, ErrorDetail: "twilio credentials not configured"}
	}

	endpoint := t.opts.BaseURL + "/2010-04-01/Accounts/" + t.opts.AccountSID + "/Messages.json"
	resp, err := t.client.R().
		SetContext(ctx).
		SetBasicAuth(t.opts.AccountSID, t.opts.AuthToken).
		SetFormData(map[string]string{
			"From": t.opts.FromNumber,
			"To":   recipient,
			"Body": message,
		}).
		Post(endpoint)
	if err != nil {
		return transportFailure(err)
	}

	var payload struct {
		SID     string `json:"sid"`
		Message string `json:"message"`
	}
	_ = json.Unmarshal(resp.Body(), &payload)

	// Twilio answers 201 Created on acceptance.
	if resp.StatusCode() != 201 {
		detail := payload.Message
		if detail == "" {
			detail = httpFailure(resp.StatusCode(), resp.Body()).ErrorDetail
		}
		return Result{Success: false, ErrorDetail: detail, Response: rawBody(resp.Body())}
	}

	return Result{Success: true, MessageID: payload.SID, Response: rawBody(resp.Body())}
}

var _ Adapter = (*Twilio)(nil)
