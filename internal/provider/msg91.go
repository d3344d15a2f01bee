package provider

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// MSG91Options parameterise the MSG91 adapter. Route 4 is transactional.
type MSG91Options struct {
	APIURL  string `mapstructure:"api_url"`
	AuthKey string `mapstructure:"auth_key"`
	Sender  string `mapstructure:"sender"`
	Route   int    `mapstructure:"route"`
}

// MSG91 sends via the MSG91 HTTP API; unusually for this family it is a GET
// with query parameters rather than a form POST.
type MSG91 struct {
	opts   MSG91Options
	client *resty.Client
	logger zerolog.Logger
}

// NewMSG91 constructs the MSG91 adapter.
func NewMSG91(opts MSG91Options, timeout time.Duration, logger zerolog.Logger) *MSG91 {
	if opts.APIURL == "" {
		opts.APIURL = "https://api.msg91.com/api/sendhttp.php"
	}
	if opts.Sender == "" {
		opts.Sender = "MARKET"
	}
	if opts.Route == 0 {
		opts.Route = 4
	}
	return &MSG91{
		opts:   opts,
		client: newHTTPClient(timeout),
		logger: logger.With().Str("component", "provider_msg91").Logger(),
	}
}

func (m *MSG91) Name() string { return NameMSG91 }

func (m *MSG91) MaxMessageLength() int { return 160 }

// Send issues the GET request and checks the type field of the response.
func (m *MSG91) Send(ctx context.Context, recipient, message string) Result {
	resp, err := m.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"authkey": m.opts.AuthKey,
			"mobiles": recipient,
			"message": message,
			"sender":  m.opts.Sender,
			"route":   strconv.Itoa(m.opts.Route),
		}).
		Get(m.opts.APIURL)
	if err != nil {
		return transportFailure(err)
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return httpFailure(resp.StatusCode(), resp.Body())
	}

	var payload struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(resp.Body(), &payload); err != nil {
		return Result{Success: false, ErrorDetail: "unparseable provider response", Response: rawBody(resp.Body())}
	}

	if payload.Type != "success" {
		detail := payload.Message
		if detail == "" {
			detail = "provider reported failure"
		}
		return Result{Success: false, ErrorDetail: detail, Response: rawBody(resp.Body())}
	}

	// On success the message field carries the request id.
	return Result{Success: true, MessageID: payload.Message, Response: rawBody(resp.Body())}
}

var _ Adapter = (*MSG91)(nil)
