// Package provider implements the delivery channel adapters. Every adapter
// sends one message to one recipient and reports a normalized Result; a
// failing recipient never aborts the rest of a dispatch, so Send never
// returns a Go error — transport and provider failures land in the Result.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// DefaultRequestTimeout bounds each HTTP provider call.
const DefaultRequestTimeout = 30 * time.Second

// Result is the normalized outcome of one send attempt.
type Result struct {
	Success     bool
	MessageID   string
	Response    json.RawMessage
	ErrorDetail string
}

// Adapter delivers one message to one canonical recipient.
type Adapter interface {
	Name() string
	// MaxMessageLength returns the channel's message limit in characters,
	// or 0 when the channel is unrestricted.
	MaxMessageLength() int
	Send(ctx context.Context, recipient, message string) Result
}

// ErrUnknownProvider is returned when a dispatch names a provider that has
// no registered adapter.
var ErrUnknownProvider = fmt.Errorf("provider: unknown provider")

// Config carries every provider's settings. Credentials are explicit values
// handed to each adapter at construction; there is no global state.
type Config struct {
	RequestTimeout time.Duration     `mapstructure:"request_timeout"`
	TextBelt       TextBeltOptions   `mapstructure:"textbelt"`
	TextLocal      TextLocalOptions  `mapstructure:"textlocal"`
	MSG91          MSG91Options      `mapstructure:"msg91"`
	Fast2SMS       Fast2SMSOptions   `mapstructure:"fast2sms"`
	Twilio         TwilioOptions     `mapstructure:"twilio"`
	Vonage         VonageOptions     `mapstructure:"vonage"`
	Simulation     SimulationOptions `mapstructure:"simulation"`
}

// Factory builds adapters by provider name from a single Config.
type Factory struct {
	cfg    Config
	logger zerolog.Logger
}

// NewFactory constructs an adapter factory.
func NewFactory(cfg Config, logger zerolog.Logger) *Factory {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	return &Factory{cfg: cfg, logger: logger}
}

// builders maps provider names to constructors. Adding a provider means
// adding an adapter type and registering it here.
var builders = map[string]func(*Factory) Adapter{
	NameSimulation: func(f *Factory) Adapter { return NewSimulation(f.cfg.Simulation, f.logger) },
	NameWhatsApp:   func(f *Factory) Adapter { return NewWhatsAppLink(f.logger) },
	NameTextBelt:   func(f *Factory) Adapter { return NewTextBelt(f.cfg.TextBelt, f.cfg.RequestTimeout, f.logger) },
	NameTextLocal:  func(f *Factory) Adapter { return NewTextLocal(f.cfg.TextLocal, f.cfg.RequestTimeout, f.logger) },
	NameMSG91:      func(f *Factory) Adapter { return NewMSG91(f.cfg.MSG91, f.cfg.RequestTimeout, f.logger) },
	NameFast2SMS:   func(f *Factory) Adapter { return NewFast2SMS(f.cfg.Fast2SMS, f.cfg.RequestTimeout, f.logger) },
	NameTwilio:     func(f *Factory) Adapter { return NewTwilio(f.cfg.Twilio, f.cfg.RequestTimeout, f.logger) },
	NameVonage:     func(f *Factory) Adapter { return NewVonage(f.cfg.Vonage, f.cfg.RequestTimeout, f.logger) },
}

// Registered provider names.
const (
	NameSimulation = "simulation"
	NameWhatsApp   = "whatsapp"
	NameTextBelt   = "textbelt"
	NameTextLocal  = "textlocal"
	NameMSG91      = "msg91"
	NameFast2SMS   = "fast2sms"
	NameTwilio     = "twilio"
	NameVonage     = "vonage"
)

// New builds the adapter for the named provider.
func (f *Factory) New(name string) (Adapter, error) {
	build, ok := builders[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	return build(f), nil
}

// Names lists the registered provider names in stable order.
func Names() []string {
	names := make([]string, 0, len(builders))
	for name := range builders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func newHTTPClient(timeout time.Duration) *resty.Client {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	client := resty.New()
	client.SetTimeout(timeout)
	return client
}

func transportFailure(err error) Result {
	return Result{Success: false, ErrorDetail: fmt.Sprintf("transport error: %v", err)}
}

func httpFailure(status int, body []byte) Result {
	return Result{
		Success:     false,
		Response:    rawBody(body),
		ErrorDetail: fmt.Sprintf("http status %d", status),
	}
}

func rawBody(body []byte) json.RawMessage {
	if len(body) == 0 || !json.Valid(body) {
		return nil
	}
	return json.RawMessage(body)
}
