// Package notify composes trend computation, message formatting, and
// dispatch into the operations the HTTP API and CLI expose.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"agri-price-notify/internal/dispatch"
	"agri-price-notify/internal/message"
	"agri-price-notify/internal/provider"
	"agri-price-notify/internal/storage"
	"agri-price-notify/internal/trend"
)

// Dispatcher runs one send request to a terminal status.
type Dispatcher interface {
	Dispatch(ctx context.Context, req dispatch.Request) (dispatch.Result, error)
}

// Options tune the notification service.
type Options struct {
	WindowDays int
	Audience   string
}

// Service orchestrates price lookups, formatting, and dispatch.
type Service struct {
	prices     storage.PriceStore
	farmers    storage.FarmerStore
	templates  storage.TemplateStore
	dispatcher Dispatcher
	logger     zerolog.Logger
	opts       Options
	now        func() time.Time
}

// New constructs the notification service. Store interfaces may be nil;
// trend operations then serve representative sample data.
func New(prices storage.PriceStore, farmers storage.FarmerStore, templates storage.TemplateStore, dispatcher Dispatcher, opts Options, logger zerolog.Logger) *Service {
	if opts.WindowDays <= 0 {
		opts.WindowDays = 7
	}
	if opts.Audience == "" {
		opts.Audience = "Farmers"
	}
	return &Service{
		prices:     prices,
		farmers:    farmers,
		templates:  templates,
		dispatcher: dispatcher,
		logger:     logger.With().Str("component", "notify").Logger(),
		opts:       opts,
		now:        time.Now,
	}
}

// TrendsRequest asks for the current price trends to be sent out.
type TrendsRequest struct {
	Recipients   []string
	Names        []string
	Provider     string
	ScheduleTime *time.Time
}

// TrendsResult pairs the dispatch outcome with the content that was sent.
type TrendsResult struct {
	Dispatch dispatch.Result `json:"dispatch"`
	Message  string          `json:"message"`
	Trends   []trend.Entry   `json:"trends"`
	Sample   bool            `json:"sample_data"`
}

// CurrentTrends computes trends from stored prices. When the store is
// empty or unreachable it falls back to representative sample data so the
// notification path stays demonstrable.
func (s *Service) CurrentTrends(ctx context.Context) ([]trend.Entry, bool, error) {
	if s.prices == nil {
		return trend.Samples(s.now()), true, nil
	}

	records, err := s.prices.ListRecentPrices(ctx, s.opts.WindowDays)
	if err != nil {
		s.logger.Warn().Err(err).Msg("price lookup failed, serving sample trends")
		return trend.Samples(s.now()), true, nil
	}

	entries := trend.Compute(records)
	if len(entries) == 0 {
		return trend.Samples(s.now()), true, nil
	}
	return entries, false, nil
}

// PreviewTrends renders the trend message without dispatching anything.
func (s *Service) PreviewTrends(ctx context.Context, names []string) (TrendsResult, error) {
	entries, sample, err := s.CurrentTrends(ctx)
	if err != nil {
		return TrendsResult{}, err
	}
	return TrendsResult{
		Message: message.FormatWhatsApp(entries, names, s.now()),
		Trends:  entries,
		Sample:  sample,
	}, nil
}

// SendPriceTrends computes trends, formats them for the chosen channel,
// and dispatches to the requested recipients. Trend sends default to the
// WhatsApp link channel so the outcomes carry per-recipient wa.me URLs.
func (s *Service) SendPriceTrends(ctx context.Context, req TrendsRequest) (TrendsResult, error) {
	entries, sample, err := s.CurrentTrends(ctx)
	if err != nil {
		return TrendsResult{}, err
	}

	providerName := req.Provider
	if providerName == "" {
		providerName = provider.NameWhatsApp
	}

	names := req.Names
	if len(names) == 0 {
		names = []string{s.opts.Audience}
	}

	body := s.formatFor(providerName, entries, names)
	result, err := s.dispatcher.Dispatch(ctx, dispatch.Request{
		Message:      body,
		Recipients:   req.Recipients,
		Provider:     providerName,
		ScheduleTime: req.ScheduleTime,
	})
	if err != nil {
		return TrendsResult{}, err
	}

	return TrendsResult{Dispatch: result, Message: body, Trends: entries, Sample: sample}, nil
}

// formatFor picks the rich WhatsApp rendering for unrestricted channels and
// the condensed single-line form for 160-character SMS routes.
func (s *Service) formatFor(providerName string, entries []trend.Entry, names []string) string {
	switch providerName {
	case "", provider.NameWhatsApp, provider.NameSimulation:
		return message.FormatWhatsApp(entries, names, s.now())
	default:
		return message.FormatSMS(entries, s.now())
	}
}

// SendRequest is a plain message send with no lookup or formatting.
type SendRequest struct {
	Message      string
	Recipients   []string
	Provider     string
	ScheduleTime *time.Time
}

// Send dispatches a caller-supplied message as-is.
func (s *Service) Send(ctx context.Context, req SendRequest) (dispatch.Result, error) {
	return s.dispatcher.Dispatch(ctx, dispatch.Request{
		Message:      req.Message,
		Recipients:   req.Recipients,
		Provider:     req.Provider,
		ScheduleTime: req.ScheduleTime,
	})
}

// AlertRequest asks for a single product price alert.
type AlertRequest struct {
	Product    string
	Market     string
	Name       string
	Recipients []string
	Provider   string
}

// PriceAlert looks up the latest price for a product and dispatches the
// rendered alert template.
func (s *Service) PriceAlert(ctx context.Context, req AlertRequest) (dispatch.Result, string, error) {
	if req.Product == "" {
		return dispatch.Result{}, "", fmt.Errorf("notify: product is required")
	}
	if s.prices == nil {
		return dispatch.Result{}, "", storage.ErrNotConfigured
	}

	record, err := s.prices.LatestPrice(ctx, req.Product, req.Market)
	if err != nil {
		return dispatch.Result{}, "", fmt.Errorf("latest price for %q: %w", req.Product, err)
	}

	name := req.Name
	if name == "" {
		name = "Farmer"
	}
	body := message.RenderTemplate(message.PriceAlertTemplate, map[string]string{
		"name":    name,
		"product": record.ProductName,
		"market":  record.MarketName,
		"price":   record.Price.StringFixed(2),
		"unit":    record.Unit,
	})

	result, err := s.dispatcher.Dispatch(ctx, dispatch.Request{
		Message:    body,
		Recipients: req.Recipients,
		Provider:   req.Provider,
	})
	if err != nil {
		return dispatch.Result{}, "", err
	}
	return result, body, nil
}

// BulkRequest addresses every registered farmer, optionally filtered by crop.
type BulkRequest struct {
	Crop     string
	Message  string
	Provider string
}

// BulkFarmers resolves recipient numbers from the farmer registry and
// dispatches one message to all of them.
func (s *Service) BulkFarmers(ctx context.Context, req BulkRequest) (dispatch.Result, error) {
	if s.farmers == nil {
		return dispatch.Result{}, storage.ErrNotConfigured
	}

	var (
		phones []string
		err    error
	)
	if req.Crop != "" {
		phones, err = s.farmers.FarmerPhonesByCrop(ctx, req.Crop)
	} else {
		phones, err = s.farmers.AllFarmerPhones(ctx)
	}
	if err != nil {
		return dispatch.Result{}, fmt.Errorf("resolve farmer phones: %w", err)
	}
	if len(phones) == 0 {
		return dispatch.Result{}, fmt.Errorf("notify: no farmers matched%s: %w", cropSuffix(req.Crop), dispatch.ErrNoRecipients)
	}

	return s.dispatcher.Dispatch(ctx, dispatch.Request{
		Message:    req.Message,
		Recipients: phones,
		Provider:   req.Provider,
	})
}

func cropSuffix(crop string) string {
	if crop == "" {
		return ""
	}
	return fmt.Sprintf(" crop %q", crop)
}

// TemplateRequest dispatches a stored template with variable substitution.
type TemplateRequest struct {
	TemplateID int64
	Variables  map[string]string
	Recipients []string
	Provider   string
}

// SendTemplate renders a stored template and dispatches it.
func (s *Service) SendTemplate(ctx context.Context, req TemplateRequest) (dispatch.Result, string, error) {
	if s.templates == nil {
		return dispatch.Result{}, "", storage.ErrNotConfigured
	}

	tpl, err := s.templates.GetTemplate(ctx, req.TemplateID)
	if err != nil {
		return dispatch.Result{}, "", fmt.Errorf("template %d: %w", req.TemplateID, err)
	}
	if !tpl.IsActive {
		return dispatch.Result{}, "", fmt.Errorf("notify: template %d is inactive", req.TemplateID)
	}

	body := message.RenderTemplate(tpl.Message, req.Variables)
	result, err := s.dispatcher.Dispatch(ctx, dispatch.Request{
		Message:    body,
		Recipients: req.Recipients,
		Provider:   req.Provider,
	})
	if err != nil {
		return dispatch.Result{}, "", err
	}
	return result, body, nil
}
