// Package dispatch orchestrates one send request: validate, normalize
// recipients, persist a pending record, fan out across the selected
// provider, and aggregate per-recipient outcomes into a terminal status.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"agri-price-notify/internal/phone"
	"agri-price-notify/internal/provider"
	"agri-price-notify/internal/storage"
)

// Status of a dispatch record or a single recipient.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSent      Status = "sent"
	StatusPartial   Status = "partial"
	StatusFailed    Status = "failed"
	StatusScheduled Status = "scheduled"
)

// Validation errors; rejected before any provider call and never retried.
var (
	ErrEmptyMessage      = errors.New("dispatch: message is required")
	ErrNoRecipients      = errors.New("dispatch: recipients are required")
	ErrNoValidRecipients = errors.New("dispatch: no valid phone numbers provided")
	ErrMessageTooLong    = errors.New("dispatch: message exceeds provider length limit")
	ErrStoreRequired     = errors.New("dispatch: scheduling requires a configured store")
)

// Request is one logical send request. Consumed once, never mutated.
type Request struct {
	Message      string
	Recipients   []string
	Provider     string
	ScheduleTime *time.Time
}

// Outcome is the per-recipient result of a dispatch.
type Outcome struct {
	Phone     string          `json:"phone"`
	Status    Status          `json:"status"`
	MessageID string          `json:"message_id,omitempty"`
	Detail    string          `json:"detail,omitempty"`
	Response  json.RawMessage `json:"response,omitempty"`
}

// Result summarises a completed (or scheduled) dispatch.
type Result struct {
	ID           int64             `json:"sms_id"`
	Provider     string            `json:"provider"`
	Status       Status            `json:"status"`
	Sent         int               `json:"sent"`
	Failed       int               `json:"failed"`
	Cost         decimal.Decimal   `json:"cost"`
	Recipients   []string          `json:"recipients"`
	Rejected     []phone.Rejection `json:"rejected,omitempty"`
	Outcomes     []Outcome         `json:"details,omitempty"`
	ScheduledFor *time.Time        `json:"scheduled_for,omitempty"`
}

// Store persists dispatch records and per-recipient outcomes. A nil Store
// disables persistence; dispatching still works.
type Store interface {
	CreateDispatch(ctx context.Context, rec storage.DispatchRecord) (int64, error)
	AddDispatchRecipient(ctx context.Context, dispatchID int64, phone string) (int64, error)
	UpdateDispatchRecipient(ctx context.Context, recipientID int64, status string, response []byte) error
	FinalizeDispatch(ctx context.Context, dispatchID int64, status string, cost decimal.Decimal, errMsg *string) error
}

// AdapterFactory resolves a provider name to a delivery adapter.
type AdapterFactory interface {
	New(name string) (provider.Adapter, error)
}

// Options tune coordinator behaviour.
type Options struct {
	DefaultProvider string
	CountryCode     string
	CostPerMessage  decimal.Decimal
	SendTimeout     time.Duration
}

// Coordinator drives the dispatch state machine. One invocation exclusively
// owns the record it creates; independent dispatches need no coordination.
type Coordinator struct {
	factory AdapterFactory
	store   Store
	opts    Options
	logger  zerolog.Logger
	now     func() time.Time
}

// New constructs a dispatch coordinator.
func New(factory AdapterFactory, store Store, opts Options, logger zerolog.Logger) *Coordinator {
	if opts.DefaultProvider == "" {
		opts.DefaultProvider = provider.NameSimulation
	}
	if opts.CountryCode == "" {
		opts.CountryCode = "91"
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = provider.DefaultRequestTimeout
	}
	return &Coordinator{
		factory: factory,
		store:   store,
		opts:    opts,
		logger:  logger.With().Str("component", "dispatch").Logger(),
		now:     time.Now,
	}
}

// Dispatch runs one request to a terminal status.
func (c *Coordinator) Dispatch(ctx context.Context, req Request) (Result, error) {
	providerName := req.Provider
	if providerName == "" {
		providerName = c.opts.DefaultProvider
	}

	adapter, err := c.factory.New(providerName)
	if err != nil {
		return Result{}, err
	}

	if err := validate(req, adapter); err != nil {
		return Result{}, err
	}

	valid, rejected := phone.NormalizeAll(req.Recipients, c.opts.CountryCode)
	if len(valid) == 0 {
		return Result{}, fmt.Errorf("%w (%d rejected)", ErrNoValidRecipients, len(rejected))
	}

	if req.ScheduleTime != nil && req.ScheduleTime.After(c.now()) {
		return c.schedule(ctx, req, providerName, valid, rejected)
	}

	record := storage.DispatchRecord{
		Message:        req.Message,
		Provider:       providerName,
		RecipientCount: len(valid),
		Recipients:     valid,
		Cost:           decimal.Zero,
		Status:         string(StatusPending),
	}

	var dispatchID int64
	if c.store != nil {
		dispatchID, err = c.store.CreateDispatch(ctx, record)
		if err != nil {
			// Nothing has been attempted yet; failing here loses no sends.
			return Result{}, fmt.Errorf("persist dispatch: %w", err)
		}
	}

	result := c.execute(ctx, adapter, dispatchID, req.Message, valid)
	result.Rejected = rejected
	return result, nil
}

// ExecuteStored runs a previously persisted dispatch, e.g. one drained from
// the scheduled queue. Recipients are already canonical.
func (c *Coordinator) ExecuteStored(ctx context.Context, rec storage.DispatchRecord) (Result, error) {
	adapter, err := c.factory.New(rec.Provider)
	if err != nil {
		return Result{}, err
	}
	return c.execute(ctx, adapter, rec.ID, rec.Message, rec.Recipients), nil
}

func validate(req Request, adapter provider.Adapter) error {
	if req.Message == "" {
		return ErrEmptyMessage
	}
	if len(req.Recipients) == 0 {
		return ErrNoRecipients
	}
	if max := adapter.MaxMessageLength(); max > 0 {
		if length := utf8.RuneCountInString(req.Message); length > max {
			return fmt.Errorf("%w: %d > %d", ErrMessageTooLong, length, max)
		}
	}
	return nil
}

func (c *Coordinator) schedule(ctx context.Context, req Request, providerName string, valid []string, rejected []phone.Rejection) (Result, error) {
	if c.store == nil {
		return Result{}, ErrStoreRequired
	}

	scheduleAt := req.ScheduleTime.UTC()
	record := storage.DispatchRecord{
		Message:        req.Message,
		Provider:       providerName,
		RecipientCount: len(valid),
		Recipients:     valid,
		Cost:           decimal.Zero,
		Status:         string(StatusScheduled),
		ScheduleTime:   &scheduleAt,
	}

	id, err := c.store.CreateDispatch(ctx, record)
	if err != nil {
		return Result{}, fmt.Errorf("persist scheduled dispatch: %w", err)
	}

	c.logger.Info().Int64("dispatch_id", id).Time("schedule_time", scheduleAt).Msg("dispatch scheduled")
	return Result{
		ID:           id,
		Provider:     providerName,
		Status:       StatusScheduled,
		Cost:         decimal.Zero,
		Recipients:   valid,
		Rejected:     rejected,
		ScheduledFor: &scheduleAt,
	}, nil
}

// execute fans the message out across recipients sequentially, each send
// bounded by its own timeout, and aggregates the outcomes.
func (c *Coordinator) execute(ctx context.Context, adapter provider.Adapter, dispatchID int64, messageBody string, recipients []string) Result {
	outcomes := make([]Outcome, 0, len(recipients))
	sent := 0

	for _, recipient := range recipients {
		var recipientID int64
		if c.store != nil && dispatchID != 0 {
			id, err := c.store.AddDispatchRecipient(ctx, dispatchID, recipient)
			if err != nil {
				c.logger.Error().Err(err).Str("phone", recipient).Msg("failed to persist recipient row")
			} else {
				recipientID = id
			}
		}

		sendCtx, cancel := context.WithTimeout(ctx, c.opts.SendTimeout)
		sendResult := adapter.Send(sendCtx, recipient, messageBody)
		cancel()

		status := StatusFailed
		if sendResult.Success {
			status = StatusSent
			sent++
		} else {
			c.logger.Warn().Str("phone", recipient).Str("provider", adapter.Name()).
				Str("detail", sendResult.ErrorDetail).Msg("send failed")
		}

		if c.store != nil && recipientID != 0 {
			if err := c.store.UpdateDispatchRecipient(ctx, recipientID, string(status), sendResult.Response); err != nil {
				c.logger.Error().Err(err).Int64("recipient_id", recipientID).Msg("failed to update recipient row")
			}
		}

		outcomes = append(outcomes, Outcome{
			Phone:     recipient,
			Status:    status,
			MessageID: sendResult.MessageID,
			Detail:    sendResult.ErrorDetail,
			Response:  sendResult.Response,
		})
	}

	failed := len(recipients) - sent
	finalStatus := aggregateStatus(sent, failed)
	// Cost accrues for delivered messages only; failures are free.
	cost := c.opts.CostPerMessage.Mul(decimal.NewFromInt(int64(sent)))

	if c.store != nil && dispatchID != 0 {
		var errMsg *string
		if failed > 0 {
			msg := fmt.Sprintf("%d of %d sends failed", failed, len(recipients))
			errMsg = &msg
		}
		if err := c.store.FinalizeDispatch(ctx, dispatchID, string(finalStatus), cost, errMsg); err != nil {
			// Best effort: the caller still gets the computed result.
			c.logger.Error().Err(err).Int64("dispatch_id", dispatchID).Msg("failed to finalize dispatch record")
		}
	}

	c.logger.Info().Int64("dispatch_id", dispatchID).Str("provider", adapter.Name()).
		Int("sent", sent).Int("failed", failed).Str("status", string(finalStatus)).
		Str("cost", cost.String()).Msg("dispatch completed")

	return Result{
		ID:         dispatchID,
		Provider:   adapter.Name(),
		Status:     finalStatus,
		Sent:       sent,
		Failed:     failed,
		Cost:       cost,
		Recipients: recipients,
		Outcomes:   outcomes,
	}
}

func aggregateStatus(sent, failed int) Status {
	switch {
	case failed == 0:
		return StatusSent
	case sent == 0:
		return StatusFailed
	default:
		return StatusPartial
	}
}

// IsValidationError reports whether err belongs to the pre-dispatch
// validation taxonomy, i.e. nothing was attempted against a provider.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrEmptyMessage) ||
		errors.Is(err, ErrNoRecipients) ||
		errors.Is(err, ErrNoValidRecipients) ||
		errors.Is(err, ErrMessageTooLong) ||
		errors.Is(err, provider.ErrUnknownProvider)
}
