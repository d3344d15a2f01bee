package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"agri-price-notify/internal/provider"
	"agri-price-notify/internal/storage"
)

type fakeAdapter struct {
	name    string
	maxLen  int
	failFor map[string]string
	calls   []string
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) MaxMessageLength() int { return f.maxLen }

func (f *fakeAdapter) Send(_ context.Context, recipient, _ string) provider.Result {
	f.calls = append(f.calls, recipient)
	if detail, ok := f.failFor[recipient]; ok {
		return provider.Result{Success: false, ErrorDetail: detail}
	}
	return provider.Result{Success: true, MessageID: "msg_" + recipient, Response: json.RawMessage(`{"ok":true}`)}
}

type fakeFactory struct {
	adapter *fakeAdapter
}

func (f *fakeFactory) New(name string) (provider.Adapter, error) {
	if f.adapter == nil || name != f.adapter.name {
		return nil, fmt.Errorf("%w: %s", provider.ErrUnknownProvider, name)
	}
	return f.adapter, nil
}

type fakeStore struct {
	created    []storage.DispatchRecord
	recipients []string
	updates    map[int64]string
	finalized  string
	finalCost  decimal.Decimal
	finalErr   *string
	createErr  error
	nextRecID  int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{updates: map[int64]string{}}
}

func (s *fakeStore) CreateDispatch(_ context.Context, rec storage.DispatchRecord) (int64, error) {
	if s.createErr != nil {
		return 0, s.createErr
	}
	s.created = append(s.created, rec)
	return int64(len(s.created)), nil
}

func (s *fakeStore) AddDispatchRecipient(_ context.Context, _ int64, phone string) (int64, error) {
	s.recipients = append(s.recipients, phone)
	s.nextRecID++
	return s.nextRecID, nil
}

func (s *fakeStore) UpdateDispatchRecipient(_ context.Context, recipientID int64, status string, _ []byte) error {
	s.updates[recipientID] = status
	return nil
}

func (s *fakeStore) FinalizeDispatch(_ context.Context, _ int64, status string, cost decimal.Decimal, errMsg *string) error {
	s.finalized = status
	s.finalCost = cost
	s.finalErr = errMsg
	return nil
}

func newCoordinator(adapter *fakeAdapter, store Store, opts Options) *Coordinator {
	return New(&fakeFactory{adapter: adapter}, store, opts, zerolog.Nop())
}

func TestDispatchAllSucceed(t *testing.T) {
	adapter := &fakeAdapter{name: "simulation"}
	store := newFakeStore()
	c := newCoordinator(adapter, store, Options{
		DefaultProvider: "simulation",
		CostPerMessage:  decimal.RequireFromString("0.25"),
	})

	result, err := c.Dispatch(context.Background(), Request{
		Message:    "hello",
		Recipients: []string{"9876543210", "+919876543211"},
	})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if result.Status != StatusSent {
		t.Fatalf("expected sent, got %s", result.Status)
	}
	if result.Sent != 2 || result.Failed != 0 {
		t.Fatalf("unexpected counts: sent=%d failed=%d", result.Sent, result.Failed)
	}
	if !result.Cost.Equal(decimal.RequireFromString("0.50")) {
		t.Fatalf("cost should be 2 x 0.25, got %s", result.Cost)
	}
	if store.finalized != "sent" {
		t.Fatalf("store should be finalized as sent, got %q", store.finalized)
	}
	if store.finalErr != nil {
		t.Fatalf("no error message expected on full success, got %q", *store.finalErr)
	}
}

func TestDispatchPartialFailure(t *testing.T) {
	adapter := &fakeAdapter{name: "simulation", failFor: map[string]string{"+919876543211": "carrier rejected"}}
	store := newFakeStore()
	c := newCoordinator(adapter, store, Options{
		DefaultProvider: "simulation",
		CostPerMessage:  decimal.RequireFromString("0.25"),
	})

	result, err := c.Dispatch(context.Background(), Request{
		Message:    "hello",
		Recipients: []string{"+919876543210", "+919876543211", "+919876543212"},
	})
	if err != nil {
		t.Fatalf("per-recipient failures must not abort the dispatch: %v", err)
	}
	if result.Status != StatusPartial {
		t.Fatalf("expected partial, got %s", result.Status)
	}
	if result.Sent != 2 || result.Failed != 1 {
		t.Fatalf("unexpected counts: sent=%d failed=%d", result.Sent, result.Failed)
	}
	if !result.Cost.Equal(decimal.RequireFromString("0.50")) {
		t.Fatalf("failed sends must not accrue cost, got %s", result.Cost)
	}
	if store.finalErr == nil {
		t.Fatal("partial dispatch should record an error summary")
	}
	if len(adapter.calls) != 3 {
		t.Fatalf("every valid recipient must be attempted, got %d calls", len(adapter.calls))
	}
}

func TestDispatchAllFail(t *testing.T) {
	adapter := &fakeAdapter{name: "simulation", failFor: map[string]string{
		"+919876543210": "down",
		"+919876543211": "down",
	}}
	c := newCoordinator(adapter, newFakeStore(), Options{DefaultProvider: "simulation"})

	result, err := c.Dispatch(context.Background(), Request{
		Message:    "hello",
		Recipients: []string{"+919876543210", "+919876543211"},
	})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if result.Status != StatusFailed {
		t.Fatalf("expected failed, got %s", result.Status)
	}
	if !result.Cost.IsZero() {
		t.Fatalf("all-failed dispatch must cost zero, got %s", result.Cost)
	}
}

func TestDispatchValidation(t *testing.T) {
	adapter := &fakeAdapter{name: "simulation", maxLen: 160}
	c := newCoordinator(adapter, nil, Options{DefaultProvider: "simulation"})

	if _, err := c.Dispatch(context.Background(), Request{Recipients: []string{"+919876543210"}}); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
	if _, err := c.Dispatch(context.Background(), Request{Message: "hello"}); !errors.Is(err, ErrNoRecipients) {
		t.Fatalf("expected ErrNoRecipients, got %v", err)
	}

	long := make([]byte, 0, 200)
	for i := 0; i < 200; i++ {
		long = append(long, 'x')
	}
	_, err := c.Dispatch(context.Background(), Request{Message: string(long), Recipients: []string{"+919876543210"}})
	if !errors.Is(err, ErrMessageTooLong) {
		t.Fatalf("expected ErrMessageTooLong, got %v", err)
	}
	if len(adapter.calls) != 0 {
		t.Fatal("validation failures must not reach the provider")
	}
}

func TestDispatchNoValidRecipients(t *testing.T) {
	adapter := &fakeAdapter{name: "simulation"}
	store := newFakeStore()
	c := newCoordinator(adapter, store, Options{
		DefaultProvider: "simulation",
		CostPerMessage:  decimal.RequireFromString("0.25"),
	})

	_, err := c.Dispatch(context.Background(), Request{
		Message:    "hello",
		Recipients: []string{"abc", "123", ""},
	})
	if !errors.Is(err, ErrNoValidRecipients) {
		t.Fatalf("expected ErrNoValidRecipients, got %v", err)
	}
	if len(adapter.calls) != 0 {
		t.Fatal("no provider call expected when every recipient is rejected")
	}
	if len(store.created) != 0 {
		t.Fatal("nothing should be persisted when every recipient is rejected")
	}
}

func TestDispatchMixedRecipients(t *testing.T) {
	adapter := &fakeAdapter{name: "simulation"}
	store := newFakeStore()
	c := newCoordinator(adapter, store, Options{
		DefaultProvider: "simulation",
		CostPerMessage:  decimal.RequireFromString("0.25"),
	})

	result, err := c.Dispatch(context.Background(), Request{
		Message:    "hello",
		Recipients: []string{"9876543210", "+919876543211", "invalid"},
	})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if result.Status != StatusSent {
		t.Fatalf("expected sent, got %s", result.Status)
	}
	if result.Sent != 2 {
		t.Fatalf("expected 2 deliveries, got %d", result.Sent)
	}
	if len(result.Rejected) != 1 || result.Rejected[0].Raw != "invalid" {
		t.Fatalf("rejection report missing: %+v", result.Rejected)
	}
	if !result.Cost.Equal(decimal.RequireFromString("0.50")) {
		t.Fatalf("cost should count valid deliveries only, got %s", result.Cost)
	}
	if store.created[0].RecipientCount != 2 {
		t.Fatalf("persisted recipient count should exclude rejects, got %d", store.created[0].RecipientCount)
	}
}

func TestDispatchUnknownProvider(t *testing.T) {
	c := newCoordinator(&fakeAdapter{name: "simulation"}, nil, Options{DefaultProvider: "simulation"})
	_, err := c.Dispatch(context.Background(), Request{
		Message:    "hello",
		Recipients: []string{"+919876543210"},
		Provider:   "carrier-pigeon",
	})
	if !errors.Is(err, provider.ErrUnknownProvider) {
		t.Fatalf("expected ErrUnknownProvider, got %v", err)
	}
	if !IsValidationError(err) {
		t.Fatal("unknown provider belongs to the validation taxonomy")
	}
}

func TestDispatchScheduledIsRecordedNotExecuted(t *testing.T) {
	adapter := &fakeAdapter{name: "simulation"}
	store := newFakeStore()
	c := newCoordinator(adapter, store, Options{DefaultProvider: "simulation"})

	future := time.Now().Add(2 * time.Hour)
	result, err := c.Dispatch(context.Background(), Request{
		Message:      "hello",
		Recipients:   []string{"+919876543210"},
		ScheduleTime: &future,
	})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if result.Status != StatusScheduled {
		t.Fatalf("expected scheduled, got %s", result.Status)
	}
	if len(adapter.calls) != 0 {
		t.Fatal("scheduled dispatches must not be executed inline")
	}
	if len(store.created) != 1 || store.created[0].Status != "scheduled" {
		t.Fatalf("scheduled record not persisted: %+v", store.created)
	}
	if store.created[0].ScheduleTime == nil {
		t.Fatal("schedule time must be persisted")
	}
}

func TestDispatchPastScheduleTimeSendsNow(t *testing.T) {
	adapter := &fakeAdapter{name: "simulation"}
	c := newCoordinator(adapter, newFakeStore(), Options{DefaultProvider: "simulation"})

	past := time.Now().Add(-time.Minute)
	result, err := c.Dispatch(context.Background(), Request{
		Message:      "hello",
		Recipients:   []string{"+919876543210"},
		ScheduleTime: &past,
	})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if result.Status != StatusSent {
		t.Fatalf("past schedule times send immediately, got %s", result.Status)
	}
}

func TestDispatchScheduleWithoutStore(t *testing.T) {
	c := newCoordinator(&fakeAdapter{name: "simulation"}, nil, Options{DefaultProvider: "simulation"})
	future := time.Now().Add(time.Hour)
	_, err := c.Dispatch(context.Background(), Request{
		Message:      "hello",
		Recipients:   []string{"+919876543210"},
		ScheduleTime: &future,
	})
	if !errors.Is(err, ErrStoreRequired) {
		t.Fatalf("expected ErrStoreRequired, got %v", err)
	}
}

func TestDispatchCreateFailureAborts(t *testing.T) {
	adapter := &fakeAdapter{name: "simulation"}
	store := newFakeStore()
	store.createErr = errors.New("db down")
	c := newCoordinator(adapter, store, Options{DefaultProvider: "simulation"})

	_, err := c.Dispatch(context.Background(), Request{
		Message:    "hello",
		Recipients: []string{"+919876543210"},
	})
	if err == nil {
		t.Fatal("initial persistence failure must abort before sending")
	}
	if len(adapter.calls) != 0 {
		t.Fatal("no sends expected after persistence failure")
	}
}

func TestDispatchWithoutStore(t *testing.T) {
	adapter := &fakeAdapter{name: "simulation"}
	c := newCoordinator(adapter, nil, Options{
		DefaultProvider: "simulation",
		CostPerMessage:  decimal.RequireFromString("0.10"),
	})

	result, err := c.Dispatch(context.Background(), Request{
		Message:    "hello",
		Recipients: []string{"+919876543210"},
	})
	if err != nil {
		t.Fatalf("dispatch without a store must still work: %v", err)
	}
	if result.Status != StatusSent || result.ID != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestExecuteStored(t *testing.T) {
	adapter := &fakeAdapter{name: "simulation"}
	store := newFakeStore()
	c := newCoordinator(adapter, store, Options{
		DefaultProvider: "simulation",
		CostPerMessage:  decimal.RequireFromString("0.25"),
	})

	result, err := c.ExecuteStored(context.Background(), storage.DispatchRecord{
		ID:         42,
		Message:    "hello",
		Provider:   "simulation",
		Recipients: []string{"+919876543210", "+919876543211"},
	})
	if err != nil {
		t.Fatalf("execute stored: %v", err)
	}
	if result.ID != 42 || result.Status != StatusSent || result.Sent != 2 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if store.finalized != "sent" {
		t.Fatalf("stored dispatch should be finalized, got %q", store.finalized)
	}
}

func TestAggregateStatus(t *testing.T) {
	cases := []struct {
		sent, failed int
		want         Status
	}{
		{3, 0, StatusSent},
		{0, 3, StatusFailed},
		{2, 1, StatusPartial},
		{0, 0, StatusSent},
	}
	for _, tc := range cases {
		if got := aggregateStatus(tc.sent, tc.failed); got != tc.want {
			t.Errorf("aggregateStatus(%d, %d) = %s, want %s", tc.sent, tc.failed, got, tc.want)
		}
	}
}
