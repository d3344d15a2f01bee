package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"agri-price-notify/internal/dispatch"
	"agri-price-notify/internal/provider"
	"agri-price-notify/internal/storage"
)

type fakeDispatcher struct {
	lastReq dispatch.Request
	result  dispatch.Result
	err     error
}

func (f *fakeDispatcher) Dispatch(_ context.Context, req dispatch.Request) (dispatch.Result, error) {
	f.lastReq = req
	return f.result, f.err
}

type fakePrices struct {
	records []storage.PriceRecord
	latest  storage.PriceRecord
	err     error
}

func (f *fakePrices) ListRecentPrices(_ context.Context, _ int) ([]storage.PriceRecord, error) {
	return f.records, f.err
}

func (f *fakePrices) LatestPrice(_ context.Context, _, _ string) (storage.PriceRecord, error) {
	if f.err != nil {
		return storage.PriceRecord{}, f.err
	}
	return f.latest, nil
}

func (f *fakePrices) ListPricesBetween(_ context.Context, _ string, _, _ time.Time) ([]storage.PriceRecord, error) {
	return f.records, f.err
}

type fakeFarmers struct {
	byCrop map[string][]string
	all    []string
	err    error
}

func (f *fakeFarmers) FarmerPhonesByCrop(_ context.Context, crop string) ([]string, error) {
	return f.byCrop[crop], f.err
}

func (f *fakeFarmers) AllFarmerPhones(_ context.Context) ([]string, error) {
	return f.all, f.err
}

type fakeTemplates struct {
	tpl storage.Template
	err error
}

func (f *fakeTemplates) ListTemplates(_ context.Context, _ string) ([]storage.Template, error) {
	return []storage.Template{f.tpl}, f.err
}

func (f *fakeTemplates) GetTemplate(_ context.Context, _ int64) (storage.Template, error) {
	return f.tpl, f.err
}

func record(product string, price string, daysAgo int) storage.PriceRecord {
	return storage.PriceRecord{
		ProductName: product,
		Price:       decimal.RequireFromString(price),
		Unit:        "kg",
		MarketName:  "Central Market",
		RecordedAt:  time.Now().AddDate(0, 0, -daysAgo),
	}
}

func newService(prices storage.PriceStore, farmers storage.FarmerStore, templates storage.TemplateStore, d Dispatcher) *Service {
	return New(prices, farmers, templates, d, Options{WindowDays: 7}, zerolog.Nop())
}

func TestCurrentTrendsFallsBackToSamples(t *testing.T) {
	cases := []struct {
		name   string
		prices storage.PriceStore
	}{
		{"nil store", nil},
		{"empty store", &fakePrices{}},
		{"store error", &fakePrices{err: errors.New("db down")}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := newService(tc.prices, nil, nil, &fakeDispatcher{})
			entries, sample, err := svc.CurrentTrends(context.Background())
			if err != nil {
				t.Fatalf("fallback path must not error: %v", err)
			}
			if !sample {
				t.Fatal("expected sample data flag")
			}
			if len(entries) == 0 {
				t.Fatal("sample trends must not be empty")
			}
		})
	}
}

func TestCurrentTrendsUsesStoredPrices(t *testing.T) {
	prices := &fakePrices{records: []storage.PriceRecord{
		record("Tomato", "45.50", 0),
		record("Tomato", "43.00", 1),
	}}
	svc := newService(prices, nil, nil, &fakeDispatcher{})

	entries, sample, err := svc.CurrentTrends(context.Background())
	if err != nil {
		t.Fatalf("current trends: %v", err)
	}
	if sample {
		t.Fatal("real data must not be flagged as sample")
	}
	if len(entries) != 1 || entries[0].Product != "Tomato" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
}

func TestSendPriceTrendsFormatsPerChannel(t *testing.T) {
	prices := &fakePrices{records: []storage.PriceRecord{
		record("Tomato", "45.50", 0),
		record("Tomato", "43.00", 1),
	}}
	d := &fakeDispatcher{result: dispatch.Result{Status: dispatch.StatusSent}}
	svc := newService(prices, nil, nil, d)

	_, err := svc.SendPriceTrends(context.Background(), TrendsRequest{
		Recipients: []string{"+919876543210"},
		Provider:   "whatsapp",
	})
	if err != nil {
		t.Fatalf("send trends: %v", err)
	}
	if !strings.Contains(d.lastReq.Message, "\n") {
		t.Fatal("whatsapp channel should get the multi-line rendering")
	}

	_, err = svc.SendPriceTrends(context.Background(), TrendsRequest{
		Recipients: []string{"+919876543210"},
		Provider:   "textbelt",
	})
	if err != nil {
		t.Fatalf("send trends: %v", err)
	}
	if strings.Contains(d.lastReq.Message, "\n") {
		t.Fatal("sms channels should get the condensed single-line rendering")
	}
}

func TestSendPriceTrendsDefaultsToWhatsApp(t *testing.T) {
	d := &fakeDispatcher{result: dispatch.Result{Status: dispatch.StatusSent}}
	svc := newService(nil, nil, nil, d)

	_, err := svc.SendPriceTrends(context.Background(), TrendsRequest{
		Recipients: []string{"+919876543210"},
	})
	if err != nil {
		t.Fatalf("send trends: %v", err)
	}
	if d.lastReq.Provider != provider.NameWhatsApp {
		t.Fatalf("trend sends without an explicit provider must use whatsapp, got %q", d.lastReq.Provider)
	}

	_, err = svc.SendPriceTrends(context.Background(), TrendsRequest{
		Recipients: []string{"+919876543210"},
		Provider:   provider.NameTextBelt,
	})
	if err != nil {
		t.Fatalf("send trends: %v", err)
	}
	if d.lastReq.Provider != provider.NameTextBelt {
		t.Fatalf("explicit provider must be honored, got %q", d.lastReq.Provider)
	}
}

func TestPriceAlertRendersTemplate(t *testing.T) {
	prices := &fakePrices{latest: record("Onion", "32.00", 0)}
	d := &fakeDispatcher{result: dispatch.Result{Status: dispatch.StatusSent}}
	svc := newService(prices, nil, nil, d)

	_, body, err := svc.PriceAlert(context.Background(), AlertRequest{
		Product:    "Onion",
		Name:       "Ravi",
		Recipients: []string{"+919876543210"},
	})
	if err != nil {
		t.Fatalf("price alert: %v", err)
	}
	for _, want := range []string{"Ravi", "Onion", "32.00", "Central Market", "kg"} {
		if !strings.Contains(body, want) {
			t.Fatalf("alert body missing %q: %s", want, body)
		}
	}
	if strings.Contains(body, "{") {
		t.Fatalf("unsubstituted placeholder left in body: %s", body)
	}
}

func TestPriceAlertRequiresProduct(t *testing.T) {
	svc := newService(&fakePrices{}, nil, nil, &fakeDispatcher{})
	if _, _, err := svc.PriceAlert(context.Background(), AlertRequest{}); err == nil {
		t.Fatal("missing product must fail")
	}
}

func TestBulkFarmersFiltersByCrop(t *testing.T) {
	farmers := &fakeFarmers{
		byCrop: map[string][]string{"tomato": {"+919876543210"}},
		all:    []string{"+919876543210", "+919876543211"},
	}
	d := &fakeDispatcher{result: dispatch.Result{Status: dispatch.StatusSent}}
	svc := newService(nil, farmers, nil, d)

	if _, err := svc.BulkFarmers(context.Background(), BulkRequest{Crop: "tomato", Message: "hi"}); err != nil {
		t.Fatalf("bulk by crop: %v", err)
	}
	if len(d.lastReq.Recipients) != 1 {
		t.Fatalf("crop filter ignored: %v", d.lastReq.Recipients)
	}

	if _, err := svc.BulkFarmers(context.Background(), BulkRequest{Message: "hi"}); err != nil {
		t.Fatalf("bulk all: %v", err)
	}
	if len(d.lastReq.Recipients) != 2 {
		t.Fatalf("expected all farmers: %v", d.lastReq.Recipients)
	}
}

func TestBulkFarmersNoMatches(t *testing.T) {
	svc := newService(nil, &fakeFarmers{}, nil, &fakeDispatcher{})
	_, err := svc.BulkFarmers(context.Background(), BulkRequest{Crop: "saffron", Message: "hi"})
	if !errors.Is(err, dispatch.ErrNoRecipients) {
		t.Fatalf("expected ErrNoRecipients, got %v", err)
	}
}

func TestSendTemplateSubstitutesVariables(t *testing.T) {
	templates := &fakeTemplates{tpl: storage.Template{
		ID:       1,
		Message:  "Hello {name}, visit {market} today.",
		IsActive: true,
	}}
	d := &fakeDispatcher{result: dispatch.Result{Status: dispatch.StatusSent}}
	svc := newService(nil, nil, templates, d)

	_, body, err := svc.SendTemplate(context.Background(), TemplateRequest{
		TemplateID: 1,
		Variables:  map[string]string{"name": "Ravi", "market": "Central Market"},
		Recipients: []string{"+919876543210"},
	})
	if err != nil {
		t.Fatalf("send template: %v", err)
	}
	if body != "Hello Ravi, visit Central Market today." {
		t.Fatalf("unexpected body: %s", body)
	}
}

func TestSendTemplateRejectsInactive(t *testing.T) {
	templates := &fakeTemplates{tpl: storage.Template{ID: 1, Message: "x", IsActive: false}}
	svc := newService(nil, nil, templates, &fakeDispatcher{})

	if _, _, err := svc.SendTemplate(context.Background(), TemplateRequest{TemplateID: 1, Recipients: []string{"+919876543210"}}); err == nil {
		t.Fatal("inactive template must be rejected")
	}
}
