package storage

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// PriceRecord is one observed market price for a product. Records are
// immutable once written; the notification core only reads them.
type PriceRecord struct {
	ProductName string
	Price       decimal.Decimal
	Unit        string
	MarketName  string
	Location    string
	RecordedAt  time.Time
}

// DispatchRecord tracks one logical send request across its lifetime.
type DispatchRecord struct {
	ID             int64           `json:"id"`
	Message        string          `json:"message"`
	Provider       string          `json:"provider"`
	RecipientCount int             `json:"recipient_count"`
	Recipients     []string        `json:"recipients"`
	Cost           decimal.Decimal `json:"cost"`
	Status         string          `json:"status"`
	ScheduleTime   *time.Time      `json:"schedule_time,omitempty"`
	Error          *string         `json:"error,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	SentAt         *time.Time      `json:"sent_at,omitempty"`
}

// DispatchRecipient is the per-recipient outcome row of a dispatch.
type DispatchRecipient struct {
	ID         int64           `json:"id"`
	DispatchID int64           `json:"dispatch_id"`
	Phone      string          `json:"phone"`
	Status     string          `json:"status"`
	Response   json.RawMessage `json:"response,omitempty"`
	SentAt     *time.Time      `json:"sent_at,omitempty"`
}

// Template is a reusable message body with {variable} placeholders.
type Template struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
	Subject  string `json:"subject"`
	Message  string `json:"message"`
	IsActive bool   `json:"is_active"`
}

// DispatchStats aggregates dispatch history for reporting.
type DispatchStats struct {
	TotalDispatches int64           `json:"total_dispatches"`
	Sent            int64           `json:"sent"`
	Partial         int64           `json:"partial"`
	Failed          int64           `json:"failed"`
	Scheduled       int64           `json:"scheduled"`
	TotalRecipients int64           `json:"total_recipients"`
	TotalCost       decimal.Decimal `json:"total_cost"`
	Today           int64           `json:"today"`
}
