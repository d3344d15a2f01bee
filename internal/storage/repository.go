package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("storage: not found")
)

const (
	listRecentPricesSQL = `SELECT
        product_name, price, unit, market_name, location, recorded_at
    FROM prices
    WHERE recorded_at >= CURRENT_DATE - $1::int
    ORDER BY product_name, recorded_at DESC;`

	latestPriceSQL = `SELECT
        product_name, price, unit, market_name, location, recorded_at
    FROM prices
    WHERE product_name = $1 AND market_name = $2
    ORDER BY recorded_at DESC
    LIMIT 1;`

	listPricesBetweenSQL = `SELECT
        product_name, price, unit, market_name, location, recorded_at
    FROM prices
    WHERE product_name = $1
      AND recorded_at >= $2
      AND recorded_at < $3
    ORDER BY recorded_at;`

	farmerPhonesByCropSQL = `SELECT phone FROM farmers
    WHERE phone IS NOT NULL AND phone <> ''
      AND crops @> jsonb_build_array($1::text);`

	allFarmerPhonesSQL = `SELECT phone FROM farmers
    WHERE phone IS NOT NULL AND phone <> '';`

	createDispatchSQL = `INSERT INTO dispatch_history (
        message, provider, recipient_count, recipients, cost, status, schedule_time
    ) VALUES ($1,$2,$3,$4,$5,$6,$7)
    RETURNING id;`

	addDispatchRecipientSQL = `INSERT INTO dispatch_recipients (
        dispatch_id, phone, status
    ) VALUES ($1,$2,'pending')
    RETURNING id;`

	updateDispatchRecipientSQL = `UPDATE dispatch_recipients
    SET status = $2, response = $3, sent_at = NOW()
    WHERE id = $1;`

	finalizeDispatchSQL = `UPDATE dispatch_history
    SET status = $2, cost = $3, error = $4, sent_at = NOW()
    WHERE id = $1;`

	listDispatchesSQL = `SELECT
        id, message, provider, recipient_count, recipients, cost, status,
        schedule_time, error, created_at, sent_at
    FROM dispatch_history
    WHERE ($3 = '' OR status = $3)
    ORDER BY created_at DESC
    LIMIT $1 OFFSET $2;`

	countDispatchesSQL = `SELECT COUNT(*) FROM dispatch_history
    WHERE ($1 = '' OR status = $1);`

	listDispatchRecipientsSQL = `SELECT
        id, dispatch_id, phone, status, response, sent_at
    FROM dispatch_recipients
    WHERE dispatch_id = $1
    ORDER BY id;`

	dispatchStatsSQL = `SELECT
        COUNT(*),
        COUNT(*) FILTER (WHERE status = 'sent'),
        COUNT(*) FILTER (WHERE status = 'partial'),
        COUNT(*) FILTER (WHERE status = 'failed'),
        COUNT(*) FILTER (WHERE status = 'scheduled'),
        COALESCE(SUM(recipient_count), 0),
        COALESCE(SUM(cost), 0),
        COUNT(*) FILTER (WHERE created_at::date = CURRENT_DATE)
    FROM dispatch_history;`

	listDueScheduledSQL = `SELECT
        id, message, provider, recipient_count, recipients, cost, status,
        schedule_time, error, created_at, sent_at
    FROM dispatch_history
    WHERE status = 'scheduled' AND schedule_time <= $1
    ORDER BY schedule_time
    LIMIT $2;`

	listTemplatesSQL = `SELECT id, name, category, subject, message, is_active
    FROM sms_templates
    WHERE is_active AND ($1 = '' OR category = $1)
    ORDER BY name;`

	getTemplateSQL = `SELECT id, name, category, subject, message, is_active
    FROM sms_templates
    WHERE id = $1 AND is_active;`
)

// PriceStore defines read access to recorded market prices.
type PriceStore interface {
	ListRecentPrices(ctx context.Context, windowDays int) ([]PriceRecord, error)
	LatestPrice(ctx context.Context, product, market string) (PriceRecord, error)
	ListPricesBetween(ctx context.Context, product string, from, to time.Time) ([]PriceRecord, error)
}

// FarmerStore resolves recipient phone numbers from the farmer registry.
type FarmerStore interface {
	FarmerPhonesByCrop(ctx context.Context, crop string) ([]string, error)
	AllFarmerPhones(ctx context.Context) ([]string, error)
}

// DispatchStore persists dispatch records and per-recipient outcomes.
type DispatchStore interface {
	CreateDispatch(ctx context.Context, rec DispatchRecord) (int64, error)
	AddDispatchRecipient(ctx context.Context, dispatchID int64, phone string) (int64, error)
	UpdateDispatchRecipient(ctx context.Context, recipientID int64, status string, response []byte) error
	FinalizeDispatch(ctx context.Context, dispatchID int64, status string, cost decimal.Decimal, errMsg *string) error
}

// HistoryStore exposes dispatch history for reporting.
type HistoryStore interface {
	ListDispatches(ctx context.Context, page, limit int, status string) ([]DispatchRecord, int64, error)
	ListDispatchRecipients(ctx context.Context, dispatchID int64) ([]DispatchRecipient, error)
	DispatchStats(ctx context.Context) (DispatchStats, error)
	ListDueScheduled(ctx context.Context, now time.Time, limit int) ([]DispatchRecord, error)
}

// TemplateStore reads reusable message templates.
type TemplateStore interface {
	ListTemplates(ctx context.Context, category string) ([]Template, error)
	GetTemplate(ctx context.Context, id int64) (Template, error)
}

// Store aggregates access to prices, farmers, dispatches, and templates.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// ListRecentPrices returns prices recorded within the trailing window,
// ordered by product then recording date descending.
func (s *Store) ListRecentPrices(ctx context.Context, windowDays int) ([]PriceRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentPricesSQL, windowDays)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent prices: %w", queryErr)
	}
	defer rows.Close()

	return collectPrices(rows)
}

// LatestPrice returns the most recent price for a product at a market.
func (s *Store) LatestPrice(ctx context.Context, product, market string) (PriceRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return PriceRecord{}, err
	}

	rows, queryErr := pool.Query(ctx, latestPriceSQL, product, market)
	if queryErr != nil {
		return PriceRecord{}, fmt.Errorf("latest price: %w", queryErr)
	}
	defer rows.Close()

	records, scanErr := collectPrices(rows)
	if scanErr != nil {
		return PriceRecord{}, scanErr
	}
	if len(records) == 0 {
		return PriceRecord{}, ErrNotFound
	}
	return records[0], nil
}

// ListPricesBetween returns one product's prices within a time window.
func (s *Store) ListPricesBetween(ctx context.Context, product string, from, to time.Time) ([]PriceRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listPricesBetweenSQL, product, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list prices between: %w", queryErr)
	}
	defer rows.Close()

	return collectPrices(rows)
}

// FarmerPhonesByCrop lists phone numbers of farmers growing the crop.
func (s *Store) FarmerPhonesByCrop(ctx context.Context, crop string) ([]string, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, farmerPhonesByCropSQL, crop)
	if queryErr != nil {
		return nil, fmt.Errorf("farmer phones by crop: %w", queryErr)
	}
	defer rows.Close()

	return collectStrings(rows)
}

// AllFarmerPhones lists every farmer phone number on record.
func (s *Store) AllFarmerPhones(ctx context.Context) ([]string, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, allFarmerPhonesSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("all farmer phones: %w", queryErr)
	}
	defer rows.Close()

	return collectStrings(rows)
}

// CreateDispatch inserts a new dispatch record and returns its id.
func (s *Store) CreateDispatch(ctx context.Context, rec DispatchRecord) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}

	recipients, marshalErr := json.Marshal(rec.Recipients)
	if marshalErr != nil {
		return 0, fmt.Errorf("marshal recipients: %w", marshalErr)
	}

	var schedule interface{}
	if rec.ScheduleTime != nil {
		schedule = *rec.ScheduleTime
	}

	var id int64
	if scanErr := pool.QueryRow(ctx, createDispatchSQL,
		rec.Message,
		rec.Provider,
		rec.RecipientCount,
		recipients,
		rec.Cost.String(),
		rec.Status,
		schedule,
	).Scan(&id); scanErr != nil {
		return 0, fmt.Errorf("create dispatch: %w", scanErr)
	}
	return id, nil
}

// AddDispatchRecipient inserts a pending per-recipient row.
func (s *Store) AddDispatchRecipient(ctx context.Context, dispatchID int64, phoneNumber string) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}

	var id int64
	if scanErr := pool.QueryRow(ctx, addDispatchRecipientSQL, dispatchID, phoneNumber).Scan(&id); scanErr != nil {
		return 0, fmt.Errorf("add dispatch recipient: %w", scanErr)
	}
	return id, nil
}

// UpdateDispatchRecipient records the outcome of one provider call.
func (s *Store) UpdateDispatchRecipient(ctx context.Context, recipientID int64, status string, response []byte) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	var raw interface{}
	if len(response) > 0 {
		raw = response
	}
	if _, execErr := pool.Exec(ctx, updateDispatchRecipientSQL, recipientID, status, raw); execErr != nil {
		return fmt.Errorf("update dispatch recipient: %w", execErr)
	}
	return nil
}

// FinalizeDispatch writes the terminal status and cost of a dispatch.
func (s *Store) FinalizeDispatch(ctx context.Context, dispatchID int64, status string, cost decimal.Decimal, errMsg *string) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	var errVal interface{}
	if errMsg != nil {
		errVal = *errMsg
	}
	cmdTag, execErr := pool.Exec(ctx, finalizeDispatchSQL, dispatchID, status, cost.String(), errVal)
	if execErr != nil {
		return fmt.Errorf("finalize dispatch: %w", execErr)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListDispatches pages through dispatch history, optionally filtered by status.
func (s *Store) ListDispatches(ctx context.Context, page, limit int, status string) ([]DispatchRecord, int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, 0, err
	}

	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 10
	}
	offset := (page - 1) * limit

	rows, queryErr := pool.Query(ctx, listDispatchesSQL, limit, offset, status)
	if queryErr != nil {
		return nil, 0, fmt.Errorf("list dispatches: %w", queryErr)
	}
	defer rows.Close()

	records, scanErr := collectDispatches(rows)
	if scanErr != nil {
		return nil, 0, scanErr
	}

	var total int64
	if countErr := pool.QueryRow(ctx, countDispatchesSQL, status).Scan(&total); countErr != nil {
		return nil, 0, fmt.Errorf("count dispatches: %w", countErr)
	}
	return records, total, nil
}

// ListDispatchRecipients returns the per-recipient rows of one dispatch.
func (s *Store) ListDispatchRecipients(ctx context.Context, dispatchID int64) ([]DispatchRecipient, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listDispatchRecipientsSQL, dispatchID)
	if queryErr != nil {
		return nil, fmt.Errorf("list dispatch recipients: %w", queryErr)
	}
	defer rows.Close()

	recipients := make([]DispatchRecipient, 0)
	for rows.Next() {
		var rec DispatchRecipient
		var response []byte
		var sentAt sql.NullTime
		if err := rows.Scan(&rec.ID, &rec.DispatchID, &rec.Phone, &rec.Status, &response, &sentAt); err != nil {
			return nil, err
		}
		if len(response) > 0 {
			rec.Response = json.RawMessage(response)
		}
		if sentAt.Valid {
			t := sentAt.Time
			rec.SentAt = &t
		}
		recipients = append(recipients, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return recipients, nil
}

// DispatchStats aggregates dispatch history counters.
func (s *Store) DispatchStats(ctx context.Context) (DispatchStats, error) {
	pool, err := s.getPool()
	if err != nil {
		return DispatchStats{}, err
	}

	var stats DispatchStats
	var costStr string
	if scanErr := pool.QueryRow(ctx, dispatchStatsSQL).Scan(
		&stats.TotalDispatches,
		&stats.Sent,
		&stats.Partial,
		&stats.Failed,
		&stats.Scheduled,
		&stats.TotalRecipients,
		&costStr,
		&stats.Today,
	); scanErr != nil {
		return DispatchStats{}, fmt.Errorf("dispatch stats: %w", scanErr)
	}

	cost, convErr := decimal.NewFromString(costStr)
	if convErr != nil {
		return DispatchStats{}, fmt.Errorf("parse total cost: %w", convErr)
	}
	stats.TotalCost = cost
	return stats, nil
}

// ListDueScheduled returns scheduled dispatches whose time has come.
func (s *Store) ListDueScheduled(ctx context.Context, now time.Time, limit int) ([]DispatchRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listDueScheduledSQL, now, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list due scheduled: %w", queryErr)
	}
	defer rows.Close()

	return collectDispatches(rows)
}

// ListTemplates returns active templates, optionally filtered by category.
func (s *Store) ListTemplates(ctx context.Context, category string) ([]Template, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listTemplatesSQL, category)
	if queryErr != nil {
		return nil, fmt.Errorf("list templates: %w", queryErr)
	}
	defer rows.Close()

	templates := make([]Template, 0)
	for rows.Next() {
		var tpl Template
		if err := rows.Scan(&tpl.ID, &tpl.Name, &tpl.Category, &tpl.Subject, &tpl.Message, &tpl.IsActive); err != nil {
			return nil, err
		}
		templates = append(templates, tpl)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return templates, nil
}

// GetTemplate fetches one active template by id.
func (s *Store) GetTemplate(ctx context.Context, id int64) (Template, error) {
	pool, err := s.getPool()
	if err != nil {
		return Template{}, err
	}

	var tpl Template
	if scanErr := pool.QueryRow(ctx, getTemplateSQL, id).Scan(
		&tpl.ID, &tpl.Name, &tpl.Category, &tpl.Subject, &tpl.Message, &tpl.IsActive,
	); scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return Template{}, ErrNotFound
		}
		return Template{}, fmt.Errorf("get template: %w", scanErr)
	}
	return tpl, nil
}

func collectPrices(rows pgx.Rows) ([]PriceRecord, error) {
	records := make([]PriceRecord, 0)
	for rows.Next() {
		var rec PriceRecord
		var priceStr string
		var location sql.NullString
		if err := rows.Scan(&rec.ProductName, &priceStr, &rec.Unit, &rec.MarketName, &location, &rec.RecordedAt); err != nil {
			return nil, err
		}
		price, convErr := decimal.NewFromString(priceStr)
		if convErr != nil {
			return nil, fmt.Errorf("parse price: %w", convErr)
		}
		rec.Price = price
		if location.Valid {
			rec.Location = location.String
		}
		records = append(records, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

func collectStrings(rows pgx.Rows) ([]string, error) {
	values := make([]string, 0)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return values, nil
}

func collectDispatches(rows pgx.Rows) ([]DispatchRecord, error) {
	records := make([]DispatchRecord, 0)
	for rows.Next() {
		var rec DispatchRecord
		var recipients []byte
		var costStr string
		var schedule, sentAt sql.NullTime
		var errMsg sql.NullString
		if err := rows.Scan(
			&rec.ID,
			&rec.Message,
			&rec.Provider,
			&rec.RecipientCount,
			&recipients,
			&costStr,
			&rec.Status,
			&schedule,
			&errMsg,
			&rec.CreatedAt,
			&sentAt,
		); err != nil {
			return nil, err
		}

		cost, convErr := decimal.NewFromString(costStr)
		if convErr != nil {
			return nil, fmt.Errorf("parse cost: %w", convErr)
		}
		rec.Cost = cost

		if len(recipients) > 0 {
			if err := json.Unmarshal(recipients, &rec.Recipients); err != nil {
				return nil, fmt.Errorf("unmarshal recipients: %w", err)
			}
		}
		if schedule.Valid {
			t := schedule.Time
			rec.ScheduleTime = &t
		}
		if sentAt.Valid {
			t := sentAt.Time
			rec.SentAt = &t
		}
		if errMsg.Valid {
			msg := errMsg.String
			rec.Error = &msg
		}
		records = append(records, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}
