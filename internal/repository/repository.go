// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/returnsx/returnsx/internal/domain"
)

var (
	ErrNotFound       = errors.New("record not found")
	ErrInvalidInput   = errors.New("invalid input")
	ErrDuplicateEvent = errors.New("event already recorded")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// RecordEvent inserts the event and folds it into the profile in a single
// transaction. Concurrent deliveries for the same customer serialize on the
// row (SELECT ... FOR UPDATE on PostgreSQL, the write lock on SQLite), so the
// read-modify-write never loses updates. A replayed event ID fails the insert
// and returns ErrDuplicateEvent with the profile untouched.
func (r *SQLRepository) RecordEvent(ctx context.Context, storeID string, ev *domain.OrderEvent, apply domain.ApplyEventFunc) (*domain.CustomerProfile, error) {
	if storeID == "" {
		return nil, fmt.Errorf("%w: storeID is required", ErrInvalidInput)
	}
	if ev == nil || ev.ID == "" || ev.CustomerID == "" {
		return nil, fmt.Errorf("%w: event id and customer id are required", ErrInvalidInput)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	now := time.Now().UTC()

	insertEvent := `
		INSERT INTO order_events (
			id, store_id, customer_id, kind, order_id, order_value,
			currency, occurred_at, recorded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = tx.ExecContext(ctx, r.rebind(insertEvent),
		ev.ID, storeID, ev.CustomerID, string(ev.Kind), ev.OrderID,
		ev.OrderValue, ev.Currency, ev.OccurredAt.UTC(), now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateEvent
		}
		return nil, err
	}

	selectProfile := `
		SELECT total_orders, failed_attempts, successful_deliveries,
		       total_value, last_event_at, created_at
		FROM customer_profiles
		WHERE store_id = ? AND customer_id = ?
	`
	if r.driver == "postgres" {
		selectProfile += " FOR UPDATE"
	}

	current := domain.CustomerProfile{
		CustomerID:  ev.CustomerID,
		StoreID:     storeID,
		LastEventAt: time.Time{},
		CreatedAt:   now,
	}
	err = tx.QueryRowContext(ctx, r.rebind(selectProfile), storeID, ev.CustomerID).Scan(
		&current.TotalOrders, &current.FailedAttempts, &current.SuccessfulDeliveries,
		&current.TotalValue, &current.LastEventAt, &current.CreatedAt,
	)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	updated, err := apply(current)
	if err != nil {
		return nil, err
	}
	updated.UpdatedAt = now

	upsert := `
		INSERT INTO customer_profiles (
			store_id, customer_id, total_orders, failed_attempts,
			successful_deliveries, total_value, last_event_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(store_id, customer_id) DO UPDATE SET
			total_orders = excluded.total_orders,
			failed_attempts = excluded.failed_attempts,
			successful_deliveries = excluded.successful_deliveries,
			total_value = excluded.total_value,
			last_event_at = excluded.last_event_at,
			updated_at = excluded.updated_at
	`
	_, err = tx.ExecContext(ctx, r.rebind(upsert),
		storeID, updated.CustomerID, updated.TotalOrders, updated.FailedAttempts,
		updated.SuccessfulDeliveries, updated.TotalValue, updated.LastEventAt.UTC(),
		updated.CreatedAt.UTC(), updated.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &updated, nil
}

// GetProfile retrieves a customer profile with store isolation.
func (r *SQLRepository) GetProfile(ctx context.Context, storeID string, customerID string) (*domain.CustomerProfile, error) {
	if storeID == "" {
		return nil, fmt.Errorf("%w: storeID is required", ErrInvalidInput)
	}

	query := `
		SELECT store_id, customer_id, total_orders, failed_attempts,
		       successful_deliveries, total_value, last_event_at, created_at, updated_at
		FROM customer_profiles
		WHERE store_id = ? AND customer_id = ?
	`

	var p domain.CustomerProfile
	err := r.db.QueryRowContext(ctx, r.rebind(query), storeID, customerID).Scan(
		&p.StoreID, &p.CustomerID, &p.TotalOrders, &p.FailedAttempts,
		&p.SuccessfulDeliveries, &p.TotalValue, &p.LastEventAt, &p.CreatedAt, &p.UpdatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &p, nil
}

// ListEvents retrieves a customer's order events since the given time.
func (r *SQLRepository) ListEvents(ctx context.Context, storeID string, customerID string, since time.Time) ([]*domain.OrderEvent, error) {
	if storeID == "" {
		return nil, fmt.Errorf("%w: storeID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, store_id, customer_id, kind, order_id, order_value, currency, occurred_at
		FROM order_events
		WHERE store_id = ? AND customer_id = ? AND occurred_at >= ?
		ORDER BY occurred_at DESC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), storeID, customerID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*domain.OrderEvent
	for rows.Next() {
		var ev domain.OrderEvent
		var kind string
		var currency sql.NullString

		if err := rows.Scan(
			&ev.ID, &ev.StoreID, &ev.CustomerID, &kind, &ev.OrderID,
			&ev.OrderValue, &currency, &ev.OccurredAt,
		); err != nil {
			return nil, err
		}

		ev.Kind = domain.EventKind(kind)
		ev.Currency = currency.String
		events = append(events, &ev)
	}

	return events, rows.Err()
}

// DeleteCustomer removes a customer's profile, events, and assessments.
// Used for data-erasure requests; the deletion is permanent.
func (r *SQLRepository) DeleteCustomer(ctx context.Context, storeID string, customerID string) error {
	if storeID == "" {
		return fmt.Errorf("%w: storeID is required", ErrInvalidInput)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		r.rebind(`DELETE FROM customer_profiles WHERE store_id = ? AND customer_id = ?`),
		storeID, customerID,
	)
	if err != nil {
		return err
	}

	rowsDeleted, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsDeleted == 0 {
		return ErrNotFound
	}

	if _, err := tx.ExecContext(ctx,
		r.rebind(`DELETE FROM order_events WHERE store_id = ? AND customer_id = ?`),
		storeID, customerID,
	); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		r.rebind(`DELETE FROM assessments WHERE store_id = ? AND customer_id = ?`),
		storeID, customerID,
	); err != nil {
		return err
	}

	return tx.Commit()
}

// SaveRiskConfig stores a store's risk configuration.
func (r *SQLRepository) SaveRiskConfig(ctx context.Context, storeID string, cfg *domain.RiskConfig) error {
	if storeID == "" {
		return fmt.Errorf("%w: storeID is required", ErrInvalidInput)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO risk_configs (
			store_id, zero_risk_max_failed, zero_risk_max_return_rate,
			medium_risk_max_failed, medium_risk_max_return_rate,
			new_customer_grace_orders, serial_offender_threshold, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(store_id) DO UPDATE SET
			zero_risk_max_failed = excluded.zero_risk_max_failed,
			zero_risk_max_return_rate = excluded.zero_risk_max_return_rate,
			medium_risk_max_failed = excluded.medium_risk_max_failed,
			medium_risk_max_return_rate = excluded.medium_risk_max_return_rate,
			new_customer_grace_orders = excluded.new_customer_grace_orders,
			serial_offender_threshold = excluded.serial_offender_threshold,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		storeID, cfg.ZeroRiskMaxFailed, cfg.ZeroRiskMaxReturnRate,
		cfg.MediumRiskMaxFailed, cfg.MediumRiskMaxReturnRate,
		cfg.NewCustomerGraceOrders, cfg.SerialOffenderThreshold,
		now,
	)
	return err
}

// GetRiskConfig retrieves a store's risk configuration.
func (r *SQLRepository) GetRiskConfig(ctx context.Context, storeID string) (*domain.RiskConfig, error) {
	if storeID == "" {
		return nil, fmt.Errorf("%w: storeID is required", ErrInvalidInput)
	}

	query := `
		SELECT store_id, zero_risk_max_failed, zero_risk_max_return_rate,
		       medium_risk_max_failed, medium_risk_max_return_rate,
		       new_customer_grace_orders, serial_offender_threshold, updated_at
		FROM risk_configs
		WHERE store_id = ?
	`

	var cfg domain.RiskConfig
	err := r.db.QueryRowContext(ctx, r.rebind(query), storeID).Scan(
		&cfg.StoreID, &cfg.ZeroRiskMaxFailed, &cfg.ZeroRiskMaxReturnRate,
		&cfg.MediumRiskMaxFailed, &cfg.MediumRiskMaxReturnRate,
		&cfg.NewCustomerGraceOrders, &cfg.SerialOffenderThreshold, &cfg.UpdatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}

// SaveAssessment stores an assessment snapshot.
func (r *SQLRepository) SaveAssessment(ctx context.Context, storeID string, a *domain.RiskAssessment) error {
	if storeID == "" {
		return fmt.Errorf("%w: storeID is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO assessments (
			id, store_id, customer_id, score, tier, confidence,
			recommendation, override_rule_id, assessed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		a.ID, storeID, a.CustomerID, a.Score, string(a.Tier), a.Confidence,
		string(a.Recommendation), a.OverrideRuleID, a.AssessedAt.UTC(),
	)
	return err
}

// GetLatestAssessment retrieves the most recent assessment snapshot for a customer.
func (r *SQLRepository) GetLatestAssessment(ctx context.Context, storeID string, customerID string) (*domain.RiskAssessment, error) {
	if storeID == "" {
		return nil, fmt.Errorf("%w: storeID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, store_id, customer_id, score, tier, confidence,
		       recommendation, override_rule_id, assessed_at
		FROM assessments
		WHERE store_id = ? AND customer_id = ?
		ORDER BY assessed_at DESC
		LIMIT 1
	`

	var a domain.RiskAssessment
	var tier, recommendation string
	var overrideRuleID sql.NullString

	err := r.db.QueryRowContext(ctx, r.rebind(query), storeID, customerID).Scan(
		&a.ID, &a.StoreID, &a.CustomerID, &a.Score, &tier, &a.Confidence,
		&recommendation, &overrideRuleID, &a.AssessedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	a.Tier = domain.RiskTier(tier)
	a.Recommendation = domain.Recommendation(recommendation)
	a.OverrideRuleID = overrideRuleID.String

	return &a, nil
}

// SaveOverrideRule stores an override rule with store isolation.
func (r *SQLRepository) SaveOverrideRule(ctx context.Context, storeID string, rule *domain.OverrideRule) error {
	if storeID == "" {
		return fmt.Errorf("%w: storeID is required", ErrInvalidInput)
	}

	enabled := 0
	if rule.Enabled {
		enabled = 1
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO override_rules (
			id, store_id, name, description, expression, action, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, store_id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			expression = excluded.expression,
			action = excluded.action,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, storeID, rule.Name, rule.Description,
		rule.Expression, string(rule.Action), enabled,
		now, now,
	)
	return err
}

// ListOverrideRules retrieves all active override rules for a store.
func (r *SQLRepository) ListOverrideRules(ctx context.Context, storeID string) ([]*domain.OverrideRule, error) {
	if storeID == "" {
		return nil, fmt.Errorf("%w: storeID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, store_id, name, description, expression, action, enabled, created_at, updated_at
		FROM override_rules
		WHERE store_id = ? AND enabled = 1
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), storeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*domain.OverrideRule
	for rows.Next() {
		var rule domain.OverrideRule
		var description sql.NullString
		var action string
		var enabled int

		if err := rows.Scan(
			&rule.ID, &rule.StoreID, &rule.Name, &description,
			&rule.Expression, &action, &enabled,
			&rule.CreatedAt, &rule.UpdatedAt,
		); err != nil {
			return nil, err
		}

		rule.Description = description.String
		rule.Action = domain.Recommendation(action)
		rule.Enabled = enabled == 1
		rules = append(rules, &rule)
	}

	return rules, rows.Err()
}

// DeleteOverrideRule soft-deletes an override rule by setting enabled = 0.
func (r *SQLRepository) DeleteOverrideRule(ctx context.Context, storeID string, ruleID string) error {
	if storeID == "" {
		return fmt.Errorf("%w: storeID is required", ErrInvalidInput)
	}

	query := `
		UPDATE override_rules
		SET enabled = 0, updated_at = ?
		WHERE store_id = ? AND id = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query), time.Now().UTC(), storeID, ruleID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	// Convert ? to $1, $2, etc.
	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}

// isUniqueViolation detects a primary-key conflict from either driver
// without importing driver-specific error types.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint") || // sqlite
		strings.Contains(msg, "duplicate key") // postgres
}
