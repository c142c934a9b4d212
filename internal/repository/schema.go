package repository

// Schema definitions for the ReturnsX database.
// Compatible with both SQLite and PostgreSQL.

const schemaProfiles = `
CREATE TABLE IF NOT EXISTS customer_profiles (
    store_id TEXT NOT NULL,
    customer_id TEXT NOT NULL,
    total_orders INTEGER NOT NULL DEFAULT 0,
    failed_attempts INTEGER NOT NULL DEFAULT 0,
    successful_deliveries INTEGER NOT NULL DEFAULT 0,
    total_value REAL NOT NULL DEFAULT 0,
    last_event_at TIMESTAMP NOT NULL,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (store_id, customer_id)
);

CREATE INDEX IF NOT EXISTS idx_profiles_store ON customer_profiles(store_id);
`

// The (id, store_id) primary key is the durable replay guard: a webhook
// delivery retried after the cache marker expired still cannot double-count.
const schemaOrderEvents = `
CREATE TABLE IF NOT EXISTS order_events (
    id TEXT NOT NULL,
    store_id TEXT NOT NULL,
    customer_id TEXT NOT NULL,
    kind TEXT NOT NULL,
    order_id TEXT NOT NULL,
    order_value REAL NOT NULL,
    currency TEXT,
    occurred_at TIMESTAMP NOT NULL,
    recorded_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, store_id)
);

CREATE INDEX IF NOT EXISTS idx_order_events_customer ON order_events(store_id, customer_id);
CREATE INDEX IF NOT EXISTS idx_order_events_occurred ON order_events(store_id, occurred_at);
`

const schemaRiskConfigs = `
CREATE TABLE IF NOT EXISTS risk_configs (
    store_id TEXT PRIMARY KEY,
    zero_risk_max_failed INTEGER NOT NULL,
    zero_risk_max_return_rate REAL NOT NULL,
    medium_risk_max_failed INTEGER NOT NULL,
    medium_risk_max_return_rate REAL NOT NULL,
    new_customer_grace_orders INTEGER NOT NULL,
    serial_offender_threshold INTEGER NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
`

const schemaAssessments = `
CREATE TABLE IF NOT EXISTS assessments (
    id TEXT PRIMARY KEY,
    store_id TEXT NOT NULL,
    customer_id TEXT NOT NULL,
    score REAL NOT NULL,
    tier TEXT NOT NULL,
    confidence REAL NOT NULL,
    recommendation TEXT NOT NULL,
    override_rule_id TEXT,
    assessed_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_assessments_customer ON assessments(store_id, customer_id, assessed_at);
CREATE INDEX IF NOT EXISTS idx_assessments_tier ON assessments(store_id, tier);
`

const schemaOverrideRules = `
CREATE TABLE IF NOT EXISTS override_rules (
    id TEXT NOT NULL,
    store_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    expression TEXT NOT NULL,
    action TEXT NOT NULL,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, store_id)
);

CREATE INDEX IF NOT EXISTS idx_override_rules_store ON override_rules(store_id, enabled);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaProfiles,
		schemaOrderEvents,
		schemaRiskConfigs,
		schemaAssessments,
		schemaOverrideRules,
	}
}
