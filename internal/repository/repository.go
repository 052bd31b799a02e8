// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
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

// SaveApplication stores an application package with tenant isolation.
// The full package is kept as JSON; the client and submission time get
// their own columns for velocity queries.
func (r *SQLRepository) SaveApplication(ctx context.Context, tenantID string, pkg *domain.ApplicationPackage) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if pkg.CaseID == "" {
		return fmt.Errorf("%w: case_id is required", ErrInvalidInput)
	}

	body, err := json.Marshal(pkg)
	if err != nil {
		return fmt.Errorf("failed to encode application: %w", err)
	}

	submitted := pkg.SubmittedAt
	if submitted.IsZero() {
		submitted = time.Now().UTC()
	}

	query := `
		INSERT INTO applications (
			case_id, tenant_id, client_id, submitted_at, package
		) VALUES (?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		pkg.CaseID, tenantID, pkg.ClientIdentity.ClientID, submitted, string(body),
	)
	return err
}

// GetApplication retrieves an application by case ID with tenant isolation.
func (r *SQLRepository) GetApplication(ctx context.Context, tenantID string, caseID string) (*domain.ApplicationPackage, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT package
		FROM applications
		WHERE tenant_id = ? AND case_id = ?
	`

	var body string
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, caseID).Scan(&body)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var pkg domain.ApplicationPackage
	if err := json.Unmarshal([]byte(body), &pkg); err != nil {
		return nil, fmt.Errorf("failed to decode application %s: %w", caseID, err)
	}
	return &pkg, nil
}

// CountApplicationsByClient counts a client's submissions since a point in
// time. This backs the velocity variable in the fraud rules.
func (r *SQLRepository) CountApplicationsByClient(ctx context.Context, tenantID string, clientID string, since time.Time) (int64, error) {
	if tenantID == "" {
		return 0, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT COUNT(*)
		FROM applications
		WHERE tenant_id = ? AND client_id = ? AND submitted_at >= ?
	`

	var count int64
	if err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, clientID, since).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// SaveDecision stores a decision audit record with tenant isolation.
func (r *SQLRepository) SaveDecision(ctx context.Context, tenantID string, rec *domain.DecisionRecord) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	result, err := json.Marshal(rec.Result)
	if err != nil {
		return fmt.Errorf("failed to encode fusion result: %w", err)
	}
	metadata, _ := json.Marshal(rec.Metadata)

	degraded := 0
	if rec.Result.Degraded {
		degraded = 1
	}

	query := `
		INSERT INTO decisions (
			id, tenant_id, case_id, final_decision, reason, confidence,
			degraded, result, metadata, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		rec.ID, tenantID, rec.ApplicationID,
		string(rec.Result.FinalDecision), string(rec.Result.Reason), rec.Result.Confidence,
		degraded, string(result), string(metadata), rec.Timestamp,
	)
	return err
}

// GetDecision retrieves a decision record by ID with tenant isolation.
func (r *SQLRepository) GetDecision(ctx context.Context, tenantID string, decisionID string) (*domain.DecisionRecord, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, case_id, result, metadata, timestamp
		FROM decisions
		WHERE tenant_id = ? AND id = ?
	`

	return r.scanDecision(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, decisionID))
}

// ListDecisionsByApplication retrieves all decisions for a case, newest first.
func (r *SQLRepository) ListDecisionsByApplication(ctx context.Context, tenantID string, caseID string) ([]*domain.DecisionRecord, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, case_id, result, metadata, timestamp
		FROM decisions
		WHERE tenant_id = ? AND case_id = ?
		ORDER BY timestamp DESC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*domain.DecisionRecord
	for rows.Next() {
		rec, err := r.scanDecision(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *SQLRepository) scanDecision(row rowScanner) (*domain.DecisionRecord, error) {
	var rec domain.DecisionRecord
	var result, metadata string

	err := row.Scan(&rec.ID, &rec.TenantID, &rec.ApplicationID, &result, &metadata, &rec.Timestamp)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(result), &rec.Result); err != nil {
		return nil, fmt.Errorf("failed to decode decision %s: %w", rec.ID, err)
	}
	json.Unmarshal([]byte(metadata), &rec.Metadata)

	return &rec, nil
}

// SaveCase stores a resolved case with tenant isolation.
func (r *SQLRepository) SaveCase(ctx context.Context, tenantID string, c *domain.Case) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	vector, err := json.Marshal(c.Vector)
	if err != nil {
		return fmt.Errorf("failed to encode case vector: %w", err)
	}

	resolved := c.ResolvedAt
	if resolved.IsZero() {
		resolved = time.Now().UTC()
	}

	query := `
		INSERT INTO cases (
			id, tenant_id, summary, vector, outcome, resolved_at
		) VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		c.ID, tenantID, c.Summary, string(vector), string(c.Outcome), resolved,
	)
	return err
}

// ListCases retrieves all resolved cases for a tenant, oldest first.
func (r *SQLRepository) ListCases(ctx context.Context, tenantID string) ([]*domain.Case, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, summary, vector, outcome, resolved_at
		FROM cases
		WHERE tenant_id = ?
		ORDER BY resolved_at
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cases []*domain.Case
	for rows.Next() {
		var c domain.Case
		var vector, outcome string

		if err := rows.Scan(&c.ID, &c.TenantID, &c.Summary, &vector, &outcome, &c.ResolvedAt); err != nil {
			return nil, err
		}

		if err := json.Unmarshal([]byte(vector), &c.Vector); err != nil {
			return nil, fmt.Errorf("failed to decode vector for case %s: %w", c.ID, err)
		}
		c.Outcome = domain.Prediction(outcome)
		cases = append(cases, &c)
	}

	return cases, rows.Err()
}

// SaveFraudRule stores a fraud rule configuration with tenant isolation.
func (r *SQLRepository) SaveFraudRule(ctx context.Context, tenantID string, rule *domain.FraudRuleConfig) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	bands, _ := json.Marshal(rule.Bands)

	enabled := 0
	if rule.Enabled {
		enabled = 1
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO fraud_rules (
			id, tenant_id, name, description, version, expression, bands, weight, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id, version) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			expression = excluded.expression,
			bands = excluded.bands,
			weight = excluded.weight,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, tenantID, rule.Name, rule.Description,
		rule.Version, rule.Expression, string(bands), rule.Weight, enabled,
		now, now,
	)
	return err
}

// GetFraudRule retrieves a fraud rule configuration with tenant isolation.
func (r *SQLRepository) GetFraudRule(ctx context.Context, tenantID string, ruleID string) (*domain.FraudRuleConfig, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, description, version, expression, bands, weight, enabled
		FROM fraud_rules
		WHERE tenant_id = ? AND id = ? AND enabled = 1
		ORDER BY version DESC
		LIMIT 1
	`

	var cfg domain.FraudRuleConfig
	var bands string
	var enabled int

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, ruleID).Scan(
		&cfg.ID, &cfg.TenantID, &cfg.Name, &cfg.Description,
		&cfg.Version, &cfg.Expression, &bands, &cfg.Weight, &enabled,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	cfg.Enabled = enabled == 1
	json.Unmarshal([]byte(bands), &cfg.Bands)

	return &cfg, nil
}

// ListFraudRules retrieves all active fraud rules for a tenant.
func (r *SQLRepository) ListFraudRules(ctx context.Context, tenantID string) ([]*domain.FraudRuleConfig, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, description, version, expression, bands, weight, enabled
		FROM fraud_rules
		WHERE tenant_id = ? AND enabled = 1
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []*domain.FraudRuleConfig
	for rows.Next() {
		var cfg domain.FraudRuleConfig
		var bands string
		var enabled int

		if err := rows.Scan(
			&cfg.ID, &cfg.TenantID, &cfg.Name, &cfg.Description,
			&cfg.Version, &cfg.Expression, &bands, &cfg.Weight, &enabled,
		); err != nil {
			return nil, err
		}

		cfg.Enabled = enabled == 1
		json.Unmarshal([]byte(bands), &cfg.Bands)
		configs = append(configs, &cfg)
	}

	return configs, rows.Err()
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
