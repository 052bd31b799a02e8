// Package domain defines the core interfaces and types for Kestrel.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// All methods require tenantID for strict multi-tenancy isolation.
type Repository interface {
	// Application operations
	SaveApplication(ctx context.Context, tenantID string, pkg *ApplicationPackage) error
	GetApplication(ctx context.Context, tenantID string, caseID string) (*ApplicationPackage, error)
	CountApplicationsByClient(ctx context.Context, tenantID string, clientID string, since time.Time) (int64, error)

	// Decision audit records
	SaveDecision(ctx context.Context, tenantID string, rec *DecisionRecord) error
	GetDecision(ctx context.Context, tenantID string, decisionID string) (*DecisionRecord, error)
	ListDecisionsByApplication(ctx context.Context, tenantID string, caseID string) ([]*DecisionRecord, error)

	// Historical case corpus
	SaveCase(ctx context.Context, tenantID string, c *Case) error
	ListCases(ctx context.Context, tenantID string) ([]*Case, error)

	// Fraud rule configuration operations
	SaveFraudRule(ctx context.Context, tenantID string, rule *FraudRuleConfig) error
	GetFraudRule(ctx context.Context, tenantID string, ruleID string) (*FraudRuleConfig, error)
	ListFraudRules(ctx context.Context, tenantID string) ([]*FraudRuleConfig, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
