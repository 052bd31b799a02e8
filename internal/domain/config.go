package domain

// Config holds the complete Kestrel configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Tier determines feature availability
	Tier Tier `json:"tier"`

	// Fusion holds the decision-pipeline parameters
	Fusion FusionConfig `json:"fusion"`

	// Component configurations
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`
	Embedding  EmbeddingConfig  `json:"embedding"`
	Classifier ClassifierConfig `json:"classifier"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`

	// Auth settings for the API (optional bearer tokens)
	Auth AuthConfig `json:"auth"`
}

// FusionConfig holds the operational parameters of the decision pipeline.
// These are deployment configuration, not part of the decision table.
type FusionConfig struct {
	// BranchTimeout is the per-branch deadline in seconds.
	BranchTimeout int `json:"branchTimeout"`

	// TopK is how many neighbors the similarity search returns.
	TopK int `json:"topK"`

	// MinEvidence is the neighbor count below which the evidence
	// pipeline reports COLD_START.
	MinEvidence int `json:"minEvidence"`

	// FraudThreshold is the aggregated fraud score at or above which
	// the fraud signal asserts detection.
	FraudThreshold float64 `json:"fraudThreshold"`

	// VelocityWindow is the application-velocity window in seconds
	// fed to the fraud rules.
	VelocityWindow int `json:"velocityWindow"`
}

// EmbeddingConfig selects the embedder implementation.
type EmbeddingConfig struct {
	// Type is "local" (feature-hash embedder) or "remote" (HTTP service)
	Type string `json:"type"`

	// Dimension of the embedding vectors.
	Dimension int `json:"dimension"`

	// Remote service settings
	RemoteURL     string `json:"remoteUrl,omitempty"`
	RemoteTimeout int    `json:"remoteTimeout,omitempty"` // seconds
}

// ClassifierConfig selects the structured classifier implementation.
type ClassifierConfig struct {
	// Type is "heuristic" (built-in scorer) or "remote" (model service)
	Type string `json:"type"`

	// Remote model service settings
	RemoteURL     string `json:"remoteUrl,omitempty"`
	RemoteTimeout int    `json:"remoteTimeout,omitempty"` // seconds
}

// AuthConfig holds API authentication settings.
// When Secret is empty, bearer-token checks are disabled.
type AuthConfig struct {
	Secret string `json:"-"`
	Issuer string `json:"issuer,omitempty"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled      bool   `json:"enabled"`
	ServiceName  string `json:"serviceName"`
	ExporterType string `json:"exporterType"` // stdout, otlp, jaeger
	Endpoint     string `json:"endpoint"`
}

// Tier represents the product tier.
type Tier string

const (
	// TierCommunity is the free tier with SQLite + channels + local embedder
	TierCommunity Tier = "community"

	// TierPro is the paid tier with PostgreSQL + NATS + Redis + model services
	TierPro Tier = "pro"

	// TierEnterprise includes multi-node, SSO, etc.
	TierEnterprise Tier = "enterprise"
)

// DefaultConfig returns a default configuration for Community tier.
// Everything runs in-process: SQLite storage, in-memory cache and index,
// channel bus, feature-hash embedder, heuristic classifier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Tier: TierCommunity,
		Fusion: FusionConfig{
			BranchTimeout:  5,
			TopK:           5,
			MinEvidence:    3,
			FraudThreshold: 0.7,
			VelocityWindow: 3600,
		},
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./kestrel.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     300, // 5 minutes
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Embedding: EmbeddingConfig{
			Type:      "local",
			Dimension: 256,
		},
		Classifier: ClassifierConfig{
			Type: "heuristic",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "kestrel",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
// Pro points the embedding and classifier branches at external model
// services and uses PostgreSQL, Redis and NATS.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "kestrel",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Embedding = EmbeddingConfig{
		Type:          "remote",
		Dimension:     384,
		RemoteURL:     "http://localhost:9090/embed",
		RemoteTimeout: 5,
	}
	cfg.Classifier = ClassifierConfig{
		Type:          "remote",
		RemoteURL:     "http://localhost:9091/assess",
		RemoteTimeout: 5,
	}
	cfg.Tracing.Enabled = true
	return cfg
}
