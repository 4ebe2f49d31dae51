package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Neo4j     Neo4jConfig
	Milvus    MilvusConfig
	SQLite    SQLiteConfig
	Redis     RedisConfig
	LLM       LLMConfig
	Analyzer  AnalyzerConfig
	Retrieval RetrievalConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  int
	WriteTimeout int
	BodyLimit    int
}

type Neo4jConfig struct {
	URI      string
	Username string
	Password string
	Database string
}

type MilvusConfig struct {
	Endpoint       string
	APIKey         string
	CollectionName string
	VectorDim      int
	IndexType      string
}

type SQLiteConfig struct {
	Path string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	Enabled  bool
}

type LLMConfig struct {
	Provider       string
	Model          string
	APIKey         string
	Temperature    float32
	MaxTokens      int
	TimeoutSec     int
	EmbeddingModel string
	EmbeddingDim   int
}

// AnalyzerConfig selects the query-analysis mode for this deployment.
// Heuristic and deep analysis are never reconciled against each other;
// a deployment runs one or the other.
type AnalyzerConfig struct {
	Mode string // "heuristic" or "deep"
}

// RetrievalConfig carries the tunable scoring constants of the retrieval
// pipeline. The thresholds are empirical; treat them as knobs, not as
// values with inherent meaning.
type RetrievalConfig struct {
	MaxResults            int
	DocSimilarityFloor    float64
	DocCandidates         int
	UpstreamFloor         float64
	UpstreamDiscount      float64
	UpstreamFanout        int
	AliasBigramThreshold  float64
	SchematicMatchScore   float64
	SchematicBaseScore    float64
	DependencyScore       float64
	HierarchyScore        float64
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/atlas-gmao")

	viper.SetEnvPrefix("ATLAS_GMAO")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.readTimeout", 30)
	viper.SetDefault("server.writeTimeout", 30)
	viper.SetDefault("server.bodyLimit", 10485760)

	viper.SetDefault("neo4j.uri", "bolt://localhost:7687")
	viper.SetDefault("neo4j.username", "neo4j")
	viper.SetDefault("neo4j.password", "password")
	viper.SetDefault("neo4j.database", "neo4j")

	viper.SetDefault("milvus.endpoint", "localhost:19530")
	viper.SetDefault("milvus.collectionName", "equipment_docs")
	viper.SetDefault("milvus.vectorDim", 1536)
	viper.SetDefault("milvus.indexType", "IVF_FLAT")

	viper.SetDefault("sqlite.path", "./data/gmao.db")

	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.enabled", false)

	viper.SetDefault("llm.provider", "openai")
	viper.SetDefault("llm.model", "gpt-4")
	viper.SetDefault("llm.temperature", 0.2)
	viper.SetDefault("llm.maxTokens", 2048)
	viper.SetDefault("llm.timeoutSec", 60)
	viper.SetDefault("llm.embeddingModel", "text-embedding-3-large")
	viper.SetDefault("llm.embeddingDim", 1536)

	viper.SetDefault("analyzer.mode", "heuristic")

	viper.SetDefault("retrieval.maxResults", 15)
	viper.SetDefault("retrieval.docSimilarityFloor", 0.25)
	viper.SetDefault("retrieval.docCandidates", 10)
	viper.SetDefault("retrieval.upstreamFloor", 0.4)
	viper.SetDefault("retrieval.upstreamDiscount", 0.8)
	viper.SetDefault("retrieval.upstreamFanout", 2)
	viper.SetDefault("retrieval.aliasBigramThreshold", 0.6)
	viper.SetDefault("retrieval.schematicMatchScore", 0.9)
	viper.SetDefault("retrieval.schematicBaseScore", 0.7)
	viper.SetDefault("retrieval.dependencyScore", 0.85)
	viper.SetDefault("retrieval.hierarchyScore", 0.8)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.outputPath", "stdout")
}
