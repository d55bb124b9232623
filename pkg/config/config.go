package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	SQLite    SQLiteConfig
	Redis     RedisConfig
	LLM       LLMConfig
	Chunking  ChunkingConfig
	Dedup     DedupConfig
	Retrieval RetrievalConfig
	Catalog   []CatalogEntry
	Logging   LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  int
	WriteTimeout int
	BodyLimit    int
}

type SQLiteConfig struct {
	Path string
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type LLMConfig struct {
	APIKey         string
	Model          string
	Temperature    float32
	MaxTokens      int
	EmbeddingModel string
}

type RoleChunking struct {
	Size    int
	Overlap int
}

type ChunkingConfig struct {
	Publication RoleChunking
	Thesis      RoleChunking
	Web         RoleChunking
	Other       RoleChunking
}

type DedupConfig struct {
	CosineThreshold  float64
	LexicalThreshold float64
	NoveltyThreshold float64
}

type RetrievalConfig struct {
	TopK                int
	DiversityCap        int
	RedundancyPenalty   float64
	PaperSpecificDocCap int
}

type CatalogEntry struct {
	Title   string
	Venue   string
	Year    int
	Aliases []string
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
	viper.AddConfigPath("/etc/scholar-rag")

	viper.SetEnvPrefix("SCHOLAR_RAG")
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
	viper.SetDefault("server.bodyLimit", 20971520)

	viper.SetDefault("sqlite.path", "./data/scholarrag.db")

	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("llm.model", "gpt-4")
	viper.SetDefault("llm.temperature", 0.2)
	viper.SetDefault("llm.maxTokens", 2048)
	viper.SetDefault("llm.embeddingModel", "text-embedding-3-small")

	viper.SetDefault("chunking.publication.size", 900)
	viper.SetDefault("chunking.publication.overlap", 140)
	viper.SetDefault("chunking.thesis.size", 1200)
	viper.SetDefault("chunking.thesis.overlap", 180)
	viper.SetDefault("chunking.web.size", 900)
	viper.SetDefault("chunking.web.overlap", 150)
	viper.SetDefault("chunking.other.size", 900)
	viper.SetDefault("chunking.other.overlap", 150)

	viper.SetDefault("dedup.cosineThreshold", 0.96)
	viper.SetDefault("dedup.lexicalThreshold", 0.85)
	viper.SetDefault("dedup.noveltyThreshold", 0.20)

	viper.SetDefault("retrieval.topK", 8)
	viper.SetDefault("retrieval.diversityCap", 2)
	viper.SetDefault("retrieval.redundancyPenalty", 0.08)
	viper.SetDefault("retrieval.paperSpecificDocCap", 4)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.outputPath", "stdout")
}
