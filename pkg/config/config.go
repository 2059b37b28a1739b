package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LLM struct {
		BaseURL      string  `yaml:"base_url"`
		Model        string  `yaml:"model"`
		MaxTokens    int     `yaml:"max_tokens"`
		Temperature  float64 `yaml:"temperature"`
		CostPerToken float64 `yaml:"cost_per_token"`
	} `yaml:"llm"`

	Embedding struct {
		Model             string  `yaml:"model"`
		BatchSize         int     `yaml:"batch_size"`
		RequestsPerSecond float64 `yaml:"requests_per_second"`
	} `yaml:"embedding"`

	Database struct {
		URL         string `yaml:"url"`
		ChunksTable string `yaml:"chunks_table"`
		StatusTable string `yaml:"status_table"`
		VectorDim   int    `yaml:"vector_dim"`
	} `yaml:"database"`

	Search struct {
		DefaultLimit        int     `yaml:"default_limit"`
		MaxLimit            int     `yaml:"max_limit"`
		SimilarityThreshold float64 `yaml:"similarity_threshold"`
		LexicalWeight       float64 `yaml:"lexical_weight"`
		VectorWeight        float64 `yaml:"vector_weight"`
		FallbackScore       float64 `yaml:"fallback_score"`
	} `yaml:"search"`

	Chunking struct {
		MaxSize   int `yaml:"max_size"`
		MinLength int `yaml:"min_length"`
	} `yaml:"chunking"`

	Cache struct {
		RedisURL string        `yaml:"redis_url"`
		TTL      time.Duration `yaml:"ttl"`
	} `yaml:"cache"`

	Metering struct {
		Brokers []string `yaml:"brokers"`
		Topic   string   `yaml:"topic"`
	} `yaml:"metering"`

	Storage struct {
		Endpoint  string `yaml:"endpoint"`
		AccessKey string `yaml:"access_key"`
		SecretKey string `yaml:"secret_key"`
		Bucket    string `yaml:"bucket"`
		UseSSL    bool   `yaml:"use_ssl"`
	} `yaml:"storage"`

	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

func LoadConfig(path string) (*Config, error) {
	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/ragcore/config.yaml"),
			"/etc/ragcore/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	mergeWithEnv(&config)
	applyDefaults(&config)

	return &config, nil
}

func getDefaultConfig() (*Config, error) {
	config := &Config{}
	applyDefaults(config)
	mergeWithEnv(config)
	return config, nil
}

func applyDefaults(config *Config) {
	if config.LLM.Model == "" {
		config.LLM.Model = "mistral"
	}
	if config.LLM.MaxTokens == 0 {
		config.LLM.MaxTokens = 1000
	}
	if config.LLM.Temperature == 0 {
		config.LLM.Temperature = 0.7
	}
	if config.LLM.BaseURL == "" {
		config.LLM.BaseURL = "http://localhost:11434"
	}
	if config.LLM.CostPerToken == 0 {
		config.LLM.CostPerToken = 0.002 / 1000
	}

	if config.Embedding.Model == "" {
		config.Embedding.Model = "nomic-embed-text:latest"
	}
	if config.Embedding.BatchSize == 0 {
		config.Embedding.BatchSize = 100
	}
	if config.Embedding.RequestsPerSecond == 0 {
		config.Embedding.RequestsPerSecond = 5
	}

	if config.Database.ChunksTable == "" {
		config.Database.ChunksTable = "document_chunks"
	}
	if config.Database.StatusTable == "" {
		config.Database.StatusTable = "indexing_status"
	}
	if config.Database.VectorDim == 0 {
		config.Database.VectorDim = 768
	}

	if config.Search.DefaultLimit == 0 {
		config.Search.DefaultLimit = 10
	}
	if config.Search.MaxLimit == 0 {
		config.Search.MaxLimit = 100
	}
	if config.Search.SimilarityThreshold == 0 {
		config.Search.SimilarityThreshold = 0.3
	}
	if config.Search.LexicalWeight == 0 {
		config.Search.LexicalWeight = 0.6
	}
	if config.Search.VectorWeight == 0 {
		config.Search.VectorWeight = 0.4
	}
	if config.Search.FallbackScore == 0 {
		config.Search.FallbackScore = 0.6
	}

	if config.Chunking.MaxSize == 0 {
		config.Chunking.MaxSize = 500
	}
	if config.Chunking.MinLength == 0 {
		config.Chunking.MinLength = 50
	}

	if config.Cache.TTL == 0 {
		config.Cache.TTL = 5 * time.Minute
	}
	if config.Metering.Topic == "" {
		config.Metering.Topic = "usage-metrics"
	}
	if config.Storage.Bucket == "" {
		config.Storage.Bucket = "documents"
	}

	if config.Server.Addr == "" {
		config.Server.Addr = ":8080"
	}
	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
	if config.Log.Format == "" {
		config.Log.Format = "json"
	}
}

func mergeWithEnv(config *Config) {
	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
		config.LLM.BaseURL = baseURL
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Database.URL = dbURL
	}
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		config.Cache.RedisURL = redisURL
	}
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		config.Metering.Brokers = strings.Split(brokers, ",")
	}
	if endpoint := os.Getenv("MINIO_ENDPOINT"); endpoint != "" {
		config.Storage.Endpoint = endpoint
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		config.Log.Level = level
	}
}
