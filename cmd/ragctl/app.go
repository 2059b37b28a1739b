package main

import (
	"context"
	"fmt"

	"github.com/xhad/ragcore/internal/types"
	"github.com/xhad/ragcore/pkg/answer"
	"github.com/xhad/ragcore/pkg/blob"
	"github.com/xhad/ragcore/pkg/cache"
	"github.com/xhad/ragcore/pkg/extractor"
	"github.com/xhad/ragcore/pkg/indexer"
	"github.com/xhad/ragcore/pkg/llm"
	"github.com/xhad/ragcore/pkg/metering"
	"github.com/xhad/ragcore/pkg/processor"
	"github.com/xhad/ragcore/pkg/search"
	"github.com/xhad/ragcore/pkg/store"
	"github.com/xhad/ragcore/server"
)

// app holds one instance of every component, wired from cfg.
type app struct {
	store   *store.VectorStore
	indexer *indexer.Indexer
	search  *search.Engine
	answer  *answer.Synthesizer
	blobs   *blob.MinioSource
	checks  map[string]server.Pinger
	closers []func()
}

func newApp(ctx context.Context) (*app, error) {
	a := &app{checks: make(map[string]server.Pinger)}

	vs, err := store.NewWithConfig(ctx, store.VectorStoreConfig{
		ConnString:  cfg.Database.URL,
		TableName:   cfg.Database.ChunksTable,
		StatusTable: cfg.Database.StatusTable,
		VectorDim:   cfg.Database.VectorDim,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize vector store: %w", err)
	}
	a.store = vs
	a.checks["database"] = vs
	a.closers = append(a.closers, vs.Close)

	embedder, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{
		Model:             cfg.Embedding.Model,
		BaseURL:           cfg.LLM.BaseURL,
		BatchSize:         cfg.Embedding.BatchSize,
		RequestsPerSecond: cfg.Embedding.RequestsPerSecond,
	}, log)
	if err != nil {
		a.Close()
		return nil, err
	}

	chatEngine, err := llm.NewWithConfig(llm.ChatConfig{
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		BaseURL:     cfg.LLM.BaseURL,
		Temperature: cfg.LLM.Temperature,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize chat engine: %w", err)
	}

	a.search = search.New(vs, embedder, search.Config{
		DefaultLimit:        cfg.Search.DefaultLimit,
		MaxLimit:            cfg.Search.MaxLimit,
		SimilarityThreshold: cfg.Search.SimilarityThreshold,
		LexicalWeight:       cfg.Search.LexicalWeight,
		VectorWeight:        cfg.Search.VectorWeight,
		FallbackScore:       cfg.Search.FallbackScore,
	}, log)

	proc := processor.NewWithConfig(processor.ProcessorConfig{
		MaxSize:   cfg.Chunking.MaxSize,
		MinLength: cfg.Chunking.MinLength,
	})
	a.indexer = indexer.New(extractor.New(log), proc, embedder, vs, vs, log)

	if cfg.Storage.Endpoint != "" {
		src, err := blob.NewMinioSource(ctx, blob.MinioConfig{
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			Bucket:    cfg.Storage.Bucket,
			UseSSL:    cfg.Storage.UseSSL,
		})
		if err != nil {
			a.Close()
			return nil, err
		}
		a.blobs = src
		a.indexer.SetSource(src)
		a.checks["storage"] = src
	} else {
		a.indexer.SetSource(blob.NewDirSource(docsDir))
	}

	var c types.Cache
	if cfg.Cache.RedisURL != "" {
		rc, err := cache.NewRedis(ctx, cfg.Cache.RedisURL)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.checks["cache"] = rc
		a.closers = append(a.closers, func() { rc.Close() })
		c = rc
	} else {
		log.Warn("no redis url configured, using in-process answer cache")
		c = cache.NewMemory()
	}

	var usage types.UsageRecorder
	if len(cfg.Metering.Brokers) > 0 {
		pub := metering.NewPublisher(cfg.Metering.Brokers, cfg.Metering.Topic, log)
		a.closers = append(a.closers, func() { pub.Close() })
		usage = pub
	} else {
		usage = metering.NewLogRecorder(log)
	}

	a.answer = answer.New(a.search, chatEngine, c, usage, answer.Config{
		CacheTTL:     cfg.Cache.TTL,
		CostPerToken: cfg.LLM.CostPerToken,
	}, log)

	return a, nil
}

// Close waits for pending usage records and releases connections in
// reverse order of creation.
func (a *app) Close() {
	if a.answer != nil {
		a.answer.Wait()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
