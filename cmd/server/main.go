// Copyright 2025 SPL Assistant Project
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package main provides the SPL Assistant service: an HTTP API and a
// one-shot CLI that turn natural-language requests into validated Splunk
// SPL queries.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/your-org/spl-assistant/internal/catalog"
	"github.com/your-org/spl-assistant/internal/chroma"
	"github.com/your-org/spl-assistant/internal/chunker"
	"github.com/your-org/spl-assistant/internal/config"
	"github.com/your-org/spl-assistant/internal/feedback"
	"github.com/your-org/spl-assistant/internal/llm"
	"github.com/your-org/spl-assistant/internal/pipeline"
	"github.com/your-org/spl-assistant/internal/relevance"
	"github.com/your-org/spl-assistant/internal/rerank"
	"github.com/your-org/spl-assistant/internal/resolver"
	"github.com/your-org/spl-assistant/internal/retrieval"
	"github.com/your-org/spl-assistant/internal/synthesis"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	serviceName    = "spl-assistant"
	serviceVersion = "1.0.0"

	// HealthCheckTimeout defines the timeout for health checks
	HealthCheckTimeout = 5 * time.Second
	// AdapterTimeout defines the HTTP timeout for sidecar clients
	AdapterTimeout = 30 * time.Second
)

// application holds the initialized service dependencies
type application struct {
	Config       *config.Config
	Logger       *zap.Logger
	LLMClient    *llm.Client
	ChromaClient *chroma.Client
	RerankClient *rerank.Client
	Catalog      *catalog.Catalog
	Retriever    *retrieval.Retriever
	Orchestrator *pipeline.Orchestrator
	Feedback     *feedback.Store
}

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:          serviceName,
		Short:        "Natural language to Splunk SPL query generation",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")

	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newGenerateCommand())
	rootCmd.AddCommand(newCheckCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newServeCommand starts the HTTP API.
func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := initializeApplication()
			if err != nil {
				return err
			}
			defer app.close()

			app.ingestCorpus(cmd.Context())
			return app.serve()
		},
	}
}

// newGenerateCommand runs one request through the pipeline and prints the
// response as JSON.
func newGenerateCommand() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "generate [request]",
		Short: "Generate an SPL query for a single request",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := initializeApplication()
			if err != nil {
				return err
			}
			defer app.close()

			resp := app.Orchestrator.Generate(cmd.Context(), strings.Join(args, " "), verbose)
			return printJSON(resp)
		},
	}
	cmd.Flags().BoolVar(&verbose, "verbose", false, "log per-stage pipeline detail")

	return cmd
}

// newCheckCommand classifies a request without generating anything.
func newCheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check [request]",
		Short: "Check whether a request is Splunk-related",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := initializeApplication()
			if err != nil {
				return err
			}
			defer app.close()

			resp := app.Orchestrator.CheckRelevance(cmd.Context(), strings.Join(args, " "))
			return printJSON(resp)
		},
	}
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// initializeApplication loads configuration and wires all dependencies.
func initializeApplication() (*application, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := initializeLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	masked := cfg.MaskSensitiveValues()
	logger.Info("Configuration loaded successfully",
		zap.String("service", serviceName),
		zap.String("environment", os.Getenv("ENVIRONMENT")),
		zap.String("llm_endpoint", masked.LLM.Endpoint),
		zap.String("llm_model", masked.LLM.Model),
		zap.String("llm_api_key", masked.LLM.APIKey),
		zap.String("chroma_url", masked.Chroma.URL),
		zap.String("rerank_url", masked.Rerank.URL),
	)

	llmClient := llm.NewClient(llm.Options{
		APIKey:         cfg.LLM.APIKey,
		Endpoint:       cfg.LLM.Endpoint,
		Model:          cfg.LLM.Model,
		EmbeddingModel: cfg.LLM.EmbeddingModel,
	}, logger)

	chromaClient := chroma.NewClient(cfg.Chroma.URL, cfg.Chroma.CollectionName, AdapterTimeout, logger)
	rerankClient := rerank.NewClient(cfg.Rerank.URL, AdapterTimeout, logger)

	loader := catalog.NewLoader(cfg.Catalog.DataDirs, cfg.Catalog.TenantsFile, cfg.Catalog.ExemplarsFile, logger)
	cat, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load reference catalog: %w", err)
	}
	logger.Info("Reference catalog loaded",
		zap.Int("tenants", len(cat.Tenants)),
		zap.Int("exemplars", len(cat.Exemplars)),
	)

	classifier := relevance.NewClassifier(llmClient, llmClient, logger)

	res := resolver.NewResolver(cat, llmClient, llmClient, resolver.Options{
		CrossTenantThreshold: cfg.Resolver.CrossTenantThreshold,
		GenericConfidence:    cfg.Resolver.GenericConfidence,
	}, logger)

	retriever := retrieval.NewRetriever(chromaClient, rerankClient, llmClient, llmClient, cat, retrieval.Options{
		Overfetch:          cfg.Retrieval.Overfetch,
		TopK:               cfg.Retrieval.TopK,
		ExemplarK:          cfg.Retrieval.ExemplarK,
		SynthesisExemplarK: cfg.Retrieval.SynthesisExemplarK,
	}, logger)

	synthesizer := synthesis.NewSynthesizer(llmClient, cat, float32(cfg.Synthesis.Temperature), logger)

	orchestrator := pipeline.NewOrchestrator(classifier, res, retriever, synthesizer, llmClient,
		cfg.Relevance.EmbeddingThreshold, cfg.Relevance.GenerateEmbeddingThreshold, logger)

	store, err := feedback.NewStore(feedback.Config{
		StorageType: cfg.Feedback.StorageType,
		FilePath:    cfg.Feedback.FilePath,
		DBPath:      cfg.Feedback.DBPath,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize feedback store: %w", err)
	}

	return &application{
		Config:       cfg,
		Logger:       logger,
		LLMClient:    llmClient,
		ChromaClient: chromaClient,
		RerankClient: rerankClient,
		Catalog:      cat,
		Retriever:    retriever,
		Orchestrator: orchestrator,
		Feedback:     store,
	}, nil
}

func (app *application) close() {
	if err := app.Feedback.Close(); err != nil {
		app.Logger.Warn("Failed to close feedback store", zap.Error(err))
	}
	_ = app.Logger.Sync()
}

// ingestCorpus splits the documentation corpus and loads it into the
// vector store. Failures leave retrieval running on exemplars alone.
func (app *application) ingestCorpus(ctx context.Context) {
	cfg := app.Config

	var docs string
	for _, dir := range cfg.Catalog.DataDirs {
		data, err := os.ReadFile(fmt.Sprintf("%s/%s", dir, cfg.Catalog.DocsFile))
		if err == nil {
			docs = string(data)
			break
		}
	}
	if docs == "" {
		app.Logger.Warn("Documentation corpus not found, passage retrieval will be empty",
			zap.String("docs_file", cfg.Catalog.DocsFile))
		return
	}

	chunks := chunker.Split(docs, cfg.Chunker.ChunkSize, cfg.Chunker.Overlap)
	embeddings, err := app.LLMClient.EmbedTexts(ctx, chunks)
	if err != nil {
		app.Logger.Warn("Corpus embedding failed, passage retrieval will be empty", zap.Error(err))
		return
	}

	if err := app.ChromaClient.AddPassages(ctx, chunks, embeddings); err != nil {
		app.Logger.Warn("Corpus load into vector store failed", zap.Error(err))
		return
	}

	app.Logger.Info("Documentation corpus ingested", zap.Int("chunks", len(chunks)))
}

// initializeLogger creates a logger based on configuration settings
func initializeLogger(cfg *config.Config) (*zap.Logger, error) {
	var zapConfig zap.Config

	if cfg.Logging.Format == "json" {
		zapConfig = zap.NewProductionConfig()
	} else {
		zapConfig = zap.NewDevelopmentConfig()
	}

	switch cfg.Logging.Level {
	case "debug":
		zapConfig.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	case "info":
		zapConfig.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	case "warn":
		zapConfig.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	case "error":
		zapConfig.Level = zap.NewAtomicLevelAt(zapcore.ErrorLevel)
	default:
		zapConfig.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}

	if cfg.Logging.Output == "file" {
		zapConfig.OutputPaths = []string{serviceName + ".log"}
		zapConfig.ErrorOutputPaths = []string{serviceName + ".log"}
	} else {
		zapConfig.OutputPaths = []string{"stdout"}
		zapConfig.ErrorOutputPaths = []string{"stderr"}
	}

	return zapConfig.Build()
}
