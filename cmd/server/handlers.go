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

package main

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/your-org/spl-assistant/internal/feedback"
	"github.com/your-org/spl-assistant/internal/health"
	"github.com/your-org/spl-assistant/internal/synthesis"
	"go.uber.org/zap"
)

// QueryRequest is the JSON payload for generation and relevance checks.
// Verbose elevates per-stage log detail for this request only.
type QueryRequest struct {
	Query   string `json:"query" binding:"required"`
	Verbose bool   `json:"verbose,omitempty"`
}

// ValidateRequest is the JSON payload for standalone validation
type ValidateRequest struct {
	SPLQuery string `json:"spl_query" binding:"required"`
}

// ValidateResponse reports validation findings for a submitted query
type ValidateResponse struct {
	Valid  bool     `json:"valid"`
	Issues []string `json:"issues,omitempty"`
}

// FeedbackRequest is the JSON payload for user feedback on a result
type FeedbackRequest struct {
	Query           string `json:"query" binding:"required"`
	SPLQuery        string `json:"spl_query" binding:"required"`
	Rating          string `json:"rating" binding:"required"`
	Comment         string `json:"comment,omitempty"`
	DetectionMethod string `json:"detection_method,omitempty"`
}

// serve configures the router and blocks serving HTTP.
func (app *application) serve() error {
	if app.Config.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := app.router()

	addr := fmt.Sprintf(":%d", app.Config.Server.Port)
	app.Logger.Info("Starting SPL assistant service",
		zap.String("addr", addr),
		zap.String("chroma_url", app.Config.Chroma.URL),
		zap.String("rerank_url", app.Config.Rerank.URL),
	)

	return router.Run(addr)
}

// router assembles the HTTP surface.
func (app *application) router() *gin.Engine {
	router := gin.Default()
	router.Use(corsMiddleware(app.Config.Server.AllowOrigins))

	healthManager := health.NewManager(serviceName, serviceVersion, app.Logger)
	app.setupHealthChecks(healthManager)
	router.GET("/health", gin.WrapH(healthManager.HTTPHandler()))

	api := router.Group("/api/spl")
	api.POST("/generate", app.handleGenerate)
	api.POST("/check-relevance", app.handleCheckRelevance)
	api.POST("/validate", app.handleValidate)
	api.POST("/exemplars", app.handleExemplars)
	api.GET("/companies", app.handleCompanies)
	api.POST("/feedback", app.handleFeedback)
	api.GET("/feedback/recent", app.handleFeedbackRecent)
	api.GET("/feedback/stats", app.handleFeedbackStats)

	return router
}

// bindQuery binds and validates the common query payload. Whitespace-only
// text is rejected here so it never reaches the pipeline.
func bindQuery(c *gin.Context) (QueryRequest, bool) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return req, false
	}
	if strings.TrimSpace(req.Query) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Query must not be empty"})
		return req, false
	}
	return req, true
}

func (app *application) handleGenerate(c *gin.Context) {
	req, ok := bindQuery(c)
	if !ok {
		return
	}

	resp := app.Orchestrator.Generate(c.Request.Context(), req.Query, req.Verbose)
	c.JSON(http.StatusOK, resp)
}

func (app *application) handleCheckRelevance(c *gin.Context) {
	req, ok := bindQuery(c)
	if !ok {
		return
	}

	resp := app.Orchestrator.CheckRelevance(c.Request.Context(), req.Query)
	c.JSON(http.StatusOK, resp)
}

func (app *application) handleValidate(c *gin.Context) {
	var req ValidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}

	issues := synthesis.Validate(req.SPLQuery)
	c.JSON(http.StatusOK, ValidateResponse{
		Valid:  len(issues) == 0,
		Issues: issues,
	})
}

// handleExemplars returns the stored Q/A pairs most similar to the request,
// at the standalone exemplar depth.
func (app *application) handleExemplars(c *gin.Context) {
	req, ok := bindQuery(c)
	if !ok {
		return
	}

	exemplars := app.Retriever.Exemplars(c.Request.Context(), req.Query, false)
	c.JSON(http.StatusOK, gin.H{"exemplars": exemplars})
}

// handleCompanies lists the loaded tenant catalog.
func (app *application) handleCompanies(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"companies": app.Catalog.Tenants})
}

func (app *application) handleFeedback(c *gin.Context) {
	var req FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}

	rec := feedback.Record{
		Query:           req.Query,
		SPLQuery:        req.SPLQuery,
		Rating:          req.Rating,
		Comment:         req.Comment,
		DetectionMethod: req.DetectionMethod,
	}
	if err := app.Feedback.Save(rec); err != nil {
		app.Logger.Error("Failed to save feedback", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save feedback"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "recorded"})
}

func (app *application) handleFeedbackRecent(c *gin.Context) {
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	records, err := app.Feedback.Recent(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"feedback": records})
}

func (app *application) handleFeedbackStats(c *gin.Context) {
	stats, err := app.Feedback.RatingStats()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ratings": stats})
}

// setupHealthChecks registers dependency checks. The model provider and
// rerank sidecar degrade rather than fail: the pipeline falls back to
// deterministic stages without them.
func (app *application) setupHealthChecks(manager *health.Manager) {
	manager.AddChecker("chroma", health.ExternalServiceHealthChecker("chroma", func(ctx context.Context) error {
		return app.ChromaClient.HealthCheck(ctx)
	}))

	manager.AddChecker("rerank", health.ExternalServiceHealthChecker("rerank", func(ctx context.Context) error {
		return app.RerankClient.HealthCheck(ctx)
	}))

	manager.AddChecker("feedback", health.DatabaseHealthChecker("feedback", func(ctx context.Context) error {
		return app.Feedback.Ping(ctx)
	}))

	manager.AddCheckerFunc("llm", func(ctx context.Context) health.CheckResult {
		if app.Config.LLM.APIKey == "" {
			return health.CheckResult{
				Status: health.StatusDegraded,
				Error:  "no API key configured, running on deterministic stages only",
			}
		}
		return health.CheckResult{
			Status: health.StatusHealthy,
			Metadata: map[string]interface{}{
				"endpoint": app.Config.LLM.Endpoint,
				"model":    app.Config.LLM.Model,
			},
		}
	})

	manager.SetTimeout(HealthCheckTimeout)
}

// corsMiddleware applies the configured allowed origins.
func corsMiddleware(allowOrigins []string) gin.HandlerFunc {
	allowAll := len(allowOrigins) == 0
	for _, o := range allowOrigins {
		if o == "*" {
			allowAll = true
		}
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		switch {
		case allowAll:
			c.Header("Access-Control-Allow-Origin", "*")
		case origin != "" && containsOrigin(allowOrigins, origin):
			c.Header("Access-Control-Allow-Origin", origin)
		}
		c.Header("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Header("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func containsOrigin(origins []string, origin string) bool {
	for _, o := range origins {
		if strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}
