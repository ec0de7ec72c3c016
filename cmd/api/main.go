package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"bitbucket.org/mmdatafocus/estimator_backend/config"
	"bitbucket.org/mmdatafocus/estimator_backend/middlewares"
	"bitbucket.org/mmdatafocus/estimator_backend/models"
	"bitbucket.org/mmdatafocus/estimator_backend/models/reports"
	"bitbucket.org/mmdatafocus/estimator_backend/utils"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const defaultPort = "8080"

var tracer trace.Tracer = otel.Tracer("estimator-api")

func errStatus(err error) int {
	switch {
	case errors.Is(err, utils.ErrorNotAuthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, utils.ErrorRecordNotFound):
		return http.StatusNotFound
	default:
		return http.StatusBadRequest
	}
}

func abortWithError(c *gin.Context, err error) {
	c.JSON(errStatus(err), gin.H{"error": err.Error()})
}

func decimalTokens(raw map[string]float64) map[string]decimal.Decimal {
	tokens := make(map[string]decimal.Decimal, len(raw))
	for k, v := range raw {
		tokens[k] = utils.SafeDecimalFromFloat(v)
	}
	return tokens
}

func getCostingHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		costing, err := models.GetInternalCosting(c.Request.Context(), c.Param("estimateId"))
		if err != nil {
			abortWithError(c, err)
			return
		}
		if costing == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "costing not found"})
			return
		}
		c.JSON(http.StatusOK, costing)
	}
}

func saveCostingHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var costing models.InternalCosting
		if err := c.ShouldBindJSON(&costing); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		costing.EstimateId = c.Param("estimateId")
		if err := models.SaveInternalCosting(c.Request.Context(), &costing); err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, costing)
	}
}

func recomputeCostingHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		costing, err := models.RecomputeAndSave(c.Request.Context(), c.Param("estimateId"))
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, costing)
	}
}

type regenerateRequest struct {
	Mode         models.RegenerationMode `json:"mode"`
	Measurements map[string]float64      `json:"measurements"`
}

func regenerateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req regenerateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if !req.Mode.IsValid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid regeneration mode"})
			return
		}
		estimateId := c.Param("estimateId")
		ctx, span := tracer.Start(c.Request.Context(), "regenerate-estimate",
			trace.WithAttributes(
				attribute.String("estimate_id", estimateId),
				attribute.String("mode", string(req.Mode)),
			))
		defer span.End()

		fresh, err := models.GenerateCostingFromBrief(ctx, estimateId, decimalTokens(req.Measurements))
		if err != nil {
			abortWithError(c, err)
			return
		}
		merged, err := models.RegenerateEstimate(ctx, estimateId, fresh, req.Mode)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, merged)
	}
}

func getBriefHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		brief, err := models.GetEstimateBrief(c.Request.Context(), c.Param("estimateId"))
		if err != nil {
			abortWithError(c, err)
			return
		}
		if brief == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "brief not found"})
			return
		}
		c.JSON(http.StatusOK, brief)
	}
}

func saveBriefHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var brief models.EstimateBrief
		if err := c.ShouldBindJSON(&brief); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		brief.EstimateId = c.Param("estimateId")
		if err := models.SaveEstimateBrief(c.Request.Context(), &brief); err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, brief)
	}
}

type applyAssemblyRequest struct {
	SectionName string             `json:"section_name" binding:"required"`
	AssemblyId  int                `json:"assembly_id" binding:"required"`
	Tokens      map[string]float64 `json:"tokens"`
}

func applyAssemblyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req applyAssemblyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		costing, err := models.ApplyAssemblyToEstimate(
			c.Request.Context(), c.Param("estimateId"),
			req.SectionName, req.AssemblyId, decimalTokens(req.Tokens))
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, costing)
	}
}

func listAssembliesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		assemblies, err := models.ListAssemblies(c.Request.Context())
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, assemblies)
	}
}

func createAssemblyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.Assembly
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		assembly, err := models.CreateAssembly(c.Request.Context(), &input)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusCreated, assembly)
	}
}

func getAssemblyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid assembly id"})
			return
		}
		assembly, err := models.GetAssembly(c.Request.Context(), id)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, assembly)
	}
}

func listBundlesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		bundles, err := models.ListBundles(c.Request.Context())
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, bundles)
	}
}

type recommendBundlesRequest struct {
	TemplateId string         `json:"template_id"`
	Answers    map[string]any `json:"answers"`
}

func recommendBundlesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req recommendBundlesRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		bundles, err := models.ListBundles(c.Request.Context())
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.RecommendBundles(bundles, req.Answers, req.TemplateId))
	}
}

type previewQuantityRequest struct {
	Expression string             `json:"expression" binding:"required"`
	Tokens     map[string]float64 `json:"tokens"`
}

func previewQuantityHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req previewQuantityRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		quantity := models.PreviewQuantity(req.Expression, decimalTokens(req.Tokens))
		c.JSON(http.StatusOK, gin.H{"quantity": quantity})
	}
}

func listVersionsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		versions, err := models.ListEstimateVersions(c.Request.Context(), c.Param("estimateId"))
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, versions)
	}
}

type createVersionRequest struct {
	Reason string `json:"reason"`
}

func createVersionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createVersionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		version, err := models.CreateEstimateVersion(c.Request.Context(), c.Param("estimateId"), req.Reason)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusCreated, version)
	}
}

func restoreVersionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		versionNo, err := strconv.Atoi(c.Param("versionNo"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid version number"})
			return
		}
		costing, err := models.RestoreEstimateVersion(c.Request.Context(), c.Param("estimateId"), versionNo)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, costing)
	}
}

func getCustomerEstimateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		estimate, err := models.GetCustomerEstimate(c.Request.Context(), c.Param("estimateId"))
		if err != nil {
			abortWithError(c, err)
			return
		}
		if estimate == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "customer estimate not found"})
			return
		}
		c.JSON(http.StatusOK, estimate)
	}
}

func saveCustomerEstimateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var estimate models.CustomerEstimate
		if err := c.ShouldBindJSON(&estimate); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		estimate.EstimateId = c.Param("estimateId")
		if err := models.SaveCustomerEstimate(c.Request.Context(), &estimate); err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, estimate)
	}
}

// buildCustomerEstimateHandler projects the internal costing into a fresh
// customer-facing estimate and persists it.
func buildCustomerEstimateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		costing, err := models.GetInternalCosting(ctx, c.Param("estimateId"))
		if err != nil {
			abortWithError(c, err)
			return
		}
		if costing == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "costing not found"})
			return
		}
		estimate := models.BuildCustomerEstimate(costing)
		if err := models.SaveCustomerEstimate(ctx, estimate); err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, estimate)
	}
}

type createOrderRequest struct {
	SupplierRef   string `json:"supplier_ref"`
	ContractorRef string `json:"contractor_ref"`
	Notes         string `json:"notes"`
}

func createPurchaseOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		order, err := models.CreatePurchaseOrderFromCosting(c.Request.Context(), c.Param("estimateId"), req.SupplierRef, req.Notes)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusCreated, order)
	}
}

func createWorkOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		order, err := models.CreateWorkOrderFromCosting(c.Request.Context(), c.Param("estimateId"), req.ContractorRef, req.Notes)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusCreated, order)
	}
}

func exportCostingHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		estimateId := c.Param("estimateId")
		costing, err := models.GetInternalCosting(ctx, estimateId)
		if err != nil {
			abortWithError(c, err)
			return
		}
		if costing == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "costing not found"})
			return
		}

		projectName := "Estimate " + estimateId
		if brief, err := models.GetEstimateBrief(ctx, estimateId); err == nil && brief != nil && brief.ProjectName != "" {
			projectName = brief.ProjectName
		}

		workbook, err := reports.BuildCostingWorkbook(costing, projectName)
		if err != nil {
			abortWithError(c, err)
			return
		}
		defer workbook.Close()

		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=costing-%s.xlsx", estimateId))
		c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		if err := workbook.Write(c.Writer); err != nil {
			config.LogError(config.GetLogger(), "main.go", "exportCostingHandler", "workbook write", estimateId, err)
		}
	}
}

func createCustomerHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewCustomer
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		customer, err := models.CreateCustomer(c.Request.Context(), &input)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusCreated, customer)
	}
}

func getCustomerHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid customer id"})
			return
		}
		customer, err := models.GetCustomer(c.Request.Context(), id)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, customer)
	}
}

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
}

// customErrorLogger logs only requests that collected gin errors.
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if len(c.Errors) > 0 {
			logger.Error(c.Errors.String())
		}
	}
}

func splitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func main() {
	port := os.Getenv("API_PORT")
	if port == "" {
		// Cloud Run standard env var.
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	// Cloud Run sends SIGTERM on revision shutdown; handle it for graceful drain.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// Start the HTTP server ASAP so Cloud Run considers the revision healthy.
	// Until DB/Redis are ready, app endpoints return 503.
	r := gin.New()
	r.Use(middlewares.CorrelationMiddleware())
	r.Use(func(c *gin.Context) {
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		if config.GetDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	// In production require an explicit allowlist; in development allow all.
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("token", "Origin", "Content-Type", "Authorization", "X-Correlation-Id")
	corsConfig.AddExposeHeaders("Content-Length", "Content-Disposition")
	corsConfig.AllowCredentials = true
	r.Use(cors.New(corsConfig))

	r.Use(middlewares.AuthMiddleware())
	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())

	r.GET("/estimates/:estimateId/costing", getCostingHandler())
	r.PUT("/estimates/:estimateId/costing", saveCostingHandler())
	r.POST("/estimates/:estimateId/costing/recompute", recomputeCostingHandler())
	r.GET("/estimates/:estimateId/costing/export", exportCostingHandler())
	r.POST("/estimates/:estimateId/regenerate", regenerateHandler())
	r.GET("/estimates/:estimateId/brief", getBriefHandler())
	r.PUT("/estimates/:estimateId/brief", saveBriefHandler())
	r.POST("/estimates/:estimateId/apply-assembly", applyAssemblyHandler())
	r.GET("/estimates/:estimateId/versions", listVersionsHandler())
	r.POST("/estimates/:estimateId/versions", createVersionHandler())
	r.POST("/estimates/:estimateId/versions/:versionNo/restore", restoreVersionHandler())
	r.GET("/estimates/:estimateId/customer-estimate", getCustomerEstimateHandler())
	r.PUT("/estimates/:estimateId/customer-estimate", saveCustomerEstimateHandler())
	r.POST("/estimates/:estimateId/customer-estimate/build", buildCustomerEstimateHandler())
	r.POST("/estimates/:estimateId/purchase-orders", createPurchaseOrderHandler())
	r.POST("/estimates/:estimateId/work-orders", createWorkOrderHandler())
	r.GET("/assemblies", listAssembliesHandler())
	r.POST("/assemblies", createAssemblyHandler())
	r.GET("/assemblies/:id", getAssemblyHandler())
	r.GET("/bundles", listBundlesHandler())
	r.POST("/bundles/recommend", recommendBundlesHandler())
	r.POST("/formula/preview", previewQuantityHandler())
	r.POST("/customers", createCustomerHandler())
	r.GET("/customers/:id", getCustomerHandler())
	r.NoRoute(customNotFoundHandler)

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		// ListenAndServe returns http.ErrServerClosed on graceful shutdown.
		serverErrCh <- srv.ListenAndServe()
	}()

	// Connect dependencies after the port is open.
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	// AutoMigrate can run DDL that blocks tables; allow running migrations as a
	// separate job instead.
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		if err := models.MigrateAll(db); err != nil {
			logger.WithFields(logrus.Fields{"field": "migrations"}).Error("migration failed: " + err.Error())
		}
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	logger.WithFields(logrus.Fields{
		"info": "Connection Established",
	}).Info("estimating API listening on port ", port)
	log.Println("Server started successfully")

	select {
	case <-sigCtx.Done():
		// graceful shutdown below
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}
