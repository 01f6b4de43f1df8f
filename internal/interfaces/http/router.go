package http

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	nodeUsecases "github.com/vetiver-inc/vetiver/internal/application/node/usecases"
	usageServices "github.com/vetiver-inc/vetiver/internal/application/usage/services"
	usageUsecases "github.com/vetiver-inc/vetiver/internal/application/usage/usecases"
	domainNode "github.com/vetiver-inc/vetiver/internal/domain/node"
	"github.com/vetiver-inc/vetiver/internal/domain/usage"
	"github.com/vetiver-inc/vetiver/internal/infrastructure/cache"
	"github.com/vetiver-inc/vetiver/internal/infrastructure/engine"
	"github.com/vetiver-inc/vetiver/internal/interfaces/http/handlers"
	"github.com/vetiver-inc/vetiver/internal/interfaces/http/middleware"
	"github.com/vetiver-inc/vetiver/internal/shared/logger"
)

// Router wires the read-only ops API: node inventory, master engine
// logs, fleet usage summary, health and metrics.
type Router struct {
	engine        *gin.Engine
	nodeHandler   *handlers.NodeHandler
	usageHandler  *handlers.UsageHandler
	healthHandler *handlers.HealthHandler
	rateLimiter   *middleware.RateLimiter
	logger        logger.Interface
}

// Dependencies carries the already-constructed services the ops API
// reads from. Ledger, Master, Cache and Redis may be nil when the
// matching subsystem is disabled.
type Dependencies struct {
	DB            *gorm.DB
	NodeRepo      domainNode.NodeRepository
	MasterRepo    domainNode.MasterStateRepository
	NodeUsageRepo usage.NodeUsageRepository
	Ledger        *usageServices.Ledger
	Master        *engine.Master
	Cache         *cache.RedisPendingUsageCache
	Redis         *redis.Client
	Logger        logger.Interface
}

// NewRouter creates a new HTTP router with all dependencies
func NewRouter(deps Dependencies) *Router {
	ginEngine := gin.New()
	log := deps.Logger

	getNodeUC := nodeUsecases.NewGetNodeUseCase(deps.NodeRepo, log)

	// Concrete nils must not become non-nil interfaces.
	var pending usageUsecases.PendingCounter
	if deps.Ledger != nil {
		pending = deps.Ledger
	}
	var probe usageUsecases.EngineProbe
	var refVersion nodeUsecases.MasterVersionSource
	if deps.Master != nil {
		probe = deps.Master
		refVersion = deps.Master
	}

	listNodesUC := nodeUsecases.NewListNodesUseCase(deps.NodeRepo, refVersion, log)
	summaryUC := usageUsecases.NewGetUsageSummaryUseCase(
		deps.NodeUsageRepo, deps.NodeRepo, deps.MasterRepo, pending, probe, log)

	nodeHandler := handlers.NewNodeHandler(getNodeUC, listNodesUC, nil, log)
	if deps.Master != nil {
		nodeHandler = handlers.NewNodeHandler(getNodeUC, listNodesUC, deps.Master, log)
	}

	usageHandler := handlers.NewUsageHandler(summaryUC, log)

	healthHandler := handlers.NewHealthHandler(deps.DB, nil, log)
	if deps.Cache != nil {
		healthHandler = handlers.NewHealthHandler(deps.DB, deps.Cache, log)
	}

	var rateLimiter *middleware.RateLimiter
	if deps.Redis != nil {
		rateLimiter = middleware.NewRateLimiter(deps.Redis, 100, 1*time.Minute)
	}

	return &Router{
		engine:        ginEngine,
		nodeHandler:   nodeHandler,
		usageHandler:  usageHandler,
		healthHandler: healthHandler,
		rateLimiter:   rateLimiter,
		logger:        log,
	}
}

// SetupRoutes configures all HTTP routes
func (r *Router) SetupRoutes() {
	r.engine.Use(middleware.Logger(r.logger))
	r.engine.Use(middleware.Recovery())

	r.engine.GET("/healthz", r.healthHandler.Healthz)
	r.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.engine.Group("/api/v1")
	if r.rateLimiter != nil {
		v1.Use(r.rateLimiter.Limit())
	}
	{
		v1.GET("/nodes", r.nodeHandler.ListNodes)
		v1.GET("/nodes/:id", r.nodeHandler.GetNode)
		v1.GET("/nodes/:id/logs", r.nodeHandler.GetNodeLogs)
		v1.GET("/usage/summary", r.usageHandler.GetSummary)
	}
}

// GetEngine returns the Gin engine
func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}

// Run starts the HTTP server
func (r *Router) Run(addr string) error {
	return r.engine.Run(addr)
}
