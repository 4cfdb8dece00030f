package httptransport

import (
	"context"
	"net/http"
	"time"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	jwtpkg "github.com/EfG-Haigerseelbach/ct-plesk-email/internal/auth/jwt"
	"github.com/EfG-Haigerseelbach/ct-plesk-email/internal/cache"
	"github.com/EfG-Haigerseelbach/ct-plesk-email/internal/domain"
	"github.com/EfG-Haigerseelbach/ct-plesk-email/internal/health"
	"github.com/EfG-Haigerseelbach/ct-plesk-email/internal/middleware"
	"github.com/EfG-Haigerseelbach/ct-plesk-email/internal/monitoring"
)

// maxBodyBytes 请求体大小上限
const maxBodyBytes = 64 * 1024

// RunService 对账记录与手动触发
type RunService interface {
	Run(ctx context.Context, trigger domain.RunTrigger) (*domain.RunRecord, error)
	Get(ctx context.Context, id string) (*domain.RunRecord, error)
	Latest(ctx context.Context) (*domain.RunRecord, error)
	List(ctx context.Context, limit int) ([]domain.RunRecord, error)
}

// GovernedLister 列出受管邮箱
type GovernedLister interface {
	GovernedMailboxes(ctx context.Context) ([]domain.InventoryEntity, error)
}

// GovernedRemover 删除受管邮箱
type GovernedRemover interface {
	RemoveGoverned(ctx context.Context, address string) error
}

// RouterDependencies 路由器依赖项
type RouterDependencies struct {
	AllowedOrigins []string
	Runs           RunService
	Inventory      GovernedLister
	Remover        GovernedRemover
	JWTManager     *jwtpkg.Manager
	Metrics        *monitoring.Metrics
	Health         *health.HealthChecker
	GovernedCache  *cache.LocalCache[[]domain.InventoryEntity]
	RunTimeout     time.Duration
	Logger         *zap.Logger
}

// NewRouter 创建并返回 Gin 路由实例。
func NewRouter(deps RouterDependencies) *gin.Engine {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Metrics == nil {
		deps.Metrics = monitoring.NewMetrics()
	}
	if deps.Health == nil {
		deps.Health = health.NewHealthChecker(deps.Logger)
	}

	router := gin.New()
	mm := middleware.NewMonitoringMiddleware(deps.Metrics, deps.Logger)

	router.Use(mm.PanicRecovery())
	router.Use(middleware.RequestLogger(deps.Logger.Named("http")))
	router.Use(mm.HTTPMetrics())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.RequestSizeLimit(maxBodyBytes))
	router.Use(gincors.New(corsConfig(deps.AllowedOrigins)))

	router.GET("/metrics", gin.WrapH(deps.Metrics.HTTPHandler()))
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, deps.Health.CheckHealth())
	})
	router.GET("/health/live", gin.WrapF(deps.Health.LiveEndpoint))
	router.GET("/health/ready", gin.WrapF(deps.Health.ReadyEndpoint))

	h := &Handler{
		runs:       deps.Runs,
		inventory:  deps.Inventory,
		remover:    deps.Remover,
		governed:   deps.GovernedCache,
		runTimeout: deps.RunTimeout,
		logger:     deps.Logger.Named("api"),
	}
	jwtAuth := middleware.NewJWTAuth(deps.JWTManager, deps.Logger)

	v1 := router.Group("/api/v1")
	{
		runs := v1.Group("/runs")
		{
			runs.GET("", h.listRuns)
			runs.GET("/latest", h.latestRun)
			runs.GET("/:id", h.getRun)
		}

		v1.GET("/mailboxes/governed", h.listGoverned)

		// 需要操作员令牌的端点
		operator := v1.Group("", jwtAuth.RequireAuth())
		{
			operator.POST("/reconcile", h.reconcile)
			operator.DELETE("/mailboxes/:address", h.removeGoverned)
		}
	}

	return router
}

func corsConfig(origins []string) gincors.Config {
	cfg := gincors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowOrigins = []string{"*"}
	}
	// 如果允许所有来源，则需清空凭证支持。
	for _, origin := range cfg.AllowOrigins {
		if origin == "*" {
			cfg.AllowOrigins = nil
			cfg.AllowAllOrigins = true
			cfg.AllowCredentials = false
			break
		}
	}
	return cfg
}
