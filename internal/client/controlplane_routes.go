package client

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"
	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	"github.com/docboxhq/docbox/internal/client/handlers"
	"github.com/docboxhq/docbox/internal/client/middleware"
	"github.com/docboxhq/docbox/internal/client/sync"
	"github.com/docboxhq/docbox/internal/version"
)

type RouteConfig struct {
	Auth middleware.TokenAuthConfig
}

func SetupRoutes(engine *sync.Engine, routeConfig *RouteConfig) http.Handler {
	r := gin.New()
	r.HandleMethodNotAllowed = true

	rateLimitStore := memory.NewStore()
	rateLimiter := limiter.New(rateLimitStore, limiter.Rate{
		Period: 1 * time.Second,
		Limit:  20,
	})

	statusH := handlers.NewStatusHandler(engine)
	docsH := handlers.NewDocumentsHandler(engine)
	syncH := handlers.NewSyncHandler(engine)
	conflictsH := handlers.NewConflictsHandler(engine)
	storageH := handlers.NewStorageHandler(engine)

	r.Use(gin.Recovery())
	r.Use(middleware.CORS())
	r.Use(middleware.Gzip())
	r.Use(middleware.Logger())
	r.Use(mgin.NewMiddleware(rateLimiter))

	r.GET("/", IndexHandler)

	v1 := r.Group("/v1")
	v1.Use(middleware.TokenAuth(routeConfig.Auth))
	{
		v1.GET("/status", statusH.Status)

		v1Docs := v1.Group("/documents")
		{
			v1Docs.GET("", docsH.List)
			v1Docs.POST("", docsH.Create)
			v1Docs.GET("/:id", docsH.Get)
			v1Docs.PATCH("/:id", docsH.Update)
			v1Docs.DELETE("/:id", docsH.Delete)
			v1Docs.GET("/:id/versions", docsH.Versions)
		}

		v1Sync := v1.Group("/sync")
		{
			v1Sync.GET("/pending", syncH.Pending)
			v1Sync.POST("/now", syncH.Now)
		}

		v1Conflicts := v1.Group("/conflicts")
		{
			v1Conflicts.GET("", conflictsH.List)
			v1Conflicts.POST("/:id/resolve", conflictsH.Resolve)
		}

		v1Storage := v1.Group("/storage")
		{
			v1Storage.DELETE("", storageH.Clear)
			v1Storage.GET("/snapshot", storageH.Export)
			v1Storage.PUT("/snapshot", storageH.Import)
		}
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "not found",
		})
	})

	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{
			"error": "method not allowed",
		})
	})

	return r.Handler()
}

func init() {
	gin.SetMode(gin.ReleaseMode)
}

func IndexHandler(c *gin.Context) {
	c.JSON(http.StatusOK, version.Detailed())
}
