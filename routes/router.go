package routes

import (
	"net/http"
	"strings"

	"civicconnect-be/controllers"
	"civicconnect-be/metrics"
	"civicconnect-be/middlewares"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Options configures the router beyond the handler dependencies.
type Options struct {
	CORSOrigin string
	RateLimit  gin.HandlerFunc
}

func corsConfig(origin string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
		ExposeHeaders: []string{"Content-Length", "X-Request-ID"},
	}
	if origin == "" || origin == "*" {
		cfg.AllowAllOrigins = true
		return cfg
	}
	for _, o := range strings.Split(origin, ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.AllowOrigins = append(cfg.AllowOrigins, o)
		}
	}
	cfg.AllowCredentials = true
	return cfg
}

// NewRouter wires middleware and every route onto a fresh engine.
func NewRouter(d *controllers.Deps, m *metrics.Metrics, opts Options) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middlewares.RequestLogger(d.Log, m))
	r.Use(cors.New(corsConfig(opts.CORSOrigin)))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if m != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})))
	}

	limiter := opts.RateLimit
	if limiter == nil {
		limiter = func(c *gin.Context) { c.Next() }
	}

	api := r.Group("/api")
	AuthRoutes(api, d)
	ComplaintRoutes(api, d, limiter)
	EmployeeRoutes(api, d)
	AnalyticsRoutes(api, d)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"message": "Not found"})
	})
	return r
}
