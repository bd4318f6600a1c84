package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
)

// NewServer creates a new HTTP server with all routes configured
func NewServer(handler *Handler, apiAccessKey string) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Formatter: func(param gin.LogFormatterParams) string {
			return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
				param.ClientIP,
				param.TimeStamp.Format(time.RFC3339),
				param.Method,
				param.Path,
				param.Request.Proto,
				param.StatusCode,
				param.Latency,
				param.Request.UserAgent(),
				param.ErrorMessage,
			)
		},
		SkipPaths: []string{"/health"},
	}))

	r.Use(gin.Recovery())

	r.Use(gzip.Gzip(gzip.DefaultCompression))

	r.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", "X-API-Key"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}))

	setupRoutes(r, handler, apiAccessKey)

	return r
}

func setupRoutes(r *gin.Engine, handler *Handler, apiAccessKey string) {
	r.GET("/health", handler.GetHealth)

	if apiAccessKey != "" {
		api := r.Group("/api")
		api.Use(authMiddleware(apiAccessKey))
		{
			api.GET("/podcasts", handler.ListPodcasts)
			api.POST("/podcasts", handler.CreatePodcast)
			api.GET("/podcasts/:id", handler.GetPodcast)
			api.DELETE("/podcasts/:id", handler.DeletePodcast)
			api.POST("/podcasts/:id/refresh", handler.RefreshPodcast)
			api.POST("/podcasts/:id/analyze", handler.AnalyzePodcast)
			api.GET("/podcasts/:id/episodes", handler.ListEpisodes)
			api.GET("/podcasts/:id/art-updates", handler.ListArtUpdates)

			api.GET("/people", handler.ListPeople)
			api.GET("/people/:id", handler.GetPerson)
			api.POST("/people/:id/merge", handler.MergePerson)

			api.GET("/groups", handler.ListGroups)
			api.POST("/groups", handler.CreateGroup)
			api.GET("/groups/:id", handler.GetGroup)
			api.POST("/groups/:id/members", handler.AddGroupMembers)
		}
		slog.Info("API endpoints enabled with authentication")
	} else {
		slog.Warn("API endpoints disabled (API_ACCESS_KEY not set)")
	}

	r.GET("/", func(c *gin.Context) {
		endpoints := map[string]string{
			"health": "/health",
		}

		if apiAccessKey != "" {
			endpoints["podcasts"] = "/api/podcasts (requires X-API-Key header)"
			endpoints["podcast"] = "/api/podcasts/<id> (requires X-API-Key header)"
			endpoints["refresh"] = "/api/podcasts/<id>/refresh (POST, requires X-API-Key header)"
			endpoints["analyze"] = "/api/podcasts/<id>/analyze (POST, requires X-API-Key header)"
			endpoints["people"] = "/api/people (requires X-API-Key header)"
			endpoints["groups"] = "/api/groups (requires X-API-Key header)"
		}

		c.JSON(http.StatusOK, gin.H{
			"service":     "Podcast Analyzer",
			"description": "Podcast feed ingestion and analysis",
			"endpoints":   endpoints,
			"api_status": gin.H{
				"enabled":       apiAccessKey != "",
				"auth_required": apiAccessKey != "",
				"header":        "X-API-Key",
			},
		})
	})

	r.GET("/favicon.ico", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
}

// authMiddleware accepts the key in X-API-Key or as a Bearer token.
func authMiddleware(apiAccessKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		providedKey := c.GetHeader("X-API-Key")

		if providedKey == "" {
			authHeader := c.GetHeader("Authorization")
			if strings.HasPrefix(authHeader, "Bearer ") {
				providedKey = strings.TrimPrefix(authHeader, "Bearer ")
			}
		}

		if providedKey == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "API key required",
				"message": "Provide API key in X-API-Key header or Authorization: Bearer <key>",
			})
			c.Abort()
			return
		}

		if providedKey != apiAccessKey {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "Invalid API key",
				"message": "The provided API key is not valid",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
