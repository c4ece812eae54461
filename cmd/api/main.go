package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/SirClappington/brochure-backend/internal/app"
	"github.com/SirClappington/brochure-backend/internal/config"
	apierrors "github.com/SirClappington/brochure-backend/internal/errors"
	"github.com/SirClappington/brochure-backend/internal/logger"
	"github.com/SirClappington/brochure-backend/internal/services"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type brochureRequest struct {
	Name string `json:"name" binding:"required"`
	URL  string `json:"url" binding:"required"`
}

type linksRequest struct {
	URL string `json:"url" binding:"required"`
}

func handleError(c *gin.Context, err error) {
	if apiErr, ok := apierrors.As(err); ok {
		c.JSON(apiErr.Status(), apiErr)
		return
	}

	// Handle unknown errors
	c.JSON(http.StatusInternalServerError, apierrors.NewInternalError(err))
}

func bindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, apierrors.NewValidationError(err.Error()))
}

func setupRouter(svc *services.BrochureService, logger *zap.Logger) *gin.Engine {
	r := gin.Default()

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.POST("/brochures", func(c *gin.Context) {
		var request brochureRequest
		if err := c.ShouldBindJSON(&request); err != nil {
			bindError(c, err)
			return
		}

		brochure, err := svc.Generate(c.Request.Context(), request.Name, request.URL)
		if err != nil {
			handleError(c, err)
			return
		}

		c.JSON(http.StatusOK, brochure)
	})

	r.POST("/brochures/stream", func(c *gin.Context) {
		var request brochureRequest
		if err := c.ShouldBindJSON(&request); err != nil {
			bindError(c, err)
			return
		}
		if err := services.ValidateRequest(request.Name, request.URL); err != nil {
			handleError(c, err)
			return
		}

		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")

		ctx := c.Request.Context()
		brochure, err := svc.Stream(ctx, request.Name, request.URL, func(chunk string) error {
			c.SSEvent("chunk", chunk)
			c.Writer.Flush()
			return ctx.Err()
		})
		if err != nil {
			logger.Warn("Brochure stream failed", zap.String("company", request.Name), zap.Error(err))
			apiErr, ok := apierrors.As(err)
			if !ok {
				apiErr = apierrors.NewInternalError(err)
			}
			c.SSEvent("error", apiErr)
			c.Writer.Flush()
			return
		}

		c.SSEvent("done", gin.H{"id": brochure.ID, "company": brochure.Company})
		c.Writer.Flush()
	})

	r.GET("/brochures", func(c *gin.Context) {
		companies, err := svc.ListBrochures(c.Request.Context())
		if err != nil {
			handleError(c, err)
			return
		}
		if companies == nil {
			companies = []string{}
		}

		c.JSON(http.StatusOK, gin.H{"companies": companies})
	})

	r.GET("/brochures/:company", func(c *gin.Context) {
		brochure, err := svc.GetBrochure(c.Request.Context(), c.Param("company"))
		if err != nil {
			handleError(c, err)
			return
		}

		c.JSON(http.StatusOK, brochure)
	})

	r.POST("/links", func(c *gin.Context) {
		var request linksRequest
		if err := c.ShouldBindJSON(&request); err != nil {
			bindError(c, err)
			return
		}

		links, err := svc.SelectLinks(c.Request.Context(), request.URL)
		if err != nil {
			handleError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"links": links})
	})

	r.POST("/contact", func(c *gin.Context) {
		var request brochureRequest
		if err := c.ShouldBindJSON(&request); err != nil {
			bindError(c, err)
			return
		}

		contact, err := svc.LookupContact(c.Request.Context(), request.Name, request.URL)
		if err != nil {
			handleError(c, err)
			return
		}

		c.JSON(http.StatusOK, contact)
	})

	return r
}

func main() {
	if err := config.LoadDotEnv(); err != nil {
		log.Printf("Failed to load .env file: %v", err)
	}

	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zl, err := logger.New(cfg.Logging.Level, false)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zl.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, zl)
	if err != nil {
		zl.Fatal("Failed to initialize services", zap.Error(err))
	}
	defer a.Close()

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: setupRouter(a.Brochures, zl),
	}

	go func() {
		zl.Info("Listening", zap.String("addr", srv.Addr), zap.String("model", cfg.LLM.Model))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Fatal("Server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zl.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zl.Error("Graceful shutdown failed", zap.Error(err))
	}
}
