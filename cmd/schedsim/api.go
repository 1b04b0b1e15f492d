package main

import (
	"errors"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/edirooss/mcukern/internal/hw/virtchip"
	"github.com/edirooss/mcukern/internal/kern"
	"github.com/edirooss/mcukern/internal/proc"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Custom Gin middleware that logs using Zap
func ZapLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		latency := time.Since(start)
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}

		// collect all errors from Gin context
		var errs []error
		for _, ge := range c.Errors {
			if ge.Err != nil {
				errs = append(errs, ge.Err)
			}
		}
		// errors.Join returns nil if errs is empty
		joinedErr := errors.Join(errs...)

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Duration("latency", latency),
		}
		if joinedErr != nil {
			fields = append(fields, zap.Error(joinedErr))
		}

		switch {
		case status >= 500:
			log.Error("request", fields...)
		case status >= 400:
			log.Warn("request", fields...)
		default:
			log.Info("request", fields...)
		}
	}
}

// newDebugServer builds the loopback inspection API: live scheduler state,
// a raw table dump, and interactive interrupt injection.
func newDebugServer(log *zap.Logger, addr string, k *kern.Kernel, table *proc.Table, policy string, chip *virtchip.Chip) *http.Server {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	_ = r.SetTrustedProxies([]string{"127.0.0.1"})
	r.Use(gin.Recovery())

	// CORS (dev only)
	if os.Getenv("ENV") == "dev" {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     []string{"http://localhost:5173"},
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Content-Type"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour, // cache preflight
		}))
	}

	r.Use(ZapLogger(log.Named("http")))

	// Interrupt lines are registered before the server starts; index them
	// once for injection.
	lines := map[string]*virtchip.Line{}
	var lineNames []string
	for _, l := range chip.Lines() {
		lines[l.Name()] = l
		lineNames = append(lineNames, l.Name())
	}

	r.GET("/api/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "pong"})
	})

	r.GET("/api/kernel", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"boot_id":    k.BootID().String(),
			"policy":     policy,
			"virtual_us": chip.NowUS(),
			"blocked":    k.ProcessesBlocked(),
			"irq_lines":  lineNames,
		})
	})

	r.GET("/api/procs", func(c *gin.Context) {
		snaps := table.Snapshots()
		c.Header("X-Total-Count", strconv.Itoa(len(snaps)))
		c.JSON(http.StatusOK, snaps)
	})

	r.POST("/api/irq/:line", func(c *gin.Context) {
		l, ok := lines[c.Param("line")]
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"message": "unknown irq line"})
			return
		}
		l.Assert()
		c.JSON(http.StatusOK, gin.H{"line": l.Name()})
	})

	r.GET("/api/dump", func(c *gin.Context) {
		c.String(http.StatusOK, spew.Sdump(table.Snapshots()))
	})

	return &http.Server{
		Addr:    addr,
		Handler: r, // <- gin.Engine satisfies http.Handler

		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,

		MaxHeaderBytes: 1 << 15, // 32 KB

		// Attach zap's logger
		ErrorLog: zap.NewStdLog(log.Named("http").WithOptions(zap.AddCallerSkip(1))),
	}
}
