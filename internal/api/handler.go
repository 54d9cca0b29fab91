package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"ncstreamer/config"
	"ncstreamer/internal/transport/ws"
)

// Remote is the part of the remote control server the router needs.
type Remote interface {
	http.Handler
	State() ws.State
}

type Handler struct {
	Remote Remote
	Cfg    *config.Config
	log    *zap.Logger
}

func NewHandler(remote Remote, cfg *config.Config, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{Remote: remote, Cfg: cfg, log: log}
}

// NewRouter builds the HTTP surface served by the remote control listener.
func NewRouter(h *Handler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), h.accessLog())
	h.SetupRoutes(r)
	return r
}

func (h *Handler) SetupRoutes(r *gin.Engine) {
	r.GET("/healthz", h.Health)
	r.GET("/readyz", h.Ready)
	if h.Cfg.Metrics.Enable {
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	// Controllers may dial the bare host:port; both paths reach the same endpoint.
	remote := gin.WrapH(h.Remote)
	r.GET("/", h.AuthMiddleware(), remote)
	wsGroup := r.Group("/ws")
	wsGroup.Use(h.AuthMiddleware())
	wsGroup.GET("", remote)
}

// AuthMiddleware accepts the token from the Authorization header, with or
// without a Bearer prefix, or from the token query parameter.
func (h *Handler) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !h.Cfg.Auth.Enable {
			c.Next()
			return
		}
		token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if token == "" {
			token = c.Query("token")
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(h.Cfg.Auth.Token)) != 1 {
			h.log.Warn("rejected controller", zap.String("remote", c.ClientIP()))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) Ready(c *gin.Context) {
	st := h.Remote.State()
	code := http.StatusOK
	if st != ws.StateRunning {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{"state": st.String()})
}

func (h *Handler) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		h.log.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("took", time.Since(start)))
	}
}
