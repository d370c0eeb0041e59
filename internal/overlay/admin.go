package overlay

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/treeline-net/treeline/internal/auth"
	"github.com/treeline-net/treeline/internal/observability"
)

// StatusView is the admin JSON snapshot shared by root and peer nodes.
type StatusView struct {
	Node       string   `json:"node"`
	Role       string   `json:"role"`
	Address    string   `json:"address"`
	Registered bool     `json:"registered"`
	Parent     string   `json:"parent,omitempty"`
	Links      []string `json:"links"`
	Peers      int      `json:"peers"`
	Uptime     string   `json:"uptime"`
	Messages   uint64   `json:"messages"`
}

// adminBackend is the controller surface the admin routes read from.
type adminBackend interface {
	NodeName() string
	Status() StatusView
	RecentMessages(limit int) []MessageRecord
	Broadcast(text string) error
}

func newAdminRouter(backend adminBackend, token string) *gin.Engine {
	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestObserver(backend.NodeName(), log.Logger))
	r.Use(cors.New(cors.Config{
		AllowOrigins: []string{"http://localhost:3000"},
		AllowMethods: []string{"GET", "POST"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	r.GET("/health", func(c *gin.Context) {
		st := backend.Status()
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"node":   st.Node,
			"role":   st.Role,
			"uptime": st.Uptime,
		})
	})

	// Health and metrics stay open; the control routes take the gate.
	guarded := r.Group("/")
	if token != "" {
		guarded.Use(requireToken(auth.StaticToken{Token: token}))
	}

	guarded.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, backend.Status())
	})

	guarded.GET("/messages", func(c *gin.Context) {
		limit := 0
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
				return
			}
			limit = n
		}
		c.JSON(http.StatusOK, gin.H{"messages": backend.RecentMessages(limit)})
	})

	guarded.POST("/messages", func(c *gin.Context) {
		var req struct {
			Text string `json:"text"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := backend.Broadcast(req.Text); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func requireToken(v auth.Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := v.Validate(auth.FromBearer(c.GetHeader("Authorization"))); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

// serveAdmin exposes the admin routes until ctx is done. An empty addr is
// rejected by net.Listen; callers gate on the config themselves.
func serveAdmin(ctx context.Context, addr, token string, backend adminBackend) error {
	ln, err := net.Listen("tcp", strings.TrimSpace(addr))
	if err != nil {
		return err
	}
	defer ln.Close()
	log.Info().
		Str("node", backend.NodeName()).
		Str("addr", ln.Addr().String()).
		Bool("guarded", token != "").
		Msg("admin listening")

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	if err := http.Serve(ln, newAdminRouter(backend, token)); err != nil {
		if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
			return nil
		}
		return err
	}
	return nil
}
