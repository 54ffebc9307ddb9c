// Package debugapi exposes a Gin HTTP server for observing a running peer
// process — status, known nodes, this node's own ledger, its transaction
// history, and (if it is coordinator) the registry's view of every other
// node's ledger. Every endpoint is read-only except POST /trade, which
// proposes a trade through the node's trade protocol.
//
// This surface is deliberately outside the UDP coordination core: it is
// observability tooling, not a protocol message kind, matching how the
// reference module kept its HTTP API entirely separate from the
// lower-level cluster/replicator internals it exposed.
package debugapi

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"distributed-energy-ledger/internal/orchestrator"
)

// Server is the debug HTTP server for one peer process.
type Server struct {
	node *orchestrator.Node
	srv  *http.Server
}

// New builds a debug server bound to addr, not yet listening.
func New(addr string, node *orchestrator.Node) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(requestLogger(), recovery())

	s := &Server{node: node}

	router.GET("/status", s.handleStatus)
	router.GET("/nodes", s.handleNodes)
	router.GET("/ledger", s.handleLedger)
	router.GET("/history", s.handleHistory)
	router.POST("/trade", s.handleTrade)

	s.srv = &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// ListenAndServe blocks serving HTTP until the server is shut down.
func (s *Server) ListenAndServe() error {
	err := s.srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the HTTP server within ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.node.Status())
}

func (s *Server) handleNodes(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"nodes": s.node.RegistrySnapshot()})
}

func (s *Server) handleLedger(c *gin.Context) {
	c.JSON(http.StatusOK, s.node.LedgerState())
}

func (s *Server) handleHistory(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"transactions": s.node.History()})
}

// handleTrade handles POST /trade, the operator-facing entry point into
// the three-phase trade protocol.
// Body: {"target": "<node id>", "amount": <int>, "type": "buy"|"sell"}
func (s *Server) handleTrade(c *gin.Context) {
	var body struct {
		Target string `json:"target" binding:"required"`
		Amount int    `json:"amount" binding:"required,gt=0"`
		Type   string `json:"type" binding:"required,oneof=buy sell"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.node.ProposeTrade(body.Target, body.Amount, body.Type); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"proposed": true})
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		gin.DefaultWriter.Write([]byte(
			c.Request.Method + " " + c.Request.URL.Path + " " +
				strconv.Itoa(c.Writer.Status()) + " " + time.Since(start).String() + "\n"))
	}
}

func recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			}
		}()
		c.Next()
	}
}
