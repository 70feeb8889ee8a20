package api

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Danijel-Enoch/OctoBot-Trading/internal/events"
	"github.com/Danijel-Enoch/OctoBot-Trading/internal/exchange"
	"github.com/Danijel-Enoch/OctoBot-Trading/internal/monitor"
	"github.com/Danijel-Enoch/OctoBot-Trading/internal/order"
	"github.com/Danijel-Enoch/OctoBot-Trading/pkg/db"
	"github.com/Danijel-Enoch/OctoBot-Trading/pkg/exchanges/common"
)

// Config wires a Server. Metrics may be nil; RateLimit and RateBurst fall
// back to defaults when unset.
type Config struct {
	Managers  map[string]*exchange.Manager
	Registry  *events.Registry
	DB        *db.Database
	JWTSecret string
	Metrics   *monitor.Metrics
	RateLimit float64 // per-IP requests per second
	RateBurst int
}

// Server exposes the per-account trading core over HTTP and websocket.
type Server struct {
	Router    *gin.Engine
	Managers  map[string]*exchange.Manager
	Registry  *events.Registry
	DB        *db.Database
	JWTSecret string
}

func NewServer(cfg Config) *Server {
	r := gin.New()

	// Middleware stack (order matters!)
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLogger(cfg.Metrics))
	r.Use(newRateLimiters(cfg.RateLimit, cfg.RateBurst).middleware())
	r.Use(CORSMiddleware())

	s := &Server{
		Router:    r,
		Managers:  cfg.Managers,
		Registry:  cfg.Registry,
		DB:        cfg.DB,
		JWTSecret: cfg.JWTSecret,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)
	s.Router.GET("/api/health", s.health)
	s.Router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.Router.GET("/ws/:account", s.websocket)

	api := s.Router.Group("/api")
	api.Use(AuthMiddleware(s.JWTSecret))
	{
		api.GET("/accounts", s.listAccounts)

		acct := api.Group("/accounts/:account")
		{
			acct.GET("/orders", s.getOpenOrders)
			acct.GET("/orders/closed", s.getClosedOrders)
			acct.GET("/orders/:id", s.getOrder)
			acct.POST("/orders", s.createOrder)
			acct.DELETE("/orders/:id", s.cancelOrder)
			acct.POST("/groups", s.createGroup)
			acct.GET("/groups/:id", s.getGroup)
			acct.GET("/portfolio", s.getPortfolio)
			acct.GET("/positions", s.getPositions)
			acct.GET("/trades", s.getTrades)
		}
	}
}

func (s *Server) manager(c *gin.Context) (*exchange.Manager, bool) {
	m, ok := s.Managers[c.Param("account")]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"code":  "UNKNOWN_ACCOUNT",
			"error": "no such account",
		})
		return nil, false
	}
	return m, true
}

func (s *Server) health(c *gin.Context) {
	accounts := gin.H{}
	for name, m := range s.Managers {
		accounts[name] = gin.H{
			"degraded":    m.Degraded(),
			"out_of_sync": m.Portfolio.OutOfSync(),
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "accounts": accounts})
}

func (s *Server) listAccounts(c *gin.Context) {
	names := make([]string, 0, len(s.Managers))
	for name := range s.Managers {
		names = append(names, name)
	}
	sort.Strings(names)
	c.JSON(http.StatusOK, gin.H{"accounts": names})
}

func (s *Server) getOpenOrders(c *gin.Context) {
	m, ok := s.manager(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": m.Orders.ListOpen()})
}

func (s *Server) getClosedOrders(c *gin.Context) {
	m, ok := s.manager(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": m.Orders.ListClosed()})
}

func (s *Server) getOrder(c *gin.Context) {
	m, ok := s.manager(c)
	if !ok {
		return
	}
	o, found := m.Orders.Get(c.Param("id"))
	if !found {
		c.JSON(http.StatusNotFound, gin.H{
			"code":  "ORDER_NOT_FOUND",
			"error": "no such order",
		})
		return
	}
	c.JSON(http.StatusOK, o)
}

type createOrderRequest struct {
	Symbol      string  `json:"symbol"`
	Side        string  `json:"side"`
	Type        string  `json:"type"`
	Qty         float64 `json:"qty"`
	Price       float64 `json:"price"`
	StopPrice   float64 `json:"stop_price"`
	TimeInForce string  `json:"time_in_force"`
	GroupID     string  `json:"group_id"`
}

func (s *Server) createOrder(c *gin.Context) {
	m, ok := s.manager(c)
	if !ok {
		return
	}

	var req createOrderRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":  "INVALID_PAYLOAD",
			"error": "invalid request payload",
		})
		return
	}

	o, err := m.SubmitOrder(c.Request.Context(), order.Request{
		Symbol:      req.Symbol,
		Side:        common.Side(req.Side),
		Type:        common.OrderType(req.Type),
		Qty:         req.Qty,
		Price:       req.Price,
		StopPrice:   req.StopPrice,
		TimeInForce: common.TimeInForce(req.TimeInForce),
		GroupID:     req.GroupID,
	})
	if err != nil {
		s.orderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, o)
}

func (s *Server) cancelOrder(c *gin.Context) {
	m, ok := s.manager(c)
	if !ok {
		return
	}
	if err := m.CancelOrder(c.Request.Context(), c.Param("id")); err != nil {
		s.orderError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "cancel requested"})
}

// orderError maps core error sentinels onto HTTP statuses.
func (s *Server) orderError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, order.ErrInvalidRequest), errors.Is(err, order.ErrUnknownGroup):
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_ORDER", "error": err.Error()})
	case errors.Is(err, order.ErrNotFound), errors.Is(err, common.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"code": "ORDER_NOT_FOUND", "error": err.Error()})
	case errors.Is(err, order.ErrAlreadyTerminal), errors.Is(err, common.ErrAlreadyTerminal):
		c.JSON(http.StatusConflict, gin.H{"code": "ORDER_TERMINAL", "error": err.Error()})
	case errors.Is(err, common.ErrRejectedByExchange):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"code": "EXCHANGE_REJECTED", "error": err.Error()})
	case errors.Is(err, common.ErrUnreachable):
		c.JSON(http.StatusBadGateway, gin.H{"code": "EXCHANGE_UNREACHABLE", "error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"code": "INTERNAL_ERROR", "error": err.Error()})
	}
}

func (s *Server) createGroup(c *gin.Context) {
	m, ok := s.manager(c)
	if !ok {
		return
	}
	var req struct {
		Rule string `json:"rule"`
	}
	if err := c.BindJSON(&req); err != nil || order.GroupRule(req.Rule) != order.GroupRuleCancelOnFill {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":  "INVALID_GROUP_RULE",
			"error": "unsupported group rule",
		})
		return
	}
	id := m.Orders.CreateGroup(order.GroupRule(req.Rule))
	c.JSON(http.StatusCreated, gin.H{"group_id": id})
}

func (s *Server) getGroup(c *gin.Context) {
	m, ok := s.manager(c)
	if !ok {
		return
	}
	g, found := m.Orders.GetGroup(c.Param("id"))
	if !found {
		c.JSON(http.StatusNotFound, gin.H{
			"code":  "GROUP_NOT_FOUND",
			"error": "no such group",
		})
		return
	}
	c.JSON(http.StatusOK, g)
}

func (s *Server) getPortfolio(c *gin.Context) {
	m, ok := s.manager(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, m.Portfolio.Portfolio())
}

func (s *Server) getPositions(c *gin.Context) {
	m, ok := s.manager(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"positions": m.Portfolio.Positions()})
}

func (s *Server) getTrades(c *gin.Context) {
	if _, ok := s.manager(c); !ok {
		return
	}
	if s.DB == nil {
		c.JSON(http.StatusOK, gin.H{"trades": []db.Trade{}})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()
	trades, err := s.DB.ListTrades(ctx, c.Param("account"), 200)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": "INTERNAL_ERROR", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades})
}

func (s *Server) Start(addr string) error {
	return s.Router.Run(addr)
}
