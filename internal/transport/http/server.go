package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"stocksim/internal/market"
	"stocksim/internal/portfolio"
	"stocksim/internal/sim"
)

// Server 提供 Gin 接口：行情同步、模拟任务、纸面组合与行情代理。
type Server struct {
	addr      string
	market    *market.Service
	proxy     *market.Proxy
	sim       *sim.Simulator
	results   *sim.ResultStore
	portfolio *portfolio.Service

	portfolioCash float64
	chartDir      string
	chartSnapshot bool

	router *gin.Engine
}

type ServerConfig struct {
	Addr          string
	Market        *market.Service
	Proxy         *market.Proxy
	Simulator     *sim.Simulator
	Results       *sim.ResultStore
	Portfolio     *portfolio.Service
	PortfolioCash float64
	ChartDir      string
	ChartSnapshot bool
}

func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Market == nil {
		return nil, errors.New("market service 不能为空")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9980"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		addr:          cfg.Addr,
		market:        cfg.Market,
		proxy:         cfg.Proxy,
		sim:           cfg.Simulator,
		results:       cfg.Results,
		portfolio:     cfg.Portfolio,
		portfolioCash: cfg.PortfolioCash,
		chartDir:      cfg.ChartDir,
		chartSnapshot: cfg.ChartSnapshot,
		router:        router,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	mkt := s.router.Group("/api/market")
	mkt.POST("/fetch", s.handleFetch)
	mkt.GET("/fetch/:id", s.handleFetchStatus)
	mkt.GET("/jobs", s.handleJobs)
	mkt.GET("/manifest", s.handleManifest)
	mkt.GET("/bars", s.handleBars)
	mkt.GET("/quote", s.handleQuote)
	mkt.GET("/news", s.handleNews)

	api := s.router.Group("/api/sim")
	api.POST("/runs", s.handleRunStart)
	api.GET("/runs", s.handleRunList)
	api.GET("/runs/:id", s.handleRunDetail)
	api.GET("/runs/:id/rows", s.handleRunRows)
	api.GET("/runs/:id/transcripts", s.handleRunTranscripts)
	api.GET("/runs/:id/report", s.handleRunReport)
	api.GET("/runs/:id/chart", s.handleRunChart)
	api.POST("/runs/:id/chart/export", s.handleRunChartExport)

	pf := s.router.Group("/api/portfolio")
	pf.GET("", s.handlePortfolio)
	pf.POST("/trades", s.handlePortfolioTrade)
	pf.GET("/trades", s.handlePortfolioHistory)
	pf.POST("/reset", s.handlePortfolioReset)
}

// Start 阻塞运行直到 ctx 结束。
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}

// Router 暴露底层 router，供测试使用。
func (s *Server) Router() *gin.Engine { return s.router }
