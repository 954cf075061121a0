package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"stocksim/internal/market"
	"stocksim/internal/portfolio"
	"stocksim/internal/sim"
	"stocksim/internal/visual"
)

func (s *Server) handleFetch(c *gin.Context) {
	var req struct {
		Source  string `json:"source"`
		Symbol  string `json:"symbol" binding:"required"`
		StartTS int64  `json:"start_ts" binding:"required"`
		EndTS   int64  `json:"end_ts" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	job, err := s.market.SubmitFetch(market.FetchParams{
		Source: req.Source,
		Symbol: req.Symbol,
		Start:  req.StartTS,
		End:    req.EndTS,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job": job})
}

func (s *Server) handleFetchStatus(c *gin.Context) {
	job, ok := s.market.JobSnapshot(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"job": job})
}

func (s *Server) handleJobs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"jobs": s.market.JobsSnapshot()})
}

func (s *Server) handleManifest(c *gin.Context) {
	symbol := c.Query("symbol")
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol 必填"})
		return
	}
	info, err := s.market.ManifestInfo(c.Request.Context(), symbol)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"manifest": info})
}

func (s *Server) handleBars(c *gin.Context) {
	symbol := c.Query("symbol")
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol 必填"})
		return
	}
	start, _ := strconv.ParseInt(c.Query("start_ts"), 10, 64)
	end, _ := strconv.ParseInt(c.Query("end_ts"), 10, 64)
	bars, err := s.market.RangeBars(c.Request.Context(), symbol, start, end)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"bars": bars})
}

func (s *Server) handleQuote(c *gin.Context) {
	if s.proxy == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "行情代理未启用"})
		return
	}
	raw, err := s.proxy.Quote(c.Request.Context(), c.Query("symbol"))
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "application/json", raw)
}

func (s *Server) handleNews(c *gin.Context) {
	if s.proxy == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "行情代理未启用"})
		return
	}
	to := c.DefaultQuery("to", time.Now().UTC().Format("2006-01-02"))
	from := c.DefaultQuery("from", time.Now().UTC().AddDate(0, 0, -7).Format("2006-01-02"))
	raw, err := s.proxy.News(c.Request.Context(), c.Query("symbol"), from, to)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "application/json", raw)
}

func (s *Server) handleRunStart(c *gin.Context) {
	if s.sim == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "模拟器未启用"})
		return
	}
	var req sim.RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	run, err := s.sim.StartRun(req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"run": run})
}

func (s *Server) handleRunList(c *gin.Context) {
	if s.results == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "结果存储未启用"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	runs, err := s.results.ListRuns(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (s *Server) handleRunDetail(c *gin.Context) {
	if s.results == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "结果存储未启用"})
		return
	}
	run, err := s.results.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"run": run})
}

func (s *Server) handleRunRows(c *gin.Context) {
	if s.results == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "结果存储未启用"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "2000"))
	rows, err := s.results.ListRows(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"rows": rows})
}

func (s *Server) handleRunTranscripts(c *gin.Context) {
	if s.results == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "结果存储未启用"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "200"))
	trs, err := s.results.ListTranscripts(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"transcripts": trs})
}

func (s *Server) handleRunReport(c *gin.Context) {
	if s.results == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "结果存储未启用"})
		return
	}
	run, err := s.results.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if run.Status != sim.RunStatusDone {
		c.JSON(http.StatusConflict, gin.H{"error": "run 尚未完成", "status": run.Status})
		return
	}
	c.String(http.StatusOK, sim.Summary(run.Config, run.Stats))
}

func (s *Server) handleRunChart(c *gin.Context) {
	if s.results == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "结果存储未启用"})
		return
	}
	run, err := s.results.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	rows, err := s.results.ListRows(c.Request.Context(), run.ID, 0)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if len(rows) == 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "run 还没有流水"})
		return
	}
	bars, err := s.market.RangeBars(c.Request.Context(), run.Symbol, run.StartTS, run.EndTS)
	if err != nil {
		bars = nil
	}
	html, err := visual.RenderRunHTML(visual.RunChartInput{
		Context: c.Request.Context(),
		RunID:   run.ID,
		Symbol:  run.Symbol,
		Label:   run.Strategy,
		Bars:    bars,
		Rows:    rows,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", html)
}

// handleRunChartExport 把图表落盘（HTML，可选 PNG 截图），返回文件路径。
func (s *Server) handleRunChartExport(c *gin.Context) {
	if s.results == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "结果存储未启用"})
		return
	}
	run, err := s.results.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	rows, err := s.results.ListRows(c.Request.Context(), run.ID, 0)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if len(rows) == 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "run 还没有流水"})
		return
	}
	bars, err := s.market.RangeBars(c.Request.Context(), run.Symbol, run.StartTS, run.EndTS)
	if err != nil {
		bars = nil
	}
	path, err := visual.SaveRunChart(visual.RunChartInput{
		Context: c.Request.Context(),
		RunID:   run.ID,
		Symbol:  run.Symbol,
		Label:   run.Strategy,
		Bars:    bars,
		Rows:    rows,
	}, s.chartDir, s.chartSnapshot)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"path": path})
}

func (s *Server) handlePortfolio(c *gin.Context) {
	if s.portfolio == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "组合服务未启用"})
		return
	}
	acc, err := s.portfolio.EnsureAccount(c.Request.Context(), s.portfolioCash)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"account": acc})
}

func (s *Server) handlePortfolioTrade(c *gin.Context) {
	if s.portfolio == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "组合服务未启用"})
		return
	}
	var req portfolio.TradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, err := s.portfolio.EnsureAccount(c.Request.Context(), s.portfolioCash); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	acc, trade, err := s.portfolio.Trade(c.Request.Context(), req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"account": acc, "trade": trade})
}

func (s *Server) handlePortfolioHistory(c *gin.Context) {
	if s.portfolio == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "组合服务未启用"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	trades, err := s.portfolio.History(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades})
}

func (s *Server) handlePortfolioReset(c *gin.Context) {
	if s.portfolio == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "组合服务未启用"})
		return
	}
	var req struct {
		InitialCash float64 `json:"initial_cash"`
	}
	_ = c.ShouldBindJSON(&req)
	if req.InitialCash <= 0 {
		req.InitialCash = s.portfolioCash
	}
	if _, err := s.portfolio.EnsureAccount(c.Request.Context(), s.portfolioCash); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	acc, err := s.portfolio.Reset(c.Request.Context(), req.InitialCash)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"account": acc})
}
