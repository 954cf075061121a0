package visual

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"

	"stocksim/internal/market"
	"stocksim/internal/sim"
)

// 中文说明：
// 模拟结果可视化：上方日线 K 线，下方资金曲线与逐日盈亏，渲染为 HTML，
// 可选通过 headless Chrome 截成 PNG。

type ImageResult struct {
	Bytes    []byte `json:"-"`
	Base64   string `json:"base64"`
	Filename string `json:"filename"`
}

func (r *ImageResult) DataURI() string {
	if r == nil {
		return ""
	}
	if r.Base64 == "" && len(r.Bytes) > 0 {
		r.Base64 = base64.StdEncoding.EncodeToString(r.Bytes)
	}
	if r.Base64 == "" {
		return ""
	}
	return "data:image/png;base64," + r.Base64
}

type RunChartInput struct {
	Context context.Context
	RunID   string
	Symbol  string
	Label   string
	Bars    []market.Bar
	Rows    []sim.LogRow
}

const (
	colorBackground    = "#060c1b"
	colorTextPrimary   = "#eceff4"
	colorTextSecondary = "#9ca3af"
	colorBull          = "#34d399"
	colorBear          = "#f87171"
	colorEquity        = "#3b82f6"

	chartWidthPx   = 1400
	klineHeightPx  = 480
	equityHeightPx = 360
	pnlHeightPx    = 240
)

// RenderRunHTML 生成完整的结果页面 HTML。
func RenderRunHTML(input RunChartInput) ([]byte, error) {
	if input.Symbol == "" {
		return nil, fmt.Errorf("symbol required for run chart")
	}
	if len(input.Rows) == 0 {
		return nil, fmt.Errorf("no rows to render for %s", input.Symbol)
	}
	page := components.NewPage()
	page.SetLayout(components.PageFlexLayout)

	xAxis := make([]string, len(input.Rows))
	for i, row := range input.Rows {
		xAxis[i] = row.Date
	}

	if len(input.Bars) > 0 {
		page.AddCharts(buildKline(input, xAxis))
	}
	page.AddCharts(buildEquityLine(input, xAxis), buildPnLBar(input, xAxis))

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// RenderRunPNG 渲染 HTML 并截成 PNG。
func RenderRunPNG(input RunChartInput) (ImageResult, error) {
	if err := EnsureHeadlessAvailable(input.Context); err != nil {
		return ImageResult{}, err
	}
	html, err := RenderRunHTML(input)
	if err != nil {
		return ImageResult{}, err
	}
	height := klineHeightPx + equityHeightPx + pnlHeightPx + 120
	png, err := renderHTMLToPNG(input.Context, html, chartWidthPx, height)
	if err != nil {
		return ImageResult{}, err
	}
	return ImageResult{
		Bytes:    png,
		Base64:   base64.StdEncoding.EncodeToString(png),
		Filename: fmt.Sprintf("%s_run.png", strings.ToLower(input.Symbol)),
	}, nil
}

// SaveRunChart 把 HTML（以及可选的 PNG）写入输出目录，返回 HTML 路径。
func SaveRunChart(input RunChartInput, outputDir string, snapshot bool) (string, error) {
	if outputDir == "" {
		outputDir = "data/charts"
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", err
	}
	html, err := RenderRunHTML(input)
	if err != nil {
		return "", err
	}
	base := fmt.Sprintf("%s_%s", strings.ToLower(input.Symbol), input.RunID)
	htmlPath := filepath.Join(outputDir, base+".html")
	if err := os.WriteFile(htmlPath, html, 0o644); err != nil {
		return "", err
	}
	if snapshot {
		img, err := RenderRunPNG(input)
		if err != nil {
			return htmlPath, fmt.Errorf("png snapshot failed: %w", err)
		}
		if err := os.WriteFile(filepath.Join(outputDir, base+".png"), img.Bytes, 0o644); err != nil {
			return htmlPath, err
		}
	}
	return htmlPath, nil
}

func buildKline(input RunChartInput, xAxis []string) *charts.Kline {
	minPrice, maxPrice := priceBounds(input.Bars)
	padding := (maxPrice - minPrice) * 0.05
	if padding <= 0 {
		padding = math.Max(1, math.Abs(maxPrice)*0.01)
	}
	kline := charts.NewKLine()
	kline.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:           types.ThemeWesteros,
			Width:           fmt.Sprintf("%dpx", chartWidthPx),
			Height:          fmt.Sprintf("%dpx", klineHeightPx),
			BackgroundColor: colorBackground,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:      fmt.Sprintf("%s 日线（%s）", strings.ToUpper(input.Symbol), input.Label),
			Left:       "left",
			Top:        "10",
			TitleStyle: &opts.TextStyle{Color: colorTextPrimary, FontSize: 18},
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", XAxisIndex: []int{0}}),
		charts.WithXAxisOpts(opts.XAxis{
			Type:      "category",
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
			SplitLine: &opts.SplitLine{Show: opts.Bool(false)},
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Scale:     opts.Bool(true),
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
			Min:       round(minPrice-padding, 4),
			Max:       round(maxPrice+padding, 4),
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: colorTextSecondary, Opacity: opts.Float(0.2)}},
		}),
	)
	kline.SetSeriesOptions(
		charts.WithItemStyleOpts(opts.ItemStyle{
			Color:        colorBull,
			Color0:       colorBear,
			BorderColor:  colorBull,
			BorderColor0: colorBear,
		}),
	)
	data := make([]opts.KlineData, 0, len(input.Bars))
	for _, b := range input.Bars {
		data = append(data, opts.KlineData{Value: [4]float64{b.Open, b.Close, b.Low, b.High}})
	}
	kline.SetXAxis(xAxis)
	kline.AddSeries("Price", data)
	return kline
}

func buildEquityLine(input RunChartInput, xAxis []string) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:           types.ThemeWesteros,
			Width:           fmt.Sprintf("%dpx", chartWidthPx),
			Height:          fmt.Sprintf("%dpx", equityHeightPx),
			BackgroundColor: colorBackground,
		}),
		charts.WithTitleOpts(opts.Title{Title: "资金曲线", Left: "left", TitleStyle: &opts.TextStyle{Color: colorTextPrimary}}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{
			Type:      "category",
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Scale:     opts.Bool(true),
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
		}),
	)
	data := make([]opts.LineData, 0, len(input.Rows))
	for _, row := range input.Rows {
		data = append(data, opts.LineData{Value: round(row.PortfolioValue, 2)})
	}
	line.SetXAxis(xAxis)
	line.AddSeries("Equity", data,
		charts.WithLineStyleOpts(opts.LineStyle{Color: colorEquity, Width: 2}),
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
	)
	return line
}

func buildPnLBar(input RunChartInput, xAxis []string) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:           types.ThemeWesteros,
			Width:           fmt.Sprintf("%dpx", chartWidthPx),
			Height:          fmt.Sprintf("%dpx", pnlHeightPx),
			BackgroundColor: colorBackground,
		}),
		charts.WithTitleOpts(opts.Title{Title: "逐日盈亏", Left: "left", TitleStyle: &opts.TextStyle{Color: colorTextPrimary}}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(false)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
		}),
		charts.WithYAxisOpts(opts.YAxis{
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
		}),
	)
	data := make([]opts.BarData, 0, len(input.Rows))
	for _, row := range input.Rows {
		color := colorBull
		if row.DailyPnL < 0 {
			color = colorBear
		}
		data = append(data, opts.BarData{
			Value:     round(row.DailyPnL, 2),
			ItemStyle: &opts.ItemStyle{Color: color},
		})
	}
	bar.SetXAxis(xAxis)
	bar.AddSeries("DailyPnL", data)
	return bar
}

func priceBounds(bars []market.Bar) (float64, float64) {
	minP, maxP := math.MaxFloat64, -math.MaxFloat64
	for _, b := range bars {
		low, high := b.Low, b.High
		if low == 0 {
			low = math.Min(b.Open, b.Close)
		}
		if high == 0 {
			high = math.Max(b.Open, b.Close)
		}
		minP = math.Min(minP, low)
		maxP = math.Max(maxP, high)
	}
	if minP > maxP {
		return 0, 0
	}
	return minP, maxP
}

func round(v float64, places int) float64 {
	scale := math.Pow10(places)
	return math.Round(v*scale) / scale
}

var (
	headlessOnce sync.Once
	headlessErr  error
)

func EnsureHeadlessAvailable(ctx context.Context) error {
	headlessOnce.Do(func() {
		targetCtx := ctx
		if targetCtx == nil {
			targetCtx = context.Background()
		}
		parent, cancel := chromedp.NewContext(targetCtx)
		if cancel != nil {
			defer cancel()
		}
		headlessErr = chromedp.Run(parent)
	})
	return headlessErr
}

func renderHTMLToPNG(ctx context.Context, html []byte, width, height int) ([]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	parent, cancel := chromedp.NewContext(ctx)
	defer cancel()

	timeoutCtx, cancelTimeout := context.WithTimeout(parent, 20*time.Second)
	defer cancelTimeout()

	dataURI := "data:text/html;base64," + base64.StdEncoding.EncodeToString(html)
	var screenshot []byte
	tasks := chromedp.Tasks{
		chromedp.EmulateViewport(int64(width), int64(height)),
		chromedp.Navigate(dataURI),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(1500 * time.Millisecond),
		chromedp.FullScreenshot(&screenshot, 0),
	}
	if err := chromedp.Run(timeoutCtx, tasks...); err != nil {
		return nil, err
	}
	return screenshot, nil
}
