package visual

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stocksim/internal/market"
	"stocksim/internal/sim"
)

func sampleInput() RunChartInput {
	return RunChartInput{
		RunID:  "run-1",
		Symbol: "AAPL",
		Label:  "moderate",
		Bars: []market.Bar{
			{TS: 1704153600000, Open: 100, High: 103, Low: 99, Close: 102},
			{TS: 1704240000000, Open: 102, High: 105, Low: 101, Close: 104},
		},
		Rows: []sim.LogRow{
			{Day: 0, Date: "2024-01-02", PortfolioValue: 10200, DailyPnL: 200},
			{Day: 1, Date: "2024-01-03", PortfolioValue: 10400, DailyPnL: 200},
		},
	}
}

func TestRenderRunHTML(t *testing.T) {
	html, err := RenderRunHTML(sampleInput())
	require.NoError(t, err)
	body := string(html)
	assert.Contains(t, body, "AAPL 日线")
	assert.Contains(t, body, "资金曲线")
	assert.Contains(t, body, "逐日盈亏")
	assert.Contains(t, body, "2024-01-02")
}

func TestRenderRunHTML_NoBars(t *testing.T) {
	input := sampleInput()
	input.Bars = nil
	html, err := RenderRunHTML(input)
	require.NoError(t, err)
	// 没有 K 线时仍然渲染资金曲线与盈亏
	assert.NotContains(t, string(html), "AAPL 日线")
	assert.Contains(t, string(html), "资金曲线")
}

func TestRenderRunHTML_Invalid(t *testing.T) {
	input := sampleInput()
	input.Symbol = ""
	_, err := RenderRunHTML(input)
	assert.Error(t, err)

	input = sampleInput()
	input.Rows = nil
	_, err = RenderRunHTML(input)
	assert.Error(t, err)
}

func TestSaveRunChart(t *testing.T) {
	dir := t.TempDir()
	path, err := SaveRunChart(sampleInput(), dir, false)
	require.NoError(t, err)
	assert.FileExists(t, path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "资金曲线")
}

func TestPriceBounds(t *testing.T) {
	minP, maxP := priceBounds([]market.Bar{
		{Open: 100, High: 110, Low: 95, Close: 105},
		{Open: 105, High: 0, Low: 0, Close: 98},
	})
	assert.Equal(t, 95.0, minP)
	assert.Equal(t, 110.0, maxP)

	minP, maxP = priceBounds(nil)
	assert.Zero(t, minP)
	assert.Zero(t, maxP)
}
