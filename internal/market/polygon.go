package market

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// PolygonSource 基于 Polygon.io 日线聚合 REST（/v2/aggs/.../range/1/day/...）。
type PolygonSource struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewPolygonSource(base, apiKey string) *PolygonSource {
	if base == "" {
		base = "https://api.polygon.io"
	}
	return &PolygonSource{
		baseURL: base,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (p *PolygonSource) Name() string { return "polygon" }

func (p *PolygonSource) Fetch(ctx context.Context, req FetchRequest) ([]Bar, error) {
	if req.Symbol == "" {
		return nil, fmt.Errorf("%w: symbol 不能为空", ErrDataSource)
	}
	limit := req.Limit
	if limit <= 0 || limit > 5000 {
		limit = 5000
	}
	end := req.End
	if end <= 0 {
		end = time.Now().UnixMilli()
	}
	u, err := url.Parse(p.baseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: base url 非法: %v", ErrDataSource, err)
	}
	u.Path = fmt.Sprintf("/v2/aggs/ticker/%s/range/1/day/%d/%d", req.Symbol, req.Start, end)
	q := u.Query()
	q.Set("adjusted", "true")
	q.Set("sort", "asc")
	q.Set("limit", strconv.Itoa(limit))
	if p.apiKey != "" {
		q.Set("apiKey", p.apiKey)
	}
	u.RawQuery = q.Encode()

	httpReq, _ := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDataSource, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: polygon 返回状态码 %d", ErrDataSource, resp.StatusCode)
	}
	var raw struct {
		Status  string `json:"status"`
		Results []struct {
			T int64   `json:"t"`
			O float64 `json:"o"`
			H float64 `json:"h"`
			L float64 `json:"l"`
			C float64 `json:"c"`
			V float64 `json:"v"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: 响应解析失败: %v", ErrDataSource, err)
	}
	out := make([]Bar, 0, len(raw.Results))
	for _, r := range raw.Results {
		out = append(out, Bar{
			TS:     AlignDay(r.T),
			Open:   r.O,
			High:   r.H,
			Low:    r.L,
			Close:  r.C,
			Volume: r.V,
		})
	}
	return out, nil
}
