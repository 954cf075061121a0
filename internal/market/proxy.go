package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"stocksim/internal/logger"
)

// 中文说明：
// Proxy 代理外部报价/资讯接口，带 TTL 缓存：
// 上游失败时回退到过期缓存，拿不到任何数据才报错。

type ProxyEndpoint struct {
	BaseURL string
	APIKey  string
}

type Proxy struct {
	quote ProxyEndpoint
	news  ProxyEndpoint
	cache *TTLCache
	httpc *http.Client
}

func NewProxy(quote, news ProxyEndpoint, ttl time.Duration) *Proxy {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Proxy{
		quote: quote,
		news:  news,
		cache: NewTTLCache(ttl),
		httpc: &http.Client{Timeout: 10 * time.Second},
	}
}

// Quote 返回单个标的的实时报价 JSON。
func (p *Proxy) Quote(ctx context.Context, symbol string) (json.RawMessage, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, fmt.Errorf("symbol 不能为空")
	}
	if p.quote.BaseURL == "" {
		return nil, fmt.Errorf("quote 端点未配置")
	}
	u := fmt.Sprintf("%s/quote?symbol=%s&token=%s",
		strings.TrimRight(p.quote.BaseURL, "/"), url.QueryEscape(symbol), url.QueryEscape(p.quote.APIKey))
	return p.fetchCached(ctx, "quote:"+symbol, u)
}

// News 返回单个标的的公司新闻 JSON。
func (p *Proxy) News(ctx context.Context, symbol string, from, to string) (json.RawMessage, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, fmt.Errorf("symbol 不能为空")
	}
	if p.news.BaseURL == "" {
		return nil, fmt.Errorf("news 端点未配置")
	}
	u := fmt.Sprintf("%s/company-news?symbol=%s&from=%s&to=%s&token=%s",
		strings.TrimRight(p.news.BaseURL, "/"), url.QueryEscape(symbol),
		url.QueryEscape(from), url.QueryEscape(to), url.QueryEscape(p.news.APIKey))
	return p.fetchCached(ctx, fmt.Sprintf("news:%s:%s:%s", symbol, from, to), u)
}

func (p *Proxy) fetchCached(ctx context.Context, key, u string) (json.RawMessage, error) {
	if v, fresh := p.cache.Get(key); fresh {
		return v.(json.RawMessage), nil
	}
	body, err := p.fetch(ctx, u)
	if err != nil {
		// 上游失败时退回过期缓存
		if v, _ := p.cache.Get(key); v != nil {
			logger.Warnf("[market] %s 上游失败，使用过期缓存: %v", key, err)
			return v.(json.RawMessage), nil
		}
		return nil, err
	}
	p.cache.Put(key, json.RawMessage(body))
	return body, nil
}

func (p *Proxy) fetch(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDataSource, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("%w: status=%d", ErrDataSource, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDataSource, err)
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("%w: 响应不是合法 JSON", ErrDataSource)
	}
	return body, nil
}
