package feed

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"
)

const (
	defaultFetchTimeout = 10 * time.Second
	maxSummaryLen       = 200 // 摘要最大字符数
	userAgent           = "feedwatch/1.0 RSS Poller"
)

// FetchError 传输层失败（超时、连接拒绝、DNS 失败等），下个轮询周期可重试。
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string { return fmt.Sprintf("抓取 %s 失败: %v", e.URL, e.Err) }
func (e *FetchError) Unwrap() error { return e.Err }

// ParseError 文档格式错误，远端修复后下个轮询周期可恢复。
type ParseError struct {
	URL string
	Err error
}

func (e *ParseError) Error() string { return fmt.Sprintf("解析 %s 失败: %v", e.URL, e.Err) }
func (e *ParseError) Unwrap() error { return e.Err }

// FetchResult 单次抓取的结果。
type FetchResult struct {
	Meta        Metadata
	Entries     []Entry // 保持文档内的原始顺序
	NotModified bool    // 远端返回 304，内容未变化
}

// Fetcher 负责抓取并解析远端订阅源文档。
// 自身无状态，可被多个协调器共享；除网络请求外没有副作用。
type Fetcher struct {
	parser *gofeed.Parser
	client *http.Client
}

// NewFetcher 创建抓取器。timeout 为单次请求的超时时间，非正值使用默认值。
func NewFetcher(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	return &Fetcher{
		parser: gofeed.NewParser(),
		client: &http.Client{Timeout: timeout},
	}
}

// Fetch 抓取并解析 url 指向的订阅源。
// cond 携带上次抓取返回的条件请求标记，远端未变化时返回 NotModified 结果。
// 传输失败返回 *FetchError，文档无法解析返回 *ParseError。
// 条目为零的合法文档不是错误，由调用方自行解释。
func (f *Fetcher) Fetch(ctx context.Context, url string, cond Conditional) (*FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	req.Header.Set("User-Agent", userAgent)
	if cond.ETag != "" {
		req.Header.Set("If-None-Match", cond.ETag)
	}
	if cond.LastModified != "" {
		req.Header.Set("If-Modified-Since", cond.LastModified)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		return &FetchResult{
			NotModified: true,
			Meta:        Metadata{ETag: cond.ETag, LastModified: cond.LastModified},
		}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &FetchError{URL: url, Err: fmt.Errorf("HTTP %d", resp.StatusCode)}
	}

	parsed, err := f.parser.Parse(resp.Body)
	if err != nil {
		return nil, &ParseError{URL: url, Err: err}
	}

	return &FetchResult{
		Meta: Metadata{
			Title:        parsed.Title,
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
		},
		Entries: convertEntries(parsed),
	}, nil
}

// convertEntries 将 gofeed 条目转换为 Entry，保持文档顺序。
func convertEntries(parsed *gofeed.Feed) []Entry {
	entries := make([]Entry, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		summary := item.Description
		if summary == "" {
			summary = item.Content
		}
		summary = truncate(stripHTML(summary), maxSummaryLen)

		var published *time.Time
		if item.PublishedParsed != nil {
			published = item.PublishedParsed
		} else if item.UpdatedParsed != nil {
			published = item.UpdatedParsed
		}

		entries = append(entries, Entry{
			GUID:      item.GUID,
			Title:     item.Title,
			Link:      item.Link,
			Summary:   summary,
			Content:   item.Content,
			Published: published,
			FeedName:  parsed.Title,
		})
	}
	return entries
}
