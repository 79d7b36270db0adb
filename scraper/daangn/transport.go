package daangn

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"market-search/utils"
)

const (
	// UserAgent is a desktop Chrome signature. The upstream varies its response
	// shape by client, so every request carries it.
	UserAgent      = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	AcceptLanguage = "ko-KR,ko;q=0.9,en-US;q=0.8,en;q=0.7"
)

// Transport performs one GET and returns the raw body.
type Transport interface {
	Get(ctx context.Context, url string, header http.Header) ([]byte, error)
}

// browserHeader returns the headers sent with every upstream request.
func browserHeader(accept string) http.Header {
	h := http.Header{}
	h.Set("User-Agent", UserAgent)
	h.Set("Accept-Language", AcceptLanguage)
	if accept != "" {
		h.Set("Accept", accept)
	}
	return h
}

// CollyTransport fetches over plain HTTP with a shared parent collector.
// Each call works on a clone so callbacks never leak between requests.
type CollyTransport struct {
	collector *colly.Collector
	logger    utils.Logger
}

// NewCollyTransport creates a transport whose requests time out after timeout.
func NewCollyTransport(timeout time.Duration, logger utils.Logger) *CollyTransport {
	if logger == nil {
		logger = utils.NopLogger{}
	}
	c := colly.NewCollector(colly.AllowURLRevisit())
	c.UserAgent = UserAgent
	if timeout > 0 {
		c.SetRequestTimeout(timeout)
	}
	return &CollyTransport{
		collector: c,
		logger:    logger.WithFields(utils.Fields{"component": "colly_transport"}),
	}
}

func (t *CollyTransport) Get(ctx context.Context, target string, header http.Header) ([]byte, error) {
	collector := t.collector.Clone()
	collector.Context = ctx

	var (
		body        []byte
		responseErr error
	)

	collector.OnRequest(func(r *colly.Request) {
		t.logger.Debug("upstream request", utils.Fields{"url": r.URL.String()})
	})

	collector.OnResponse(func(r *colly.Response) {
		body = r.Body
	})

	collector.OnError(func(r *colly.Response, err error) {
		responseErr = fmt.Errorf("request to %s failed with status %d: %w", r.Request.URL, r.StatusCode, err)
	})

	if err := collector.Request(http.MethodGet, target, nil, nil, header); err != nil && responseErr == nil {
		return nil, fmt.Errorf("visit %s: %w", target, err)
	}
	collector.Wait()

	if responseErr != nil {
		return nil, responseErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return body, nil
}
