package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/codeGROOVE-dev/retry"
	"golang.org/x/net/html/charset"

	"numwatch/internal/monitor"
	logx "numwatch/pkg/logx"
)

const maxBody = 4 << 20

type Config struct {
	Timeout    time.Duration
	Attempts   int
	RetryDelay time.Duration
	BlockTime  time.Duration

	Client   *http.Client
	Cooldown Cooldown
	Log      logx.Logger
}

// Fetcher downloads pages and extracts phone tokens and a flag image.
type Fetcher struct {
	client     *http.Client
	attempts   int
	retryDelay time.Duration
	blockTime  time.Duration
	cooldown   Cooldown
	log        logx.Logger
}

func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 5 * time.Second
	}
	if cfg.BlockTime <= 0 {
		cfg.BlockTime = 5 * time.Minute
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Fetcher{
		client:     client,
		attempts:   cfg.Attempts,
		retryDelay: cfg.RetryDelay,
		blockTime:  cfg.BlockTime,
		cooldown:   cfg.Cooldown,
		log:        cfg.Log,
	}
}

// Fetch downloads url and parses it for the given content type.
// A page without any token yields empty content and no error.
func (f *Fetcher) Fetch(ctx context.Context, url string, t monitor.ContentType) (monitor.Content, string, error) {
	if f.cooldown != nil {
		blocked, err := f.cooldown.Blocked(url)
		if err != nil {
			f.log.Debug("cooldown lookup failed", logx.String("url", url), logx.Err(err))
		}
		if blocked {
			return monitor.Content{}, "", &Error{Kind: KindRateLimit, URL: url, Err: errors.New("cooling down")}
		}
	}

	body, err := f.download(ctx, url)
	if err != nil {
		return monitor.Content{}, "", err
	}
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return monitor.Content{}, "", &Error{Kind: KindParsing, URL: url, Err: err}
	}
	data, image := Parse(doc, url, t)
	return data, image, nil
}

func (f *Fetcher) download(ctx context.Context, url string) (io.Reader, error) {
	var (
		body    io.Reader
		lastErr error
	)
	jitter := f.retryDelay / 10
	if jitter < time.Millisecond {
		jitter = time.Millisecond
	}
	err := retry.Do(
		func() error {
			b, err := f.get(ctx, url)
			if err != nil {
				lastErr = err
				if !isRetryable(err) {
					return retry.Unrecoverable(err)
				}
				return err
			}
			body = b
			return nil
		},
		retry.Attempts(uint(f.attempts)),
		retry.Delay(f.retryDelay),
		retry.MaxDelay(f.retryDelay),
		retry.MaxJitter(jitter),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			f.log.Debug("retrying fetch", logx.String("url", url), logx.Int("attempt", int(n)+1), logx.Err(err))
		}),
	)
	if err != nil {
		if lastErr != nil && ctx.Err() == nil {
			return nil, lastErr
		}
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	return body, nil
}

// get performs one request and returns the body decoded to UTF-8.
func (f *Fetcher) get(ctx context.Context, url string) (io.Reader, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, &Error{Kind: KindParsing, URL: url, Err: err}
	}
	setBrowserHeaders(req)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		if f.cooldown != nil {
			if err := f.cooldown.Block(url, f.blockTime); err != nil {
				f.log.Warn("cooldown block failed", logx.String("url", url), logx.Err(err))
			}
		}
		return nil, &Error{Kind: KindRateLimit, URL: url, Status: resp.StatusCode,
			Err: fmt.Errorf("retry after %q", resp.Header.Get("Retry-After"))}
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return nil, &Error{Kind: KindStatus, URL: url, Status: resp.StatusCode}
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, &Error{Kind: KindNetwork, URL: url, Err: err}
	}

	enc, name, _ := charset.DetermineEncoding(raw, resp.Header.Get("Content-Type"))
	if strings.EqualFold(name, "utf-8") {
		return bytes.NewReader(raw), nil
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, enc.NewDecoder().Reader(bytes.NewReader(raw))); err != nil {
		return nil, &Error{Kind: KindParsing, URL: url, Err: fmt.Errorf("decode %s: %w", name, err)}
	}
	return &buf, nil
}

func setBrowserHeaders(req *http.Request) {
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Sec-Fetch-Dest", "document")
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	req.Header.Set("Sec-Fetch-Site", "none")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
	req.Header.Set("Cache-Control", "no-cache")
}
