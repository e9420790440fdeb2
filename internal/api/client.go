package api

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"golang.org/x/sync/singleflight"

	"github.com/amoralabs/amora-client/internal/model/enum"
	"github.com/amoralabs/amora-client/internal/obs"
	"github.com/amoralabs/amora-client/internal/storage"
	"github.com/amoralabs/amora-client/pkg/retry"
)

// Options configures the request pipeline.
type Options struct {
	// BaseURL is the REST backend root. Required.
	BaseURL string
	// Store persists bearer/refresh tokens. Required.
	Store storage.Store
	// Transport overrides the HTTP transport. Optional; default http.DefaultTransport.
	Transport http.RoundTripper
	// Timeout bounds a single request attempt. Optional; default 15s.
	Timeout time.Duration
	// UploadTimeout bounds a single upload attempt. Optional; default 60s.
	UploadTimeout time.Duration
	// CacheTTL bounds GET response reuse. Optional; default 30s.
	CacheTTL time.Duration
	// MaxConcurrency caps simultaneous in-flight requests. Optional; default 10.
	MaxConcurrency int
	// MaxQueueDepth caps waiting requests; overflow cancels the oldest entry
	// of the lowest occupied priority tier. Optional; default 100.
	MaxQueueDepth int
	// MaxRetries bounds retry attempts per request. Optional; default retry.DefaultMaxAttempts.
	MaxRetries int
	// Strategy selects the backoff profile. Optional; default balanced.
	Strategy retry.Strategy
	// DisablePriority bypasses the priority queue. Optional; default false.
	DisablePriority bool
	// OnSessionExpired runs after a failed refresh purges credentials. Optional.
	OnSessionExpired func()
}

// Client fronts all outbound HTTP calls: signature deduplication, GET
// response caching, priority queueing, retry with backoff, and coordinated
// token refresh.
type Client struct {
	base             string
	store            storage.Store
	httpClient       *http.Client
	timeout          time.Duration
	uploadTimeout    time.Duration
	maxRetries       int
	strategy         retry.Strategy
	prioritize       bool
	onSessionExpired func()

	flight        singleflight.Group
	refreshFlight singleflight.Group
	cache         *responseCache
	queue         *dispatchQueue
}

// New validates options and builds a pipeline client.
func New(opt Options) (*Client, error) {
	if opt.BaseURL == "" {
		return nil, errors.New("api: empty base url")
	}
	if opt.Store == nil {
		return nil, errors.New("api: nil storage")
	}

	timeout := opt.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	uploadTimeout := opt.UploadTimeout
	if uploadTimeout <= 0 {
		uploadTimeout = 60 * time.Second
	}
	maxRetries := opt.MaxRetries
	if maxRetries <= 0 {
		maxRetries = retry.DefaultMaxAttempts
	}
	transport := opt.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}

	return &Client{
		base:             opt.BaseURL,
		store:            opt.Store,
		httpClient:       &http.Client{Transport: transport},
		timeout:          timeout,
		uploadTimeout:    uploadTimeout,
		maxRetries:       maxRetries,
		strategy:         opt.Strategy,
		prioritize:       !opt.DisablePriority,
		onSessionExpired: opt.OnSessionExpired,
		cache:            newResponseCache(opt.CacheTTL),
		queue:            newDispatchQueue(opt.MaxConcurrency, opt.MaxQueueDepth),
	}, nil
}

// RequestOptions tune a single call.
type RequestOptions struct {
	Query     url.Values
	Header    http.Header
	Priority  *enum.Priority
	SkipCache bool
}

func (c *Client) Get(ctx context.Context, path string, opt *RequestOptions) (*Response, error) {
	return c.do(ctx, http.MethodGet, path, nil, opt)
}

func (c *Client) Post(ctx context.Context, path string, body any, opt *RequestOptions) (*Response, error) {
	payload, err := marshalBody(body)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, http.MethodPost, path, payload, opt)
}

func (c *Client) Put(ctx context.Context, path string, body any, opt *RequestOptions) (*Response, error) {
	payload, err := marshalBody(body)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, http.MethodPut, path, payload, opt)
}

func (c *Client) Patch(ctx context.Context, path string, body any, opt *RequestOptions) (*Response, error) {
	payload, err := marshalBody(body)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, http.MethodPatch, path, payload, opt)
}

func (c *Client) Delete(ctx context.Context, path string, opt *RequestOptions) (*Response, error) {
	return c.do(ctx, http.MethodDelete, path, nil, opt)
}

func marshalBody(body any) ([]byte, error) {
	if body == nil {
		return nil, nil
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(err, "encode request body")
	}
	return payload, nil
}

// do runs the full pipeline for one logical call. Two concurrent calls with
// an identical signature share one network call; the signature check and
// flight registration happen inside singleflight's own lock, so identical
// concurrent callers can never both miss.
func (c *Client) do(ctx context.Context, method, path string, body []byte, opt *RequestOptions) (*Response, error) {
	if opt == nil {
		opt = &RequestOptions{}
	}
	sig := signature(method, c.base+path, opt.Query, body)

	if method == http.MethodGet && !opt.SkipCache {
		if cached, ok := c.cache.get(sig); ok {
			obs.CacheHits.Inc()
			return cached, nil
		}
	}

	value, err, shared := c.flight.Do(sig, func() (any, error) {
		return c.dispatch(ctx, method, path, sig, body, opt, c.timeout, "")
	})
	if shared {
		obs.DedupHits.Inc()
	}
	if err != nil {
		return nil, err
	}
	return value.(*Response), nil
}

// dispatch performs queue admission, the attempt loop, and error
// normalization for one deduplicated call.
func (c *Client) dispatch(ctx context.Context, method, path, sig string, body []byte, opt *RequestOptions, timeout time.Duration, contentType string) (*Response, error) {
	priority := classify(path)
	if opt.Priority != nil {
		priority = *opt.Priority
	}

	if c.prioritize {
		release, err := c.queue.acquire(ctx, priority)
		if err != nil {
			obs.RequestsTotal.WithLabelValues("cancelled").Inc()
			return nil, err
		}
		defer release()
	}

	refreshed := false
	for attempt := 0; ; attempt++ {
		resp, err := c.attempt(ctx, method, path, body, opt, timeout, contentType)
		if err != nil {
			if ctx.Err() != nil {
				obs.RequestsTotal.WithLabelValues("cancelled").Inc()
				return nil, ErrCancelled
			}
			// A deadline here is the per-attempt timeout, not the caller's:
			// the parent context is still live, so the attempt may retry.
			if (retry.Retryable(err) || stderrors.Is(err, context.DeadlineExceeded)) && attempt < c.maxRetries {
				obs.RequestRetries.Inc()
				if sleepErr := retry.Sleep(ctx, attempt+1, c.strategy); sleepErr != nil {
					obs.RequestsTotal.WithLabelValues("cancelled").Inc()
					return nil, ErrCancelled
				}
				continue
			}
			obs.RequestsTotal.WithLabelValues("error").Inc()
			return nil, &Error{Message: "network failure: " + err.Error()}
		}

		switch {
		case resp.Status >= 200 && resp.Status < 300:
			if method == http.MethodGet && !opt.SkipCache {
				c.cache.set(sig, resp)
			}
			obs.RequestsTotal.WithLabelValues("ok").Inc()
			return resp, nil

		case resp.Status == http.StatusUnauthorized && !refreshed:
			if err := c.refreshSession(ctx); err != nil {
				if stderrors.Is(err, ErrSessionExpired) {
					obs.RequestsTotal.WithLabelValues("session_expired").Inc()
				} else {
					obs.RequestsTotal.WithLabelValues("error").Inc()
				}
				return nil, err
			}
			// Retry the original call exactly once with the fresh token.
			refreshed = true
			continue

		case retry.RetryableStatus(resp.Status) && attempt < c.maxRetries:
			obs.RequestRetries.Inc()
			if sleepErr := retry.Sleep(ctx, attempt+1, c.strategy); sleepErr != nil {
				obs.RequestsTotal.WithLabelValues("cancelled").Inc()
				return nil, ErrCancelled
			}
			continue

		default:
			obs.RequestsTotal.WithLabelValues("error").Inc()
			message := serverMessage(resp.Body)
			if message == "" {
				message = http.StatusText(resp.Status)
			}
			return nil, &Error{Status: resp.Status, Message: message, Body: resp.Body}
		}
	}
}

// attempt issues a single HTTP round trip.
func (c *Client) attempt(ctx context.Context, method, path string, body []byte, opt *RequestOptions, timeout time.Duration, contentType string) (*Response, error) {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	target := c.base + path
	if len(opt.Query) > 0 {
		target += "?" + opt.Query.Encode()
	}

	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(reqCtx, method, target, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if len(body) > 0 {
		if contentType == "" {
			contentType = "application/json"
		}
		req.Header.Set("Content-Type", contentType)
	}
	for key, values := range opt.Header {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	if token := c.bearerToken(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, err
	}
	return &Response{Status: resp.StatusCode, Header: resp.Header, Body: payload}, nil
}

// uploadBoundary is fixed so identical concurrent uploads produce identical
// body bytes and therefore one shared network call.
const uploadBoundary = "amora-form-9f2c47d1e8b3a605"

// Upload sends files as a multipart form. Uploads skip the response cache
// and use the longer upload timeout, but share the signature dedup with the
// rest of the pipeline.
func (c *Client) Upload(ctx context.Context, path string, files map[string]string, fields map[string]string, opt *RequestOptions) (*Response, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if err := writer.SetBoundary(uploadBoundary); err != nil {
		return nil, errors.Wrap(err, "set upload boundary")
	}
	for field, filePath := range files {
		file, err := os.Open(filePath)
		if err != nil {
			return nil, errors.Wrap(err, "open upload file")
		}
		part, err := writer.CreateFormFile(field, filepath.Base(filePath))
		if err == nil {
			_, err = io.Copy(part, file)
		}
		_ = file.Close()
		if err != nil {
			return nil, errors.Wrap(err, "write upload part")
		}
	}
	for field, value := range fields {
		if err := writer.WriteField(field, value); err != nil {
			return nil, errors.Wrap(err, "write upload field")
		}
	}
	if err := writer.Close(); err != nil {
		return nil, errors.Wrap(err, "finish upload form")
	}

	if opt == nil {
		opt = &RequestOptions{}
	}
	body := buf.Bytes()
	sig := signature(http.MethodPost, c.base+path, opt.Query, body)
	value, err, shared := c.flight.Do(sig, func() (any, error) {
		return c.dispatch(ctx, http.MethodPost, path, sig, body, opt, c.uploadTimeout, writer.FormDataContentType())
	})
	if shared {
		obs.DedupHits.Inc()
	}
	if err != nil {
		return nil, err
	}
	return value.(*Response), nil
}

// Download fetches a resource and writes it to destination.
func (c *Client) Download(ctx context.Context, path, destination string, opt *RequestOptions) error {
	if opt == nil {
		opt = &RequestOptions{}
	}
	opt.SkipCache = true
	resp, err := c.do(ctx, http.MethodGet, path, nil, opt)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(destination), 0o755); err != nil {
		return errors.Wrap(err, "create download dir")
	}
	if err := os.WriteFile(destination, resp.Body, 0o644); err != nil {
		return errors.Wrap(err, "write download")
	}
	logs.Infof("downloaded %s (%d bytes)", destination, len(resp.Body))
	return nil
}
