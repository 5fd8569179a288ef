package google

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/cenkalti/backoff/v4"

	"github.com/howie/coaching-transcript-tool-sub000/internal/pkg/transcriber/api"
)

// ResultStore reads batch result blobs from object storage
type ResultStore interface {
	Stat(ctx context.Context, key string) (int64, error)
	LoadFile(ctx context.Context, key string) (io.ReadSeekCloser, error)
}

// Endpoints keeps remote recognizer URLs
type Endpoints struct {
	RecognizeURL string
	BatchURL     string
	OperationURL string
}

// Config keeps adapter construction parameters
type Config struct {
	Name             string
	Endpoints        Endpoints
	Store            ResultStore
	ResultPrefix     string
	RoutingOverrides map[string]Routing
	DisableDiarized  bool
	PollTimeout      time.Duration
	PollWait         time.Duration
}

const (
	costPerMinute = 0.016

	defaultPollTimeout = time.Minute * 120
	defaultPollWait    = time.Second * 15
	notifyEvery        = time.Minute

	fetchInitialWait = time.Second
	fetchMaxWait     = time.Second * 5
	fetchDeadline    = time.Second * 60
	fetchAttempts    = 5
)

// Client implements the recognition adapter over a remote speech service
type Client struct {
	name            string
	httpclient      *http.Client
	recognizeURL    string
	batchURL        string
	operationURL    string
	store           ResultStore
	resultPrefix    string
	overrides       map[string]Routing
	disableDiarized bool

	pollTimeout time.Duration
	pollWait    time.Duration
	timeout     time.Duration
	backoff     func() backoff.BackOff

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient creates a recognition adapter. A fresh instance is expected
// per job invocation so no connection state is shared across workers
func NewClient(cfg Config) (*Client, error) {
	if cfg.Endpoints.RecognizeURL == "" {
		return nil, fmt.Errorf("no recognizeURL")
	}
	if cfg.Endpoints.BatchURL == "" {
		return nil, fmt.Errorf("no batchURL")
	}
	if cfg.Endpoints.OperationURL == "" {
		return nil, fmt.Errorf("no operationURL")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("no result store")
	}
	res := &Client{
		name:            cfg.Name,
		httpclient:      speechHTTPClient(),
		recognizeURL:    cfg.Endpoints.RecognizeURL,
		batchURL:        cfg.Endpoints.BatchURL,
		operationURL:    cfg.Endpoints.OperationURL,
		store:           cfg.Store,
		resultPrefix:    cfg.ResultPrefix,
		overrides:       cfg.RoutingOverrides,
		disableDiarized: cfg.DisableDiarized,
		pollTimeout:     cfg.PollTimeout,
		pollWait:        cfg.PollWait,
		timeout:         time.Second * 50,
		backoff:         newSimpleBackoff,
		now:             time.Now,
		sleep:           sleepCtx,
	}
	if res.name == "" {
		res.name = "google"
	}
	if res.pollTimeout <= 0 {
		res.pollTimeout = defaultPollTimeout
	}
	if res.pollWait <= 0 {
		res.pollWait = defaultPollWait
	}
	return res, nil
}

// Name returns the stable provider identifier
func (c *Client) Name() string {
	return c.name
}

// EstimateCost is linear in audio duration, no discounts
func (c *Client) EstimateCost(durationSec float64) float64 {
	return durationSec / 60 * costPerMinute
}

type diarizationConfig struct {
	MinSpeakers int `json:"minSpeakers"`
	MaxSpeakers int `json:"maxSpeakers"`
}

type recognitionConfig struct {
	Encoding          string             `json:"encoding"`
	SampleRateHertz   int                `json:"sampleRateHertz"`
	AudioChannelCount int                `json:"audioChannelCount"`
	LanguageCode      string             `json:"languageCode"`
	Model             string             `json:"model"`
	Region            string             `json:"region"`
	Diarization       *diarizationConfig `json:"diarization,omitempty"`
}

type recognizeRequest struct {
	Audio  string            `json:"audio"`
	Config recognitionConfig `json:"config"`
}

type recognizeResponse struct {
	Results []recognitionResult `json:"results"`
}

type batchRequest struct {
	Audio        string            `json:"audio"`
	OutputPrefix string            `json:"outputPrefix"`
	Config       recognitionConfig `json:"config"`
}

type opError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type storageRef struct {
	URI string `json:"uri"`
}

type batchResultEntry struct {
	Error              *opError    `json:"error,omitempty"`
	CloudStorageResult *storageRef `json:"cloudStorageResult,omitempty"`
	URI                string      `json:"uri,omitempty"`
}

type operationStatus struct {
	Name     string                      `json:"name"`
	Done     bool                        `json:"done"`
	Error    *opError                    `json:"error,omitempty"`
	Response *struct {
		Results map[string]batchResultEntry `json:"results"`
	} `json:"response,omitempty"`
}

// Transcribe runs recognition. Diarized requests for supported
// (language, model, region) triples take the synchronous path,
// everything else goes through asynchronous batch recognition
func (c *Client) Transcribe(ctx context.Context, input *api.TranscribeInput) (*api.TranscriptionResult, error) {
	lang := normalizeLanguage(input.Language)
	rt := resolveRouting(lang, c.overrides)
	af := detectFormat(input.OriginalFilename)
	diarized := input.Diarization && !c.disableDiarized
	if diarized && !supportsDiarization(lang, rt) {
		goapp.Log.Warn().Str("language", lang).Str("model", rt.Model).Str("region", rt.Region).
			Msg("diarization not supported for language/model/region - falling back to batch mode")
		diarized = false
	}
	cfg := recognitionConfig{Encoding: af.Encoding, SampleRateHertz: af.SampleRate,
		AudioChannelCount: af.Channels, LanguageCode: lang, Model: rt.Model, Region: rt.Region}
	if diarized {
		cfg.Diarization = &diarizationConfig{MinSpeakers: input.MinSpeakers, MaxSpeakers: input.MaxSpeakers}
		return c.transcribeDiarized(ctx, input, lang, rt, cfg)
	}
	return c.transcribeBatch(ctx, input, lang, rt, cfg)
}

func (c *Client) transcribeDiarized(ctx context.Context, input *api.TranscribeInput, lang string, rt Routing,
	cfg recognitionConfig) (*api.TranscriptionResult, error) {
	goapp.Log.Info().Str("audio", input.AudioKey).Str("language", lang).Msg("sync diarized recognition")
	c.notify(input.Progress, 10, "Starting recognition")
	var resp recognizeResponse
	if err := c.postJSON(ctx, c.recognizeURL, &recognizeRequest{Audio: input.AudioKey, Config: cfg}, &resp); err != nil {
		return nil, fmt.Errorf("can't recognize: %w", err)
	}
	var words []wordInfo
	for _, r := range resp.Results {
		if len(r.Alternatives) == 0 {
			continue
		}
		words = append(words, r.Alternatives[0].Words...)
	}
	segs := reconstructDiarized(words)
	c.notify(input.Progress, 100, "Recognition completed")
	return c.newResult(segs, lang, rt, "sync_diarized", true), nil
}

func (c *Client) transcribeBatch(ctx context.Context, input *api.TranscribeInput, lang string, rt Routing,
	cfg recognitionConfig) (*api.TranscriptionResult, error) {
	goapp.Log.Info().Str("audio", input.AudioKey).Str("language", lang).Msg("batch recognition")
	c.notify(input.Progress, 5, "Submitting batch recognition")
	var resp struct {
		Name string `json:"name"`
	}
	req := &batchRequest{Audio: input.AudioKey, OutputPrefix: c.resultPrefix, Config: cfg}
	if err := c.postJSON(ctx, c.batchURL, req, &resp); err != nil {
		return nil, fmt.Errorf("can't submit batch: %w", err)
	}
	if resp.Name == "" {
		return nil, fmt.Errorf("no operation name in batch response")
	}
	op, err := c.waitOperation(ctx, resp.Name, input.Progress)
	if err != nil {
		return nil, err
	}
	loc, err := resultLocation(op, input.AudioKey)
	if err != nil {
		return nil, err
	}
	c.notify(input.Progress, 95, "Recognition completed, fetching results")
	data, err := c.fetchResult(ctx, objectKey(loc))
	if err != nil {
		return nil, err
	}
	segs := buildBatchSegments(data.Results)
	c.notify(input.Progress, 100, "Recognition completed")
	return c.newResult(segs, lang, rt, "batch", false), nil
}

func (c *Client) newResult(segs []api.TranscriptSegment, lang string, rt Routing, method string,
	diarized bool) *api.TranscriptionResult {
	total := maxEnd(segs)
	return &api.TranscriptionResult{
		Segments:      segs,
		TotalDuration: total,
		Language:      lang,
		Cost:          c.EstimateCost(total),
		Metadata: map[string]string{
			"provider":    c.name,
			"model":       rt.Model,
			"region":      rt.Region,
			"method":      method,
			"diarization": fmt.Sprintf("%t", diarized),
		},
	}
}

// waitOperation polls the long-running operation until done, failed or the
// hard wall-clock ceiling. The progress estimate is time based and capped
// below 100 until the operation is confirmed complete
func (c *Client) waitOperation(ctx context.Context, name string, progress api.ProgressFunc) (*operationStatus, error) {
	start := c.now()
	deadline := start.Add(c.pollTimeout)
	var lastNotify time.Time
	// the submit step already reported 5, never go below it
	lastProgress := 5
	for {
		st, op, err := c.pollOperation(ctx, name)
		if err != nil {
			return nil, err
		}
		if st == api.OpDone {
			return op, nil
		}
		now := c.now()
		if now.After(deadline) {
			return nil, api.NewErrTimeout(fmt.Errorf("operation %s not finished in %v", name, c.pollTimeout))
		}
		if now.Sub(lastNotify) >= notifyEvery {
			lastNotify = now
			pct := int(now.Sub(start).Seconds() / c.pollTimeout.Seconds() * 100)
			if pct > 95 {
				pct = 95
			}
			if pct < lastProgress {
				pct = lastProgress
			}
			lastProgress = pct
			c.notify(progress, pct, fmt.Sprintf("Recognition in progress, estimated %d%%", pct))
		}
		if err := c.sleep(ctx, c.pollWait); err != nil {
			return nil, err
		}
	}
}

// pollOperation makes one poll returning a typed three-way outcome.
// A per-poll timeout means still pending, any other failure is terminal
func (c *Client) pollOperation(ctx context.Context, name string) (api.OpState, *operationStatus, error) {
	ctxInt, cancelF := context.WithTimeout(ctx, c.pollWait)
	defer cancelF()
	req, err := http.NewRequestWithContext(ctxInt, http.MethodGet, fmt.Sprintf("%s/%s", c.operationURL, name), nil)
	if err != nil {
		return api.OpError, nil, err
	}
	resp, err := c.httpclient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			goapp.Log.Debug().Str("operation", name).Msg("poll timed out - still pending")
			return api.OpPending, nil, nil
		}
		return api.OpError, nil, fmt.Errorf("can't poll operation: %w", err)
	}
	defer closeBody(resp)
	if err := classifyStatus(resp.StatusCode, req.URL.String()); err != nil {
		return api.OpError, nil, err
	}
	var op operationStatus
	if err := json.NewDecoder(resp.Body).Decode(&op); err != nil {
		return api.OpError, nil, fmt.Errorf("can't unmarshal operation: %w", err)
	}
	if op.Error != nil && op.Error.Code > 0 {
		return api.OpError, nil, fmt.Errorf("operation failed (%d): %s", op.Error.Code, op.Error.Message)
	}
	if !op.Done {
		return api.OpPending, &op, nil
	}
	return api.OpDone, &op, nil
}

// resultLocation resolves the entry matching the submitted audio,
// preferring the structured result location over the legacy URI field
func resultLocation(op *operationStatus, audioKey string) (string, error) {
	if op.Response == nil {
		return "", fmt.Errorf("no results in finished operation")
	}
	entry, ok := op.Response.Results[audioKey]
	if !ok {
		return "", fmt.Errorf("no result entry for %s", audioKey)
	}
	if entry.Error != nil && entry.Error.Code > 0 {
		return "", fmt.Errorf("recognition failed (%d): %s", entry.Error.Code, entry.Error.Message)
	}
	if entry.CloudStorageResult != nil && entry.CloudStorageResult.URI != "" {
		return entry.CloudStorageResult.URI, nil
	}
	if entry.URI != "" {
		return entry.URI, nil
	}
	return "", fmt.Errorf("no result location for %s", audioKey)
}

// objectKey strips a gs-style bucket prefix, the store is bucket scoped
func objectKey(uri string) string {
	if i := strings.Index(uri, "://"); i >= 0 {
		rest := uri[i+3:]
		if j := strings.Index(rest, "/"); j >= 0 {
			return rest[j+1:]
		}
		return rest
	}
	return uri
}

// fetchResult reads the result blob tolerating eventual consistency:
// bounded exponential backoff while the blob is missing, empty or
// still being written
func (c *Client) fetchResult(ctx context.Context, key string) (*recognizeResponse, error) {
	wait := fetchInitialWait
	deadline := c.now().Add(fetchDeadline)
	var lastErr error
	for attempt := 1; attempt <= fetchAttempts; attempt++ {
		res, err := c.tryLoadResult(ctx, key)
		if err == nil {
			return res, nil
		}
		if !isRetryableFetch(err) {
			return nil, err
		}
		lastErr = err
		if attempt == fetchAttempts || c.now().After(deadline) {
			break
		}
		goapp.Log.Debug().Str("key", key).Dur("wait", wait).Int("attempt", attempt).Msg("result not ready")
		if err := c.sleep(ctx, wait); err != nil {
			return nil, err
		}
		wait *= 2
		if wait > fetchMaxWait {
			wait = fetchMaxWait
		}
	}
	return nil, api.NewErrResultNotFound(fmt.Errorf("result %s not available: %v", key, lastErr))
}

func (c *Client) tryLoadResult(ctx context.Context, key string) (*recognizeResponse, error) {
	size, err := c.store.Stat(ctx, key)
	if err != nil {
		return nil, err
	}
	if size == 0 {
		return nil, api.NewErrResultNotFound(fmt.Errorf("empty result %s", key))
	}
	r, err := c.store.LoadFile(ctx, key)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	var res recognizeResponse
	if err := json.NewDecoder(r).Decode(&res); err != nil {
		// a write in progress may surface as truncated JSON
		return nil, api.NewErrResultNotFound(fmt.Errorf("can't parse result %s: %v", key, err))
	}
	return &res, nil
}

func isRetryableFetch(err error) bool {
	var e *api.ErrResultNotFound
	return errors.As(err, &e)
}

// notify invokes the progress callback, a panic or slow consumer
// must never abort the surrounding job
func (c *Client) notify(f api.ProgressFunc, progress int, msg string) {
	if f == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			goapp.Log.Error().Msgf("progress callback failed: %v", r)
		}
	}()
	f(progress, msg)
}

func (c *Client) postJSON(ctx context.Context, urlStr string, in, out interface{}) error {
	b, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("can't marshal request: %w", err)
	}
	_, err = goapp.InvokeWithBackoff(ctx, func() (interface{}, bool, error) {
		ctxInt, cancelF := context.WithTimeout(ctx, c.timeout)
		defer cancelF()
		req, err := http.NewRequestWithContext(ctxInt, http.MethodPost, urlStr, bytes.NewReader(b))
		if err != nil {
			return nil, false, err
		}
		req.Header.Set("Content-Type", "application/json")
		goapp.Log.Debug().Str("url", urlStr).Str("method", req.Method).Msg("call")
		resp, err := c.httpclient.Do(req)
		if err != nil {
			return nil, goapp.IsRetryableErr(err), fmt.Errorf("can't call: %w", err)
		}
		defer closeBody(resp)
		if err := classifyStatus(resp.StatusCode, urlStr); err != nil {
			return nil, false, err
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return nil, false, fmt.Errorf("can't unmarshal: %w", err)
		}
		return nil, false, nil
	}, c.backoff())
	return err
}

// classifyStatus maps HTTP codes into the error taxonomy, the provider
// native payload never escapes past this boundary
func classifyStatus(code int, urlStr string) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusTooManyRequests:
		return api.NewErrQuotaExceeded(fmt.Errorf("'%s' returned %d", urlStr, code))
	case code == http.StatusBadRequest || code == http.StatusUnsupportedMediaType ||
		code == http.StatusUnprocessableEntity:
		return api.NewErrInvalidAudio(fmt.Errorf("'%s' returned %d", urlStr, code))
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return api.NewErrConfiguration(fmt.Errorf("'%s' returned %d - check recognizer credentials", urlStr, code))
	case code >= 500:
		return api.NewErrProviderUnavailable(fmt.Errorf("'%s' returned %d", urlStr, code))
	}
	return fmt.Errorf("'%s' returned %d", urlStr, code)
}

func closeBody(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 10000))
	_ = resp.Body.Close()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

func speechHTTPClient() *http.Client {
	return &http.Client{Transport: newTransport()}
}

func newTransport() http.RoundTripper {
	// default roundripper is not well suited for our case
	// it has just 2 idle connections per host, so try to tune a bit
	res := http.DefaultTransport.(*http.Transport).Clone()
	res.MaxConnsPerHost = 100
	res.MaxIdleConns = 50
	res.MaxIdleConnsPerHost = 50
	res.IdleConnTimeout = 90 * time.Second
	return res
}

func newSimpleBackoff() backoff.BackOff {
	res := backoff.NewExponentialBackOff()
	return backoff.WithMaxRetries(res, 3)
}
