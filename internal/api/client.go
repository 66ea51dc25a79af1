// Package api implements a client for the Poseidon (EnOS) device-data gateway.
//
// Every request is a signed JSON POST:
//
//	Authorization: AccessKey <access key>
//	timestamp:     <unix milliseconds>
//	signature:     base64(HMAC-SHA256(secret key, timestamp))
//
// Responses share the envelope {"code": 0, "msg": "...", "data": {...}}; a
// non-zero code is an error even when the HTTP status is 200.
package api

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/tejusbharadwaj/univers/internal/config"
	"github.com/tejusbharadwaj/univers/internal/ferrors"
	"github.com/tejusbharadwaj/univers/internal/metrics"
)

// Options tunes a Client. Zero values pick defaults.
type Options struct {
	HTTPClient     *http.Client
	Timeout        time.Duration
	RateLimit      float64 // requests per second, 0 = unlimited
	RateLimitBurst int
	Logger         *logrus.Logger
	Metrics        *metrics.Metrics

	// now is the signing clock; tests pin it.
	now func() time.Time
}

// Client talks to one project's gateway with that project's credentials.
type Client struct {
	project config.ProjectConfig
	http    *http.Client
	timeout time.Duration
	limiter *rate.Limiter
	logger  *logrus.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewClient validates the project and builds a client for it. Malformed
// credentials are rejected here, before any network call.
func NewClient(project config.ProjectConfig, opts Options) (*Client, error) {
	if err := project.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ferrors.ErrInvalidRequest, err)
	}

	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.now == nil {
		opts.now = time.Now
	}

	limit := rate.Inf
	if opts.RateLimit > 0 {
		limit = rate.Limit(opts.RateLimit)
	}
	burst := opts.RateLimitBurst
	if burst < 1 {
		burst = 1
	}

	return &Client{
		project: project,
		http:    opts.HTTPClient,
		timeout: opts.Timeout,
		limiter: rate.NewLimiter(limit, burst),
		logger:  opts.Logger,
		metrics: opts.Metrics,
		now:     opts.now,
	}, nil
}

// Project returns the project this client is bound to.
func (c *Client) Project() config.ProjectConfig {
	return c.project
}

// Sign computes the request signature for a millisecond timestamp.
func Sign(secretKey, timestamp string) string {
	mac := hmac.New(sha256.New, []byte(secretKey))
	mac.Write([]byte(timestamp))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// endpointURL builds {gateway}/{path}?action=...&orgId=...
func (c *Client) endpointURL(path string, query url.Values) string {
	if query == nil {
		query = url.Values{}
	}
	query.Set("orgId", c.project.OrgID)
	return strings.TrimRight(c.project.APIGateway, "/") + path + "?" + query.Encode()
}

// post sends a signed request and decodes the envelope's data into out.
func (c *Client) post(ctx context.Context, endpoint, path string, query url.Values, body, out interface{}) error {
	start := time.Now()
	err := c.doPost(ctx, path, query, body, out)
	c.metrics.ObserveAPICall(endpoint, outcome(err), time.Since(start))
	return err
}

func (c *Client) doPost(ctx context.Context, path string, query url.Values, body, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	target := c.endpointURL(path, query)
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%w: %v", ferrors.ErrInvalidRequest, err)
	}

	timestamp := strconv.FormatInt(c.now().UnixMilli(), 10)
	requestID := uuid.NewString()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "AccessKey "+c.project.AccessKey)
	req.Header.Set("timestamp", timestamp)
	req.Header.Set("signature", Sign(c.project.SecretKey, timestamp))
	req.Header.Set("X-Request-Id", requestID)

	log := c.logger.WithFields(logrus.Fields{
		"project":    c.project.Name,
		"path":       path,
		"request_id": requestID,
	})
	log.Debug("Calling Poseidon API")

	resp, err := c.http.Do(req)
	if err != nil {
		// caller cancellation is not a vendor failure; our own timeout is
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %v", ferrors.ErrTransientFetch, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: failed to read response: %v", ferrors.ErrTransientFetch, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		statusErr := newStatusError(resp.StatusCode, 0, strings.TrimSpace(string(data)))
		log.WithField("status", resp.StatusCode).Warn("Poseidon API returned an error status")
		return statusErr
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if env.Code != 0 {
		log.WithFields(logrus.Fields{"code": env.Code, "msg": env.Msg}).Warn("Poseidon API returned an error code")
		return newStatusError(resp.StatusCode, env.Code, env.Msg)
	}

	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(env.Data))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("failed to decode response data: %w", err)
	}
	return nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ferrors.ErrAuthentication):
		return "auth_error"
	case errors.Is(err, ferrors.ErrTransientFetch):
		return "transient_error"
	default:
		return "error"
	}
}
