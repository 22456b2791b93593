// Package foxess is a client for the FoxESS cloud telemetry API.
package foxess

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/levenlabs/go-lflag"

	"github.com/pvledger/pvledger/pkg/common"
	"github.com/pvledger/pvledger/pkg/log"
	"github.com/pvledger/pvledger/pkg/metrics"
	"github.com/pvledger/pvledger/pkg/normalize"
	"github.com/pvledger/pvledger/pkg/types"
)

// Provider status codes carried in the errno field of every response.
const (
	errnoOK           = 0
	errnoBadSignature = 40256
	errnoBadParams    = 40257
)

// Client signs and sends requests to the FoxESS cloud. Every query walks a
// fixed matrix of signing variants and request shapes and returns the first
// structurally valid success.
type Client struct {
	client        *http.Client
	baseURL       string
	cred          credentials
	serial        string
	lang          string
	unitThreshold float64
	loc           *time.Location
	now           func() time.Time

	mu             sync.Mutex
	resolvedSerial string
}

// Configured sets up flags for the FoxESS client and returns the instance.
func Configured() *Client {
	c := &Client{
		now: time.Now,
	}
	apiURL := lflag.String("foxess-api-url", "https://www.foxesscloud.com", "Base URL of the FoxESS cloud API")
	token := lflag.String("foxess-api-key", "", "FoxESS API key for token signing")
	appID := lflag.String("foxess-app-id", "", "FoxESS app ID for HMAC signing (takes precedence over the API key)")
	appSecret := lflag.String("foxess-app-secret", "", "FoxESS app secret for HMAC signing")
	serial := lflag.String("foxess-serial", "", "Inverter serial number. If empty and the account has one device it is used.")
	lang := lflag.String("foxess-lang", "pl", "Language header sent to FoxESS")
	timezone := lflag.String("foxess-timezone", "Europe/Warsaw", "Timezone FoxESS reports local times in")
	timeout := lflag.Duration("foxess-timeout", 15*time.Second, "HTTP timeout for a single FoxESS request")
	perSecond := 2.0
	lflag.JSON(&perSecond, "foxess-rate", perSecond, "Maximum FoxESS requests per second (0 disables limiting)")
	threshold := float64(normalize.DefaultUnitThreshold)
	lflag.JSON(&threshold, "foxess-unit-threshold", threshold, "Largest plausible kWh or kW sample before a series is treated as Wh or W")

	lflag.Do(func() {
		loc, err := time.LoadLocation(*timezone)
		if err != nil {
			panic(fmt.Errorf("failed to load foxess timezone (%s): %w", *timezone, err))
		}
		c.baseURL = *apiURL
		c.cred = credentials{
			token:     *token,
			appID:     *appID,
			appSecret: *appSecret,
		}
		c.serial = *serial
		c.lang = *lang
		c.loc = loc
		c.unitThreshold = threshold
		c.client = common.RateLimited(common.HTTPClient(*timeout), common.NewLimiter(perSecond))
	})

	return c
}

// Validate ensures the configuration is valid. Missing credentials are not a
// configuration error here since price-only endpoints still work without
// them.
func (c *Client) Validate() error {
	if c.baseURL == "" {
		return fmt.Errorf("foxess-api-url is required")
	}
	if _, err := url.Parse(c.baseURL); err != nil {
		return fmt.Errorf("failed to parse foxess url (%s): %w", c.baseURL, err)
	}
	if (c.cred.appID == "") != (c.cred.appSecret == "") {
		return fmt.Errorf("foxess-app-id and foxess-app-secret must be set together")
	}
	return nil
}

// HasCredentials returns true if either signing mode is configured.
func (c *Client) HasCredentials() bool {
	return c.cred.configured()
}

type foxessResponse struct {
	Errno   *int            `json:"errno"`
	Msg     string          `json:"msg"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

func (r foxessResponse) message() string {
	if r.Msg != "" {
		return r.Msg
	}
	return r.Message
}

// errTransient marks a failure where the request never produced a provider
// answer, such as a timeout or a non-2xx status.
var errTransient = errors.New("transient failure")

// query runs op through every signing variant and request shape until one
// returns a result op accepts.
func (c *Client) query(ctx context.Context, op operation, p params) (json.RawMessage, error) {
	vs := variants(c.cred)
	if len(vs) == 0 {
		return nil, fmt.Errorf("%w: foxess-api-key or foxess-app-id/foxess-app-secret", types.ErrConfigurationMissing)
	}

	var (
		attempts int
		lastErr  error
	)
nextVariant:
	for _, v := range vs {
		for _, shape := range op.shapes {
			attempts++
			l := log.Ctx(ctx).With(
				slog.String("operation", string(op.name)),
				slog.String("variant", v.Name),
				slog.String("shape", shape.Name),
			)

			body, err := json.Marshal(shape.Body(p))
			if err != nil {
				return nil, fmt.Errorf("failed to encode %s body: %w", op.name, err)
			}
			res, err := c.attempt(ctx, op, v, body)
			if err == nil {
				if op.accept(res.Result) {
					metrics.UpstreamAttempts.WithLabelValues(string(op.name), v.Name, "ok").Inc()
					l.DebugContext(ctx, "foxess request succeeded", slog.Int("attempt", attempts))
					return res.Result, nil
				}
				metrics.UpstreamAttempts.WithLabelValues(string(op.name), v.Name, "unrecognized").Inc()
				l.DebugContext(ctx, "foxess result shape not recognized, trying next shape")
				lastErr = fmt.Errorf("%s: %w", op.name, normalize.ErrUnrecognizedShape)
				continue
			}

			var apiErr *types.APIError
			switch {
			case errors.As(err, &apiErr) && apiErr.Errno == errnoBadSignature:
				metrics.UpstreamAttempts.WithLabelValues(string(op.name), v.Name, "bad_signature").Inc()
				l.DebugContext(ctx, "foxess rejected signature, trying next variant", slog.Int("errno", apiErr.Errno))
				lastErr = err
				continue nextVariant
			case errors.As(err, &apiErr) && apiErr.Errno == errnoBadParams:
				metrics.UpstreamAttempts.WithLabelValues(string(op.name), v.Name, "bad_params").Inc()
				l.DebugContext(ctx, "foxess rejected parameters, trying next shape", slog.Int("errno", apiErr.Errno))
				lastErr = err
				continue
			case errors.As(err, &apiErr):
				metrics.UpstreamAttempts.WithLabelValues(string(op.name), v.Name, "api_error").Inc()
				l.WarnContext(ctx, "foxess api error", slog.Int("errno", apiErr.Errno), slog.String("message", apiErr.Message))
				return nil, err
			case errors.Is(err, errTransient):
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				metrics.UpstreamAttempts.WithLabelValues(string(op.name), v.Name, "network").Inc()
				l.WarnContext(ctx, "foxess request failed, trying next variant", slog.Any("error", err))
				lastErr = err
				continue nextVariant
			default:
				metrics.UpstreamAttempts.WithLabelValues(string(op.name), v.Name, "malformed").Inc()
				l.WarnContext(ctx, "foxess response malformed", slog.Any("error", err))
				return nil, err
			}
		}
	}
	return nil, fmt.Errorf("%w: %s after %d attempts: %v", types.ErrSigningRejected, op.name, attempts, lastErr)
}

// attempt sends a single signed request.
func (c *Client) attempt(ctx context.Context, op operation, v SigningVariant, body []byte) (foxessResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+op.path, bytes.NewReader(body))
	if err != nil {
		return foxessResponse{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("lang", c.lang)
	timestamp := strconv.FormatInt(c.clock().UnixMilli(), 10)
	v.Sign(c.cred, op.path, body, timestamp, req.Header)

	resp, err := c.client.Do(req)
	if err != nil {
		return foxessResponse{}, fmt.Errorf("%w: %w", errTransient, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return foxessResponse{}, fmt.Errorf("%w: %w", errTransient, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return foxessResponse{}, fmt.Errorf("%w: status %d", errTransient, resp.StatusCode)
	}

	var fr foxessResponse
	if err := json.Unmarshal(respBody, &fr); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to decode foxess response", slog.Any("error", err), slog.String("body", string(respBody)))
		return foxessResponse{}, fmt.Errorf("%w: %s: %w", types.ErrUpstreamMalformed, op.name, err)
	}
	if fr.Errno == nil {
		log.Ctx(ctx).ErrorContext(ctx, "foxess response missing errno", slog.String("body", string(respBody)))
		return foxessResponse{}, fmt.Errorf("%w: %s: missing errno", types.ErrUpstreamMalformed, op.name)
	}
	if *fr.Errno != errnoOK {
		return foxessResponse{}, &types.APIError{
			Op:      string(op.name),
			Errno:   *fr.Errno,
			Message: fr.message(),
		}
	}
	return fr, nil
}
