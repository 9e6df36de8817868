// Package csmsclient reaches the CSMS admin API over HTTP. The
// simulator control plane uses it as its smart-charging backend when
// the CSMS runs as a separate process; a circuit breaker fails calls
// fast while the CSMS is unreachable.
package csmsclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	v16 "github.com/seu-repo/ocpp-swarm/internal/ocpp/v16"
	"github.com/seu-repo/ocpp-swarm/internal/ports"
)

const defaultTimeout = 30 * time.Second

// APIError is a non-2xx response from the CSMS admin API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("csms returned %d: %s", e.Status, e.Message)
}

// Config tunes the client and its circuit breaker.
type Config struct {
	// BaseURL is the CSMS admin root, e.g. http://localhost:8081
	BaseURL string

	// AuthToken is sent as a bearer token when non-empty.
	AuthToken string

	// HTTP client timeout
	Timeout time.Duration

	// Circuit breaker settings
	MaxRequests      uint32
	Interval         time.Duration
	BreakerTimeout   time.Duration
	FailureThreshold float64
}

// Client implements ports.SmartCharging against a remote CSMS.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	log     *zap.Logger
}

// New creates a new CSMS admin client.
func New(cfg Config, log *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxRequests == 0 {
		cfg.MaxRequests = 3
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = 30 * time.Second
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 0.6
	}
	if log == nil {
		log = zap.NewNop()
	}

	settings := gobreaker.Settings{
		Name:        "csms-admin",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warn("csms client circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		// 4xx responses are the caller's problem, not CSMS health.
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			var apiErr *APIError
			return errors.As(err, &apiErr) && apiErr.Status < 500
		},
	}

	return &Client{
		baseURL: cfg.BaseURL,
		token:   cfg.AuthToken,
		http:    &http.Client{Timeout: cfg.Timeout},
		breaker: gobreaker.NewCircuitBreaker(settings),
		log:     log,
	}
}

// SendChargingProfile pushes a charging profile to a station through
// the CSMS.
func (c *Client) SendChargingProfile(ctx context.Context, stationID string, connectorID int, profile v16.ChargingProfile) (*ports.ProfileSendResult, error) {
	body := map[string]interface{}{
		"connector_id": connectorID,
		"profile":      profile,
	}

	var result ports.ProfileSendResult
	path := fmt.Sprintf("/api/v1/csms/stations/%s/charging-profiles", url.PathEscape(stationID))
	if err := c.doJSON(ctx, http.MethodPost, path, body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetCompositeSchedule asks the CSMS for a station's composite
// charging schedule.
func (c *Client) GetCompositeSchedule(ctx context.Context, stationID string, connectorID, durationSec int, unit v16.ChargingRateUnit) (*ports.CompositeScheduleResult, error) {
	query := url.Values{}
	query.Set("connector_id", strconv.Itoa(connectorID))
	query.Set("duration", strconv.Itoa(durationSec))
	if unit != "" {
		query.Set("unit", string(unit))
	}

	var result ports.CompositeScheduleResult
	path := fmt.Sprintf("/api/v1/csms/stations/%s/composite-schedule?%s", url.PathEscape(stationID), query.Encode())
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ClearChargingProfile removes profiles matching the filters.
func (c *Client) ClearChargingProfile(ctx context.Context, stationID string, filters ports.ClearFilters) (*ports.ClearProfileResult, error) {
	var result ports.ClearProfileResult
	path := fmt.Sprintf("/api/v1/csms/stations/%s/charging-profiles", url.PathEscape(stationID))
	if err := c.doJSON(ctx, http.MethodDelete, path, filters, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SendTestProfile has the CSMS generate and send a scenario profile.
func (c *Client) SendTestProfile(ctx context.Context, stationID, scenario string, params ports.TestProfileParams) (*ports.TestProfileResult, error) {
	body := map[string]interface{}{
		"scenario": scenario,
		"params":   params,
	}

	var result ports.TestProfileResult
	path := fmt.Sprintf("/api/v1/csms/stations/%s/test-profile", url.PathEscape(stationID))
	if err := c.doJSON(ctx, http.MethodPost, path, body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// doJSON runs one round trip through the circuit breaker, decoding a
// JSON response into out.
func (c *Client) doJSON(ctx context.Context, method, path string, body, out interface{}) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.roundTrip(ctx, method, path, body, out)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		c.log.Warn("csms request blocked, circuit open",
			zap.String("method", method),
			zap.String("path", path),
		)
	}
	return err
}

func (c *Client) roundTrip(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("csms request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return &APIError{Status: resp.StatusCode, Message: readErrorMessage(resp.Body)}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// readErrorMessage extracts the error field the admin API puts in
// failure responses, falling back to the raw body.
func readErrorMessage(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(raw) == 0 {
		return "no response body"
	}

	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Error != "" {
		return payload.Error
	}
	return string(raw)
}
