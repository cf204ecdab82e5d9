// Package intellicar provides a client for the Intellicar standard fleet API.
package intellicar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/itarang/telematics-exporter/internal/config"
	"github.com/itarang/telematics-exporter/internal/record"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

// Client interacts with the Intellicar API. All endpoints are JSON POSTs that answer with
// {"status": "...", "data": ...}.
type Client struct {
	httpClient *http.Client
	baseURL    string
	username   string
	password   string
	logger     *zerolog.Logger
}

// NewClient creates a new instance of Client with all config from settings.
func NewClient(settings *config.Settings, httpClient *http.Client, logger zerolog.Logger) (*Client, error) {
	if httpClient == nil {
		return nil, fmt.Errorf("HTTP client is required")
	}
	if settings.IntellicarBaseURL == "" {
		return nil, fmt.Errorf("intellicar base URL is required")
	}
	if _, err := url.Parse(settings.IntellicarBaseURL); err != nil {
		return nil, fmt.Errorf("error parsing intellicar base URL: %w", err)
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    settings.IntellicarBaseURL,
		username:   settings.IntellicarUsername,
		password:   settings.IntellicarPassword,
		logger:     &logger,
	}, nil
}

// Username returns the account the client authenticates as.
func (c *Client) Username() string {
	return c.username
}

// GetToken implements the tokencache.TokenGetter interface. The key is ignored since the client
// holds a single credential pair.
func (c *Client) GetToken(ctx context.Context, _ string) (string, error) {
	return c.Authenticate(ctx)
}

// Authenticate exchanges the configured credentials for a bearer token.
// A rejected login is reported as *AuthError.
func (c *Client) Authenticate(ctx context.Context) (string, error) {
	body, err := c.post(ctx, tokenEndpoint, tokenRequest{Username: c.username, Password: c.password})
	if err != nil {
		return "", err
	}
	resp := gjson.ParseBytes(body)
	token := resp.Get("data.token").String()
	if resp.Get("status").String() != statusSuccess || token == "" {
		return "", &AuthError{Payload: string(body)}
	}
	return token, nil
}

// ListVehicles returns the vehicle numbers visible to token, in API order.
// A rejected request returns an empty list and an error wrapping ErrFleetLookup.
func (c *Client) ListVehicles(ctx context.Context, token string) ([]string, error) {
	body, err := c.post(ctx, vehicleEndpoint, map[string]any{"token": token})
	if err != nil {
		return []string{}, err
	}
	resp := gjson.ParseBytes(body)
	if resp.Get("status").String() != statusSuccess {
		return []string{}, fmt.Errorf("%w: %s", ErrFleetLookup, string(body))
	}

	vehicles := []string{}
	for _, entry := range resp.Get("data").Array() {
		vehicleNo := entry.Get(record.VehicleNoField)
		if !vehicleNo.Exists() || vehicleNo.String() == "" {
			c.logger.Warn().Str("entry", entry.Raw).Msg("skipping vehicle mapping without vehicle number")
			continue
		}
		vehicles = append(vehicles, vehicleNo.String())
	}
	return vehicles, nil
}

// Fetch calls a data endpoint for one vehicle and returns its readings tagged with the vehicle
// number. A non-success status or empty data returns an error wrapping ErrSoftMiss.
func (c *Client) Fetch(ctx context.Context, token string, req Request) ([]*record.Record, error) {
	payload := map[string]any{
		"token":     token,
		"vehicleno": req.VehicleNo,
	}
	if req.Window != nil {
		payload["starttime"] = req.Window.Start
		payload["endtime"] = req.Window.End
	}
	for k, v := range req.Extra {
		payload[k] = v
	}

	body, err := c.post(ctx, req.Endpoint, payload)
	if err != nil {
		return nil, err
	}
	resp := gjson.ParseBytes(body)
	if status := resp.Get("status").String(); status != statusSuccess {
		return nil, fmt.Errorf("%w: %s returned status %q", ErrSoftMiss, req.Endpoint, status)
	}

	data := resp.Get("data")
	var records []*record.Record
	switch {
	case data.IsArray():
		for _, item := range data.Array() {
			if !item.IsObject() {
				continue
			}
			records = append(records, toRecord(item, req.FlattenMetrics))
		}
	case data.IsObject():
		records = append(records, toRecord(data, req.FlattenMetrics))
	}

	// Drop readings that carried no fields at all, like an empty data object.
	kept := records[:0]
	for _, rec := range records {
		if rec.Len() > 0 {
			kept = append(kept, rec)
		}
	}
	if len(kept) == 0 {
		return nil, fmt.Errorf("%w: %s returned no data", ErrSoftMiss, req.Endpoint)
	}
	for _, rec := range kept {
		rec.SetVehicleNo(req.VehicleNo)
	}
	return kept, nil
}

func (c *Client) post(ctx context.Context, endpoint string, payload any) ([]byte, error) {
	endpointURL, err := url.JoinPath(c.baseURL, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s URL: %w", endpoint, err)
	}
	reqBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s request: %w", endpoint, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpointURL, bytes.NewBuffer(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create %s request: %w", endpoint, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send %s request: %w", endpoint, err)
	}
	defer resp.Body.Close() //nolint:errcheck // ignore error

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response body: %w", endpoint, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("non-200 response from %s: %d; %s", endpoint, resp.StatusCode, string(bodyBytes))
	}
	if !gjson.ValidBytes(bodyBytes) {
		return nil, fmt.Errorf("invalid JSON response from %s", endpoint)
	}
	return bodyBytes, nil
}

// toRecord converts a JSON object into a record, keeping the key order of the response.
func toRecord(obj gjson.Result, flatten bool) *record.Record {
	rec := record.New()
	obj.ForEach(func(key, value gjson.Result) bool {
		if flatten && value.IsObject() {
			rec.Set(key.String()+"_value", scalar(value.Get("value")))
			rec.Set(key.String()+"_timestamp", scalar(value.Get("timestamp")))
			return true
		}
		rec.Set(key.String(), scalar(value))
		return true
	})
	return rec
}

// scalar renders a JSON value as a CSV cell. Numbers keep their original text so epoch values
// are not reformatted; nested values are kept as raw JSON.
func scalar(value gjson.Result) string {
	switch value.Type {
	case gjson.Null:
		return ""
	case gjson.String:
		return value.Str
	case gjson.Number:
		return value.Raw
	case gjson.True:
		return "true"
	case gjson.False:
		return "false"
	default:
		return value.Raw
	}
}
