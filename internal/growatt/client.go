// internal/growatt/client.go - Vendor telemetry API client
package growatt

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// rate-limit error code returned by the open API when polled too often
const errFrequentAccess = "error_frequently_access"

// Client talks to a Growatt-compatible open API. One client is shared by
// every ApiPoll site; the per-site token travels with each request.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	location   *time.Location
}

// PlantData is the slice of the vendor payload the monitor cares about.
type PlantData struct {
	CurrentPowerKW float64
	LastUpdateAt   *time.Time
}

// APIError is a vendor-level failure: either a non-2xx HTTP response or
// a payload with a non-zero error_code.
type APIError struct {
	HTTPStatus int
	Code       int
	Message    string
}

func (e *APIError) Error() string {
	if e.HTTPStatus != 0 {
		return fmt.Sprintf("growatt API HTTP %d", e.HTTPStatus)
	}
	return fmt.Sprintf("growatt API error %d: %s", e.Code, e.Message)
}

// ServerFault reports whether the failure was on the vendor's side (5xx).
func (e *APIError) ServerFault() bool {
	return e.HTTPStatus >= 500 && e.HTTPStatus < 600
}

// RateLimited reports whether the vendor rejected the poll for frequency.
func (e *APIError) RateLimited() bool {
	return e.Message == errFrequentAccess
}

func NewClient(baseURL string, timeout time.Duration, utcOffsetHours int, perSecond float64) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(perSecond), 1),
		location:   time.FixedZone(fmt.Sprintf("UTC%+d", utcOffsetHours), utcOffsetHours*3600),
	}
}

// powerValue tolerates the vendor sending current_power as a number, a
// quoted number, or null.
type powerValue float64

func (p *powerValue) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*p = 0
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("unexpected current_power value %q: %w", s, err)
	}
	*p = powerValue(f)
	return nil
}

type plantDataEnvelope struct {
	ErrorCode int    `json:"error_code"`
	ErrorMsg  string `json:"error_msg"`
	Data      struct {
		CurrentPower   powerValue `json:"current_power"`
		LastUpdateTime string     `json:"last_update_time"`
	} `json:"data"`
}

// PlantData fetches the current power and last telemetry time for one
// plant. The last_update_time string carries no zone; the vendor reports
// it in the configured fixed offset.
func (c *Client) PlantData(ctx context.Context, token string, plantID int64) (*PlantData, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/plant/data?%s", c.baseURL,
		url.Values{"plant_id": {strconv.FormatInt(plantID, 10)}}.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("token", token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("plant data request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{HTTPStatus: resp.StatusCode}
	}

	var envelope plantDataEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("failed to decode plant data payload: %w", err)
	}

	if envelope.ErrorCode != 0 {
		return nil, &APIError{Code: envelope.ErrorCode, Message: envelope.ErrorMsg}
	}

	data := &PlantData{CurrentPowerKW: float64(envelope.Data.CurrentPower)}

	if raw := strings.TrimSpace(envelope.Data.LastUpdateTime); raw != "" {
		t, err := time.ParseInLocation("2006-01-02 15:04:05", raw, c.location)
		if err == nil {
			data.LastUpdateAt = &t
		}
		// an unparseable timestamp is dropped, not fatal: the power
		// reading alone is still a usable signal
	}

	return data, nil
}
