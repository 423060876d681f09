// internal/acquire/api.go - ApiPoll strategy against the vendor telemetry API
package acquire

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"solarwatch/internal/config"
	"solarwatch/internal/growatt"
	"solarwatch/internal/status"
)

// APIPoller acquires telemetry through the vendor open API. It is the
// cheap path: no browser, one authenticated GET per site.
type APIPoller struct {
	client *growatt.Client
}

func NewAPIPoller(client *growatt.Client) *APIPoller {
	return &APIPoller{client: client}
}

func (p *APIPoller) Name() string {
	return "api_poll"
}

func (p *APIPoller) Acquire(ctx context.Context, site *config.Site) (status.Sample, error) {
	token := os.Getenv(site.TokenEnv)
	if token == "" {
		return status.Sample{}, configErr("resolve token",
			fmt.Errorf("environment variable %s is not set", site.TokenEnv))
	}

	data, err := p.client.PlantData(ctx, token, site.PlantID)
	if err != nil {
		return status.Sample{}, classifyAPIError(err)
	}

	logrus.WithFields(logrus.Fields{
		"site":          site.Name,
		"current_power": data.CurrentPowerKW,
		"last_update":   data.LastUpdateAt,
	}).Info("Telemetry received from vendor API")

	power := data.CurrentPowerKW
	return status.Sample{
		CurrentPowerKW: &power,
		LastUpdateAt:   data.LastUpdateAt,
	}, nil
}

func classifyAPIError(err error) error {
	var apiErr *growatt.APIError
	if errors.As(err, &apiErr) {
		if apiErr.ServerFault() {
			return transientErr("vendor API", apiErr)
		}
		if apiErr.RateLimited() {
			return transientErr("vendor API rate limit", apiErr)
		}
		return permanentErr("vendor API", apiErr)
	}
	// transport-level failure: connection refused, DNS, client timeout
	return transientErr("vendor API request", err)
}
