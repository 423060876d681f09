// internal/database/models.go
package database

import (
	"time"

	"solarwatch/internal/status"
)

// SiteState is the one durable row kept per site.
type SiteState struct {
	Site      string        `json:"site"`
	Status    status.Status `json:"status"`
	UpdatedAt time.Time     `json:"updated_at"`
}
