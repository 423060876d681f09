// internal/session/health.go - Expiry inspection for captured sessions
package session

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"math"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Health reports how close a captured session is to expiring.
type Health struct {
	DaysRemaining int
	NeedsRenewal  bool
	ExpiresAt     *time.Time
	Detail        string
}

// InspectFile checks the artifact at path. A missing or unreadable file
// always needs renewal; an artifact without any bearer token does not,
// since there is no expiry signal to act on.
func InspectFile(path string, now time.Time, warnDays int) Health {
	art, err := Load(path)
	if err != nil {
		detail := "session artifact unreadable: " + err.Error()
		if errors.Is(err, os.ErrNotExist) {
			detail = "session artifact not found"
		}
		return Health{DaysRemaining: 0, NeedsRenewal: true, Detail: detail}
	}
	return Inspect(art, now, warnDays)
}

// Inspect scans the artifact's cookies for a three-segment bearer token
// and derives the days remaining from its exp claim.
func Inspect(art *Artifact, now time.Time, warnDays int) Health {
	for _, c := range art.Cookies {
		exp, ok := tokenExpiry(c.Value)
		if !ok {
			continue
		}

		days := int(math.Floor(exp.Sub(now).Hours() / 24))
		return Health{
			DaysRemaining: days,
			NeedsRenewal:  days <= warnDays,
			ExpiresAt:     &exp,
		}
	}

	return Health{DaysRemaining: 0, NeedsRenewal: false, Detail: "no bearer token in artifact"}
}

// tokenExpiry extracts the exp claim from a three-segment token value.
// Standard JWTs go through the jwt parser; values whose header segment is
// not valid JWT JSON still get their middle segment decoded directly.
func tokenExpiry(value string) (time.Time, bool) {
	if strings.Count(value, ".") != 2 {
		return time.Time{}, false
	}

	if tok, _, err := jwt.NewParser().ParseUnverified(value, jwt.MapClaims{}); err == nil {
		if exp, err := tok.Claims.GetExpirationTime(); err == nil && exp != nil {
			return exp.Time, true
		}
	}

	payload := strings.Split(value, ".")[1]
	if pad := len(payload) % 4; pad != 0 {
		payload += strings.Repeat("=", 4-pad)
	}

	raw, err := base64.URLEncoding.DecodeString(payload)
	if err != nil {
		raw, err = base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return time.Time{}, false
		}
	}

	var claims struct {
		Exp int64 `json:"exp"`
	}
	if err := json.Unmarshal(raw, &claims); err != nil || claims.Exp == 0 {
		return time.Time{}, false
	}
	return time.Unix(claims.Exp, 0), true
}
