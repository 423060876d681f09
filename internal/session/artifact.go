// internal/session/artifact.go
package session

import (
	"encoding/json"
	"fmt"
	"os"
)

// Cookie is one record of a captured browser session, in the JSON shape
// the capture helper exports. Expiry is epoch seconds, zero when the
// cookie carries none.
type Cookie struct {
	Domain string `json:"domain"`
	Path   string `json:"path"`
	Name   string `json:"name"`
	Value  string `json:"value"`
	Secure bool   `json:"secure"`
	Expiry int64  `json:"expiry,omitempty"`
}

// Artifact is a previously captured session: an opaque cookie set that
// grants dashboard access without an interactive login.
type Artifact struct {
	Path    string
	Cookies []Cookie
}

// Load reads a session artifact from disk. A missing file is returned as
// an os.ErrNotExist-wrapping error so callers can tell "never captured"
// from "corrupt".
func Load(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read session artifact: %w", err)
	}

	var cookies []Cookie
	if err := json.Unmarshal(data, &cookies); err != nil {
		return nil, fmt.Errorf("failed to parse session artifact %s: %w", path, err)
	}

	return &Artifact{Path: path, Cookies: cookies}, nil
}
