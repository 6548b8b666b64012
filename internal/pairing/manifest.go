package pairing

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Manifest is the native messaging host manifest read by the browser.
type Manifest struct {
	Name           string   `json:"name"`
	Description    string   `json:"description"`
	Path           string   `json:"path"`
	Type           string   `json:"type"`
	AllowedOrigins []string `json:"allowed_origins"`
}

// ExtensionOrigin converts an extension id into the origin form the browser
// expects in allowed_origins.
func ExtensionOrigin(extID string) string {
	return "chrome-extension://" + strings.TrimSpace(extID) + "/"
}

// NewManifest builds a stdio manifest allowing the given extension ids.
func NewManifest(name, description, executable string, extIDs []string) (Manifest, error) {
	if strings.TrimSpace(name) == "" {
		return Manifest{}, fmt.Errorf("manifest name is required")
	}
	if strings.TrimSpace(executable) == "" {
		return Manifest{}, fmt.Errorf("manifest executable path is required")
	}
	origins := make([]string, 0, len(extIDs))
	for _, id := range extIDs {
		if strings.TrimSpace(id) == "" {
			continue
		}
		origins = append(origins, ExtensionOrigin(id))
	}
	if len(origins) == 0 {
		return Manifest{}, ErrMissingExtensionID
	}
	return Manifest{
		Name:           name,
		Description:    description,
		Path:           executable,
		Type:           "stdio",
		AllowedOrigins: origins,
	}, nil
}

// Encode renders the manifest the way it is stored on disk.
func (m Manifest) Encode() ([]byte, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}
	return append(data, '\n'), nil
}
