// Package widget identifies the storefront widget script behind a request
// and gates features on the script version it reports.
package widget

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dunglas/httpsfv"
	"golang.org/x/mod/semver"
)

// Header is the header the widget script sets on every request it routes
// through the proxy. RFC 8941 Dictionary, for example:
//
//	Bundle-Widget: session="sess_8f2a", version="1.4.0"
const Header = "Bundle-Widget"

// Client describes one widget instance as reported by its header.
type Client struct {
	// SessionID keys the selection session for this page view.
	SessionID string

	// Version is the widget script's semantic version, without a "v" prefix.
	Version string
}

// ParseHeader extracts the widget client from a Bundle-Widget header value.
// Returns an error if the header is empty, malformed, or missing the
// session key. A missing version is tolerated and reads as "0.0.0" so old
// scripts that predate version reporting still get a session.
func ParseHeader(header string) (Client, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return Client{}, errors.New("empty Bundle-Widget header")
	}

	dict, err := httpsfv.UnmarshalDictionary([]string{header})
	if err != nil {
		return Client{}, fmt.Errorf("invalid Bundle-Widget header: %w", err)
	}

	session, err := stringMember(dict, "session")
	if err != nil {
		return Client{}, err
	}
	if session == "" {
		return Client{}, errors.New("session key not found in Bundle-Widget header")
	}

	version, err := stringMember(dict, "version")
	if err != nil {
		return Client{}, err
	}
	if version == "" {
		version = "0.0.0"
	}
	if !semver.IsValid("v" + version) {
		return Client{}, fmt.Errorf("invalid widget version %q", version)
	}

	return Client{SessionID: session, Version: version}, nil
}

// Supported reports whether the client's script version is at or above the
// configured floor. An empty floor accepts every version.
func (c Client) Supported(minVersion string) bool {
	if minVersion == "" {
		return true
	}
	return semver.Compare("v"+c.Version, "v"+minVersion) >= 0
}

func stringMember(dict *httpsfv.Dictionary, key string) (string, error) {
	member, ok := dict.Get(key)
	if !ok {
		return "", nil
	}
	item, ok := member.(httpsfv.Item)
	if !ok {
		return "", fmt.Errorf("%s value must be an item", key)
	}
	value, ok := item.Value.(string)
	if !ok {
		return "", fmt.Errorf("%s value must be a string", key)
	}
	return value, nil
}
