package credentials

import (
	"regexp"
	"strings"

	"golang.org/x/mod/semver"

	"tollgate/internal/tenant/models"
)

// RequestInfo is the caller's claimed identity, normalized from headers,
// basic auth and body overrides. Empty strings mean "not supplied".
type RequestInfo struct {
	AppID          string
	SessionToken   string
	MasterKey      string
	MaintenanceKey string
	InstallationID string
	ClientKey      string
	JavaScriptKey  string
	DotNetKey      string
	RestAPIKey     string
	ClientVersion  string
	ClientSDK      *ClientSDK
	Context        map[string]any

	// ContentType overrides the request content type when set from the body.
	ContentType string
	// FileViaJSON marks a file upload that arrived as a JSON document.
	FileViaJSON bool
	// FileData is the "fileData" member of a file-via-JSON upload.
	FileData any
}

// ClientKeyFor returns the caller-supplied value for a client key kind.
func (i *RequestInfo) ClientKeyFor(kind string) string {
	switch kind {
	case models.ClientKeyKindClient:
		return i.ClientKey
	case models.ClientKeyKindJavaScript:
		return i.JavaScriptKey
	case models.ClientKeyKindDotNet:
		return i.DotNetKey
	case models.ClientKeyKindRestAPI:
		return i.RestAPIKey
	}
	return ""
}

// ClientSDK identifies the client library and its version.
type ClientSDK struct {
	SDK     string
	Version string
}

var clientVersionRE = regexp.MustCompile(`([-a-zA-Z]+)([0-9.]+)`)

// ParseClientSDK parses a client version such as "js1.9.2". It returns nil
// when the string carries no recognizable sdk/version pair.
func ParseClientSDK(version string) *ClientSDK {
	m := clientVersionRE.FindStringSubmatch(strings.ToLower(version))
	if m == nil {
		return nil
	}
	return &ClientSDK{SDK: m[1], Version: m[2]}
}

// Satisfies reports whether the client meets the minimum version configured
// for its sdk. Clients of sdks absent from minimums, and unparseable
// versions, are accepted.
func (c *ClientSDK) Satisfies(minimums map[string]string) bool {
	if c == nil {
		return true
	}
	minimum, ok := minimums[c.SDK]
	if !ok {
		return true
	}
	have := canonical(c.Version)
	want := canonical(strings.TrimPrefix(minimum, ">="))
	if !semver.IsValid(have) || !semver.IsValid(want) {
		return true
	}
	return semver.Compare(have, want) >= 0
}

func canonical(v string) string {
	return "v" + strings.Trim(strings.TrimSpace(v), ".")
}
