// Package credentials turns raw request headers, basic auth and legacy body
// fields into a normalized RequestInfo.
package credentials

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"

	"tollgate/internal/tenant/models"
	dErrors "tollgate/pkg/domain-errors"
)

// TenantLookup answers whether an app id is registered.
type TenantLookup interface {
	Lookup(appID string) (*models.Tenant, bool)
}

// Extractor builds RequestInfo records.
type Extractor struct {
	tenants TenantLookup
}

// NewExtractor creates an extractor backed by a read-only tenant lookup.
func NewExtractor(tenants TenantLookup) *Extractor {
	return &Extractor{tenants: tenants}
}

const javascriptKeyPrefix = "javascript-key="

// Extract reads the caller's identity from r and body. Consumed body
// meta-fields are removed from body in place; a file-via-JSON upload is
// rewritten to its decoded bytes. The returned error carries
// CodeMalformedContext or CodeInvalidRequest.
func (e *Extractor) Extract(r *http.Request, body *Body) (*RequestInfo, error) {
	h := r.Header
	info := &RequestInfo{
		AppID:          h.Get(HeaderApplicationID),
		SessionToken:   h.Get(HeaderSessionToken),
		MasterKey:      h.Get(HeaderMasterKey),
		MaintenanceKey: h.Get(HeaderMaintenanceKey),
		InstallationID: h.Get(HeaderInstallationID),
		ClientKey:      h.Get(HeaderClientKey),
		JavaScriptKey:  h.Get(HeaderJavaScriptKey),
		DotNetKey:      h.Get(HeaderDotNetKey),
		RestAPIKey:     h.Get(HeaderRestAPIKey),
		ClientVersion:  h.Get(HeaderClientVersion),
		Context:        map[string]any{},
	}

	if _, present := h[http.CanonicalHeaderKey(HeaderCloudContext)]; present {
		ctx, err := parseContext(h.Get(HeaderCloudContext))
		if err != nil {
			return nil, err
		}
		info.Context = ctx
	}

	e.applyBasicAuth(r, info)

	if body != nil && body.Fields != nil {
		delete(body.Fields, FieldNoBody)
	}

	if !e.known(info.AppID) {
		if err := e.recoverFromBody(body, info); err != nil {
			return nil, err
		}
	}

	if info.ClientVersion != "" {
		info.ClientSDK = ParseClientSDK(info.ClientVersion)
	}

	if info.FileViaJSON {
		if err := rehydrateFile(body, info); err != nil {
			return nil, err
		}
	}
	return info, nil
}

func (e *Extractor) known(appID string) bool {
	if appID == "" {
		return false
	}
	_, ok := e.tenants.Lookup(appID)
	return ok
}

// applyBasicAuth fills app id and keys from "appId:key" basic credentials.
// Unknown app ids are ignored.
func (e *Extractor) applyBasicAuth(r *http.Request, info *RequestInfo) {
	appID, key, ok := r.BasicAuth()
	if !ok || strings.Contains(key, ":") || !e.known(appID) {
		return
	}
	info.AppID = appID
	if jsKey, isJS := strings.CutPrefix(key, javascriptKeyPrefix); isJS {
		if jsKey != "" {
			info.JavaScriptKey = jsKey
		}
		return
	}
	if key != "" {
		info.MasterKey = key
	}
}

// recoverFromBody looks for the app id among the body meta-fields. The body
// override is trusted only for a registered app id, and only when the
// caller supplied no master key or the tenant's own master key.
func (e *Extractor) recoverFromBody(body *Body, info *RequestInfo) error {
	if body == nil {
		return invalidRequest("no usable application id")
	}

	if body.Fields == nil {
		var fields map[string]any
		if err := json.Unmarshal(body.Raw, &fields); err != nil || fields == nil {
			return invalidRequest("binary body without application id")
		}
		body.Fields = fields
		body.Raw = nil
		info.FileViaJSON = true
	}

	delete(body.Fields, FieldRevocableSession)

	appID := stringify(body.Fields[FieldApplicationID])
	tenant, ok := e.lookup(appID)
	if !ok || (info.MasterKey != "" && !tenant.MatchesMasterKey(info.MasterKey)) {
		return invalidRequest("body application id not accepted")
	}

	info.AppID = appID
	delete(body.Fields, FieldApplicationID)
	info.JavaScriptKey, _ = body.take(FieldJavaScriptKey)

	if v, ok := body.take(FieldClientVersion); ok {
		info.ClientVersion = v
	}
	if v, ok := body.take(FieldInstallationID); ok {
		info.InstallationID = v
	}
	if v, ok := body.take(FieldSessionToken); ok {
		info.SessionToken = v
	}
	if v, ok := body.take(FieldMasterKey); ok {
		info.MasterKey = v
	}
	if raw, present := body.Fields[FieldContext]; present {
		delete(body.Fields, FieldContext)
		if raw != nil {
			ctx, err := contextValue(raw)
			if err != nil {
				return err
			}
			info.Context = ctx
		}
	}
	if v, ok := body.take(FieldContentType); ok {
		info.ContentType = v
	}
	return nil
}

func (e *Extractor) lookup(appID string) (*models.Tenant, bool) {
	if appID == "" {
		return nil, false
	}
	return e.tenants.Lookup(appID)
}

func rehydrateFile(body *Body, info *RequestInfo) error {
	info.FileData = body.Fields["fileData"]
	encoded := stringify(body.Fields["base64"])
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(encoded, "="))
		if err != nil {
			return invalidRequest("file payload is not base64")
		}
	}
	body.Fields = nil
	body.Raw = data
	return nil
}

func parseContext(raw string) (map[string]any, error) {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, malformedContext()
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, malformedContext()
	}
	return m, nil
}

func contextValue(raw any) (map[string]any, error) {
	switch v := raw.(type) {
	case map[string]any:
		return v, nil
	case string:
		return parseContext(v)
	}
	return nil, malformedContext()
}

func malformedContext() error {
	return dErrors.New(dErrors.CodeMalformedContext, "cloud context is not a JSON object")
}

func invalidRequest(reason string) error {
	return dErrors.New(dErrors.CodeInvalidRequest, reason)
}
