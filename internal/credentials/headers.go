package credentials

// Identity headers. Lookups through http.Header are case-insensitive.
const (
	HeaderApplicationID  = "X-Tollgate-Application-Id"
	HeaderSessionToken   = "X-Tollgate-Session-Token"
	HeaderMasterKey      = "X-Tollgate-Master-Key"
	HeaderMaintenanceKey = "X-Tollgate-Maintenance-Key"
	HeaderInstallationID = "X-Tollgate-Installation-Id"
	HeaderClientKey      = "X-Tollgate-Client-Key"
	HeaderJavaScriptKey  = "X-Tollgate-Javascript-Key"
	HeaderDotNetKey      = "X-Tollgate-Windows-Key"
	HeaderRestAPIKey     = "X-Tollgate-REST-API-Key"
	HeaderClientVersion  = "X-Tollgate-Client-Version"
	HeaderCloudContext   = "X-Tollgate-Cloud-Context"
	HeaderRequestID      = "X-Tollgate-Request-Id"
	HeaderRevocable      = "X-Tollgate-Revocable-Session"
)

// Body meta-fields consumed by the extractor and the method override.
const (
	FieldApplicationID    = "_ApplicationId"
	FieldJavaScriptKey    = "_JavaScriptKey"
	FieldClientVersion    = "_ClientVersion"
	FieldInstallationID   = "_InstallationId"
	FieldSessionToken     = "_SessionToken"
	FieldMasterKey        = "_MasterKey"
	FieldContext          = "_context"
	FieldContentType      = "_ContentType"
	FieldMethod           = "_method"
	FieldNoBody           = "_noBody"
	FieldRevocableSession = "_RevocableSession"
)

// DefaultAllowedHeaders are advertised to browsers on every CORS response.
var DefaultAllowedHeaders = []string{
	HeaderMasterKey,
	HeaderRestAPIKey,
	HeaderJavaScriptKey,
	HeaderApplicationID,
	HeaderClientVersion,
	HeaderSessionToken,
	"X-Requested-With",
	HeaderRevocable,
	HeaderRequestID,
	"Content-Type",
	"Pragma",
	"Cache-Control",
}
