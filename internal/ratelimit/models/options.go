package models

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	dErrors "tollgate/pkg/domain-errors"
	platformstrings "tollgate/pkg/platform/strings"
)

// Zone selects the dimension a rule's counter is partitioned by.
type Zone string

const (
	ZoneGlobal  Zone = "global"
	ZoneSession Zone = "session"
	ZoneUser    Zone = "user"
	ZoneIP      Zone = "ip"
)

// IsValid checks if the zone is one of the supported values.
func (z Zone) IsValid() bool {
	switch z {
	case ZoneGlobal, ZoneSession, ZoneUser, ZoneIP:
		return true
	}
	return false
}

// DefaultErrorResponseMessage is returned when a rule does not set its own.
const DefaultErrorResponseMessage = "Too many requests."

// Options is the configuration of one rate limit rule, as supplied by the
// tenant registry or registered programmatically at startup.
type Options struct {
	// RequestPath is the route pattern. A trailing "/*" or a bare "*" matches
	// the rest of the path; ":name" matches a single segment and
	// ":name(expr)" a custom expression.
	RequestPath string `koanf:"request_path" json:"request_path"`
	// RequestTimeWindow is the counting window.
	RequestTimeWindow time.Duration `koanf:"request_time_window" json:"request_time_window"`
	// RequestCount is the number of requests admitted per window.
	RequestCount int `koanf:"request_count" json:"request_count"`
	// ErrorResponseMessage is returned to rejected callers.
	ErrorResponseMessage string `koanf:"error_response_message" json:"error_response_message,omitempty"`
	// RequestMethods restricts the rule to the listed HTTP methods.
	RequestMethods []string `koanf:"request_methods" json:"request_methods,omitempty"`
	// RequestMethodPattern restricts the rule to methods matching a regular
	// expression. Mutually exclusive with RequestMethods.
	RequestMethodPattern string `koanf:"request_method_pattern" json:"request_method_pattern,omitempty"`
	// IncludeMasterKey counts master-key callers too.
	IncludeMasterKey bool `koanf:"include_master_key" json:"include_master_key,omitempty"`
	// IncludeInternalRequests counts loopback callers too.
	IncludeInternalRequests bool `koanf:"include_internal_requests" json:"include_internal_requests,omitempty"`
	// RedisURL selects a distributed counter store; empty means in-memory.
	RedisURL string `koanf:"redis_url" json:"redis_url,omitempty"`
	// Zone partitions the counter. Defaults to ZoneIP.
	Zone Zone `koanf:"zone" json:"zone,omitempty"`
}

// Validate checks the options and fills defaults.
func (o *Options) Validate() error {
	if strings.TrimSpace(o.RequestPath) == "" {
		return dErrors.New(dErrors.CodeValidation, "rate limit request_path is required")
	}
	if o.RequestTimeWindow <= 0 {
		return dErrors.New(dErrors.CodeValidation, "rate limit request_time_window must be positive")
	}
	if _, err := CompilePath(o.RequestPath); err != nil {
		return dErrors.Wrap(err, dErrors.CodeValidation, "rate limit request_path is not a valid pattern")
	}
	if o.RequestCount <= 0 {
		return dErrors.New(dErrors.CodeValidation, "rate limit request_count must be positive")
	}
	o.RequestMethods = platformstrings.Normalize(o.RequestMethods, platformstrings.TrimUpper)
	if len(o.RequestMethods) > 0 && o.RequestMethodPattern != "" {
		return dErrors.New(dErrors.CodeValidation, "rate limit request_methods and request_method_pattern are mutually exclusive")
	}
	if o.RequestMethodPattern != "" {
		if _, err := regexp.Compile(o.RequestMethodPattern); err != nil {
			return dErrors.Wrap(err, dErrors.CodeValidation, "rate limit request_method_pattern is not a valid expression")
		}
	}
	if o.Zone == "" {
		o.Zone = ZoneIP
	}
	if !o.Zone.IsValid() {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("rate limit zone %q is not one of global, session, user, ip", o.Zone))
	}
	if o.ErrorResponseMessage == "" {
		o.ErrorResponseMessage = DefaultErrorResponseMessage
	}
	return nil
}
