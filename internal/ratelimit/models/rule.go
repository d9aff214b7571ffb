package models

import (
	"fmt"
	"hash/fnv"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Rule is a compiled rate limit rule. Rules are immutable once registered.
type Rule struct {
	// ID is derived from the rule's content, so a reloaded tenant keeps
	// the counters of unchanged rules and never inherits those of others.
	ID                      string
	Path                    string
	Pattern                 *regexp.Regexp
	Window                  time.Duration
	Max                     int
	Zone                    Zone
	IncludeMasterKey        bool
	IncludeInternalRequests bool
	Methods                 []string
	MethodPattern           *regexp.Regexp
	Message                 string
}

// NewRule compiles validated options into a rule.
func NewRule(opts Options) (*Rule, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	pattern, err := CompilePath(opts.RequestPath)
	if err != nil {
		return nil, err
	}
	rule := &Rule{
		ID:                      Fingerprint(opts),
		Path:                    opts.RequestPath,
		Pattern:                 pattern,
		Window:                  opts.RequestTimeWindow,
		Max:                     opts.RequestCount,
		Zone:                    opts.Zone,
		IncludeMasterKey:        opts.IncludeMasterKey,
		IncludeInternalRequests: opts.IncludeInternalRequests,
		Message:                 opts.ErrorResponseMessage,
	}
	for _, m := range opts.RequestMethods {
		rule.Methods = append(rule.Methods, strings.ToUpper(m))
	}
	if opts.RequestMethodPattern != "" {
		rule.MethodPattern = regexp.MustCompile(opts.RequestMethodPattern)
	}
	return rule, nil
}

// Fingerprint hashes the fields that decide what a rule counts. Options
// must already be validated so defaults and method lists are normalised.
func Fingerprint(opts Options) string {
	h := fnv.New64a()
	for _, part := range []string{
		opts.RequestPath,
		opts.RequestTimeWindow.String(),
		strconv.Itoa(opts.RequestCount),
		string(opts.Zone),
		strings.Join(opts.RequestMethods, ","),
		opts.RequestMethodPattern,
		strconv.FormatBool(opts.IncludeMasterKey),
		strconv.FormatBool(opts.IncludeInternalRequests),
	} {
		// length prefix keeps field boundaries unambiguous
		fmt.Fprintf(h, "%d:%s;", len(part), part)
	}
	return strconv.FormatUint(h.Sum64(), 36)
}

// Matches reports whether path falls under the rule.
func (r *Rule) Matches(path string) bool {
	return r.Pattern.MatchString(path)
}

// AppliesToMethod reports whether the rule's method filter admits method.
// Rules without a filter apply to every method.
func (r *Rule) AppliesToMethod(method string) bool {
	switch {
	case len(r.Methods) > 0:
		return slices.Contains(r.Methods, strings.ToUpper(method))
	case r.MethodPattern != nil:
		return r.MethodPattern.MatchString(method)
	}
	return true
}

// CompilePath turns a route pattern into an anchored, case-insensitive
// expression. "/*" and a bare "*" match the rest of the path, ":name" matches
// one segment, ":name(expr)" matches expr instead, and a single trailing
// delimiter is tolerated. Parentheses anywhere else are rejected.
func CompilePath(path string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("(?i)^")
	for i := 0; i < len(path); {
		switch {
		case strings.HasPrefix(path[i:], "/*"):
			b.WriteString("/(.*)")
			i += 2
		case path[i] == '*':
			b.WriteString("(.*)")
			i++
		case path[i] == ':' && i+1 < len(path) && isNameChar(path[i+1]):
			j := i + 1
			for j < len(path) && isNameChar(path[j]) {
				j++
			}
			if j < len(path) && path[j] == '(' {
				end, err := groupEnd(path, j)
				if err != nil {
					return nil, err
				}
				b.WriteString("(" + path[j+1:end] + ")")
				i = end + 1
				continue
			}
			b.WriteString("([^/#?]+?)")
			i = j
		case path[i] == '(' || path[i] == ')':
			return nil, fmt.Errorf("unexpected %q at offset %d in %q: groups must follow a :name parameter", path[i], i, path)
		default:
			b.WriteString(regexp.QuoteMeta(path[i : i+1]))
			i++
		}
	}
	b.WriteString("[/#?]?$")
	return regexp.Compile(b.String())
}

// groupEnd returns the index of the parenthesis closing the one at open.
func groupEnd(path string, open int) (int, error) {
	depth := 0
	for i := open; i < len(path); i++ {
		switch path[i] {
		case '\\':
			i++
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				if i == open+1 {
					return 0, fmt.Errorf("empty group at offset %d in %q", open, path)
				}
				return i, nil
			}
		}
	}
	return 0, fmt.Errorf("unclosed group at offset %d in %q", open, path)
}

func isNameChar(c byte) bool {
	return c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}
