// Package ippolicy decides whether a caller IP is covered by a tenant's
// address/CIDR allowlist.
package ippolicy

import (
	"net/netip"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultMemoSize = 1024

// Policy is the per-tenant allowlist store. The block list is built once, on
// first use, and is read-only afterwards; Allowed is safe for concurrent use.
type Policy struct {
	entries  []string
	memoSize int

	once       sync.Once
	allowAllV4 bool
	allowAllV6 bool
	literals   map[netip.Addr]struct{}
	prefixes   []netip.Prefix
	invalid    []string
	memo       *lru.Cache[string, struct{}]
}

// Option configures a Policy.
type Option func(*Policy)

// WithMemoSize bounds the number of memoized literal hits.
func WithMemoSize(n int) Option {
	return func(p *Policy) {
		if n > 0 {
			p.memoSize = n
		}
	}
}

// New creates a policy for the given address and CIDR entries.
func New(entries []string, opts ...Option) *Policy {
	p := &Policy{
		entries:  append([]string(nil), entries...),
		memoSize: defaultMemoSize,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Entries returns the configured list.
func (p *Policy) Entries() []string {
	return append([]string(nil), p.entries...)
}

// Invalid returns the entries that could not be parsed.
func (p *Policy) Invalid() []string {
	p.once.Do(p.build)
	return append([]string(nil), p.invalid...)
}

// Allowed reports whether ip is covered by the policy.
//
// Lookup order: memoized literal hit, allow-all flag for the address family,
// then full containment. Only addresses that appear literally in the list are
// memoized, so a subnet match never leaks to sibling addresses.
func (p *Policy) Allowed(ip string) bool {
	p.once.Do(p.build)

	if _, ok := p.memo.Get(ip); ok {
		return true
	}

	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return false
	}
	addr = addr.Unmap().WithZone("")

	if addr.Is4() && p.allowAllV4 {
		return true
	}
	if addr.Is6() && p.allowAllV6 {
		return true
	}

	if _, ok := p.literals[addr]; ok {
		p.memo.Add(ip, struct{}{})
		return true
	}
	for _, prefix := range p.prefixes {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

func (p *Policy) build() {
	memo, err := lru.New[string, struct{}](p.memoSize)
	if err != nil {
		// only fails for a non-positive size, which WithMemoSize rejects
		panic(err)
	}
	p.memo = memo
	p.literals = make(map[netip.Addr]struct{})

	for _, raw := range p.entries {
		entry := strings.TrimSpace(raw)
		if entry == "" {
			continue
		}

		if !strings.Contains(entry, "/") {
			addr, err := netip.ParseAddr(entry)
			if err != nil {
				p.invalid = append(p.invalid, raw)
				continue
			}
			addr = addr.Unmap()
			switch {
			case addr == netip.IPv4Unspecified():
				p.allowAllV4 = true
			case addr == netip.IPv6Unspecified():
				p.allowAllV6 = true
			default:
				p.literals[addr] = struct{}{}
			}
			continue
		}

		prefix, err := netip.ParsePrefix(entry)
		if err != nil {
			p.invalid = append(p.invalid, raw)
			continue
		}
		prefix = prefix.Masked()
		if prefix.Bits() == 0 {
			if prefix.Addr().Is4() {
				p.allowAllV4 = true
			} else {
				p.allowAllV6 = true
			}
			continue
		}
		p.prefixes = append(p.prefixes, prefix)
	}
}

// IsLoopback reports whether ip is a loopback address of either family.
func IsLoopback(ip string) bool {
	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return false
	}
	return addr.Unmap().IsLoopback()
}
