// Package cachecontrol implements the per-request Cache-Control reducer
// (§4.I): it folds every upstream response's cache directives into a single
// effective policy for the gateway's own response header.
package cachecontrol

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// Policy is the reducer's accumulated state. The zero value means "no
// upstream call contributed a cache directive yet".
type Policy struct {
	mu        sync.Mutex
	maxAge    *uint32
	isPublic  *bool
	observed  bool
}

// New returns an empty reducer, ready to accumulate across a single request.
func New() *Policy { return &Policy{} }

// Observe folds one upstream response's Cache-Control header into the
// accumulator. Unparseable or absent headers are silently ignored, matching
// the teacher's tolerant header parsing elsewhere in the tree.
func (p *Policy) Observe(header string) {
	if header == "" {
		return
	}
	maxAge, hasMaxAge := parseMaxAge(header)
	public := !strings.Contains(strings.ToLower(header), "private")

	p.mu.Lock()
	defer p.mu.Unlock()
	p.observed = true
	if hasMaxAge {
		if p.maxAge == nil || maxAge < *p.maxAge {
			p.maxAge = &maxAge
		}
	}
	if p.isPublic == nil {
		p.isPublic = &public
	} else if !public {
		f := false
		p.isPublic = &f
	}
}

// Header renders the effective response header, or ("", false) when the
// feature yields nothing to report (no upstream contributed a directive).
func (p *Policy) Header() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.observed || p.maxAge == nil {
		return "", false
	}
	visibility := "public"
	if p.isPublic != nil && !*p.isPublic {
		visibility = "private"
	}
	return fmt.Sprintf("%s, max-age=%d", visibility, *p.maxAge), true
}

func parseMaxAge(header string) (uint32, bool) {
	for _, part := range strings.Split(header, ",") {
		part = strings.TrimSpace(part)
		name, value, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(name), "max-age") {
			n, err := strconv.ParseUint(strings.TrimSpace(value), 10, 32)
			if err != nil {
				continue
			}
			return uint32(n), true
		}
	}
	return 0, false
}
