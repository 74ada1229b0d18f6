// Package blocklist implements an optional path blocklist. Lookups run a
// cache → bloom → rules pipeline: an LRU of recent decisions, a Bloom
// filter for cheap early-allow of never-blocked paths, and the
// authoritative rule sets. The blocklist is immutable after construction,
// so reads need no locking beyond what the LRU provides.
package blocklist

import (
	"strings"

	bitsbloom "github.com/bits-and-blooms/bloom/v3"
	lru "github.com/hashicorp/golang-lru/v2"
)

// decisionCacheSize bounds the LRU of per-path block decisions.
const decisionCacheSize = 1024

// bloomFalsePositiveRate is the target false-positive rate when sizing
// the filter. False positives only cost a rule-set lookup.
const bloomFalsePositiveRate = 0.01

// RuleKind discriminates blocklist rule matching behavior.
type RuleKind int

const (
	// RuleExact blocks a single literal path.
	RuleExact RuleKind = iota

	// RulePrefix blocks a path and everything below it at '/' boundaries.
	RulePrefix
)

// Rule is a single blocklist entry.
type Rule struct {
	Kind RuleKind
	Path string
}

// Blocklist answers whether a request path is blocked.
type Blocklist struct {
	exact     map[string]struct{}
	prefixes  map[string]struct{}
	bloom     *bitsbloom.BloomFilter
	decisions *lru.Cache[string, bool]
}

// New builds a Blocklist from the given rules. Prefix rule paths are
// normalized by stripping any trailing slash so "/admin/" and "/admin"
// anchor identically.
func New(rules []Rule) (*Blocklist, error) {
	decisions, err := lru.New[string, bool](decisionCacheSize)
	if err != nil {
		return nil, err
	}

	b := &Blocklist{
		exact:     make(map[string]struct{}),
		prefixes:  make(map[string]struct{}),
		decisions: decisions,
	}

	for _, rule := range rules {
		switch rule.Kind {
		case RuleExact:
			b.exact[rule.Path] = struct{}{}
		case RulePrefix:
			b.prefixes[normalizeAnchor(rule.Path)] = struct{}{}
		}
	}

	if n := len(b.exact) + len(b.prefixes); n > 0 {
		bf := bitsbloom.NewWithEstimates(uint(n), bloomFalsePositiveRate)
		for path := range b.exact {
			bf.AddString(path)
		}
		for anchor := range b.prefixes {
			bf.AddString(anchor)
		}
		b.bloom = bf
	}

	return b, nil
}

// Blocked reports whether path matches any rule.
func (b *Blocklist) Blocked(path string) bool {
	if b.bloom == nil {
		return false
	}

	// 1) recent decision
	if decision, ok := b.decisions.Get(path); ok {
		return decision
	}

	// 2) bloom early-allow: a path can only be blocked if it or one of
	// its '/'-boundary ancestors is in the filter
	maybe := false
	for _, anchor := range pathAnchors(path) {
		if b.bloom.TestString(anchor) {
			maybe = true
			break
		}
	}
	if !maybe {
		b.decisions.Add(path, false)
		return false
	}

	// 3) authoritative rule sets
	decision := b.matches(path)
	b.decisions.Add(path, decision)
	return decision
}

// Len returns the number of loaded rules.
func (b *Blocklist) Len() int {
	return len(b.exact) + len(b.prefixes)
}

func (b *Blocklist) matches(path string) bool {
	if _, ok := b.exact[path]; ok {
		return true
	}
	for _, anchor := range pathAnchors(path) {
		if _, ok := b.prefixes[anchor]; ok {
			return true
		}
	}
	return false
}

// pathAnchors returns path and each of its ancestors at '/' boundaries,
// most-specific first, ending with "/".
func pathAnchors(path string) []string {
	anchors := []string{path}
	p := path
	for {
		i := strings.LastIndexByte(p, '/')
		if i <= 0 {
			if path != "/" {
				anchors = append(anchors, "/")
			}
			break
		}
		p = p[:i]
		anchors = append(anchors, p)
	}
	return anchors
}

func normalizeAnchor(path string) string {
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
	}
	if path == "" {
		// a bare "*" rule blocks everything
		path = "/"
	}
	return path
}

// NoopBlocklist never blocks. Used when no blocklist file is configured.
type NoopBlocklist struct{}

// Blocked always returns false.
func (NoopBlocklist) Blocked(string) bool { return false }
