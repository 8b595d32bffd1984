// Package ioc extracts typed indicators of compromise from raw log text.
package ioc

import (
	"regexp"
	"sort"
)

// Kind identifies the type of an extracted indicator.
type Kind string

const (
	KindIPv4        Kind = "ipv4"
	KindIPv6        Kind = "ipv6"
	KindURL         Kind = "url"
	KindDomain      Kind = "domain"
	KindEmail       Kind = "email"
	KindHash        Kind = "hash"
	KindFilePath    Kind = "filepath"
	KindRegistryKey Kind = "registry-key"
	KindTimestamp   Kind = "timestamp"
)

// Kinds lists every indicator kind in a fixed presentation order.
var Kinds = []Kind{
	KindIPv4, KindIPv6, KindURL, KindDomain, KindEmail,
	KindHash, KindFilePath, KindRegistryKey, KindTimestamp,
}

// IndicatorSet maps an indicator kind to the unique values matched for it.
// Values are deduplicated and sorted ascending.
type IndicatorSet map[Kind][]string

// Count returns the number of unique values of the given kind.
func (s IndicatorSet) Count(k Kind) int {
	return len(s[k])
}

// Total returns the number of unique values across all kinds.
func (s IndicatorSet) Total() int {
	n := 0
	for _, vals := range s {
		n += len(vals)
	}
	return n
}

var patterns = map[Kind]*regexp.Regexp{
	KindIPv4:        regexp.MustCompile(`\b(?:(?:25[0-5]|2[0-4]\d|1?\d?\d)\.){3}(?:25[0-5]|2[0-4]\d|1?\d?\d)\b`),
	KindIPv6:        regexp.MustCompile(`\b(?:[A-Fa-f0-9]{1,4}:){2,7}[A-Fa-f0-9]{1,4}\b`),
	KindURL:         regexp.MustCompile(`(?i)\bhttps?://[^\s"'<>]+`),
	KindDomain:      regexp.MustCompile(`\b(?:[a-zA-Z0-9-]+\.)+[a-zA-Z]{2,}\b`),
	KindEmail:       regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`),
	KindHash:        regexp.MustCompile(`\b(?:[A-Fa-f0-9]{32}|[A-Fa-f0-9]{40}|[A-Fa-f0-9]{64})\b`),
	KindFilePath:    regexp.MustCompile(`(?:[A-Za-z]:\\|/)(?:[^\\/\n]+[\\/]?)+`),
	KindRegistryKey: regexp.MustCompile(`(?i)\bHKEY_[A-Z_\\]+\\[^\s]+`),
	KindTimestamp:   regexp.MustCompile(`\b(?:\d{4}-\d{2}-\d{2}[ T]\d{2}:\d{2}:\d{2}(?:\.\d+)?Z?|\d{2}/\d{2}/\d{4}[ T]\d{2}:\d{2}:\d{2})\b`),
}

// dottedQuad recognizes a complete IPv4 address, used to keep dotted-quad
// strings out of the domain set.
var dottedQuad = regexp.MustCompile(`^(?:(?:25[0-5]|2[0-4]\d|1?\d?\d)\.){3}(?:25[0-5]|2[0-4]\d|1?\d?\d)$`)

// Extract runs every indicator pattern over text and returns the unique
// values per kind. It is a pure function; empty or signal-free text yields
// an empty set, never an error.
func Extract(text string) IndicatorSet {
	out := make(IndicatorSet, len(patterns))
	for kind, re := range patterns {
		matches := re.FindAllString(text, -1)
		if len(matches) == 0 {
			continue
		}
		seen := make(map[string]struct{}, len(matches))
		vals := make([]string, 0, len(matches))
		for _, m := range matches {
			if kind == KindDomain && dottedQuad.MatchString(m) {
				continue
			}
			if _, dup := seen[m]; dup {
				continue
			}
			seen[m] = struct{}{}
			vals = append(vals, m)
		}
		if len(vals) == 0 {
			continue
		}
		sort.Strings(vals)
		out[kind] = vals
	}
	return out
}
