// Package strategy selects a caching strategy and target partition per request.
package strategy

import (
	"fmt"

	"github.com/louisbranch/cachegate/internal/gateway/errors"
)

// Strategy names one of the five caching algorithms.
type Strategy int

const (
	StrategyUnspecified Strategy = iota
	CacheFirst
	NetworkFirst
	StaleWhileRevalidate
	CacheOnly
	NetworkOnly
)

func (s Strategy) String() string {
	switch s {
	case CacheFirst:
		return "cache-first"
	case NetworkFirst:
		return "network-first"
	case StaleWhileRevalidate:
		return "stale-while-revalidate"
	case CacheOnly:
		return "cache-only"
	case NetworkOnly:
		return "network-only"
	default:
		return "unspecified"
	}
}

// Parse maps a textual strategy name to its enum value.
func Parse(name string) (Strategy, error) {
	switch name {
	case "cache-first":
		return CacheFirst, nil
	case "network-first":
		return NetworkFirst, nil
	case "stale-while-revalidate":
		return StaleWhileRevalidate, nil
	case "cache-only":
		return CacheOnly, nil
	case "network-only":
		return NetworkOnly, nil
	default:
		return StrategyUnspecified, errors.E(errors.KindInvalidInput, fmt.Sprintf("unknown strategy %q", name))
	}
}
