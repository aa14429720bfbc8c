// Package version maps logical partition names to versioned physical names.
package version

import (
	"strings"

	"github.com/louisbranch/cachegate/internal/gateway/errors"
)

// Logical partition names routed by the strategy selector.
const (
	LogicalStatic  = "static"
	LogicalDynamic = "dynamic"
	LogicalAPI     = "api"
)

// Version identifies one generation of cache partitions.
type Version string

// Parse validates a raw version string.
func Parse(raw string) (Version, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", errors.E(errors.KindInvalidInput, "cache version must not be empty")
	}
	if strings.Contains(trimmed, "/") {
		return "", errors.E(errors.KindInvalidInput, "cache version must not contain '/'")
	}
	return Version(trimmed), nil
}

// String renders the version value.
func (v Version) String() string {
	return string(v)
}

// PhysicalName derives the physical partition name for a logical name at a version.
func PhysicalName(logical string, v Version) string {
	return logical + "-v" + string(v)
}

// Logicals lists the logical partition names in routing order.
func Logicals() []string {
	return []string{LogicalStatic, LogicalDynamic, LogicalAPI}
}

// Set is the trio of physical partition names current for one version.
type Set struct {
	Version Version
	Static  string
	Dynamic string
	API     string
}

// NewSet computes the current physical partition names for a version.
func NewSet(v Version) Set {
	return Set{
		Version: v,
		Static:  PhysicalName(LogicalStatic, v),
		Dynamic: PhysicalName(LogicalDynamic, v),
		API:     PhysicalName(LogicalAPI, v),
	}
}

// Resolve maps a logical partition name to its physical name in this set.
func (s Set) Resolve(logical string) (string, bool) {
	switch logical {
	case LogicalStatic:
		return s.Static, true
	case LogicalDynamic:
		return s.Dynamic, true
	case LogicalAPI:
		return s.API, true
	default:
		return "", false
	}
}

// Names lists the physical partition names in this set.
func (s Set) Names() []string {
	return []string{s.Static, s.Dynamic, s.API}
}

// Contains reports whether a physical partition name belongs to this set.
func (s Set) Contains(name string) bool {
	return name == s.Static || name == s.Dynamic || name == s.API
}
