package metadata

import (
	"strings"

	"github.com/godbus/dbus/v5"
)

// Variant extraction helpers. Players are sloppy about D-Bus types: strings
// arrive as plain strings or single-element arrays, numbers in any integer
// width. Every helper returns the zero value rather than failing.

func asString(v dbus.Variant) string {
	switch s := v.Value().(type) {
	case string:
		return strings.TrimSpace(s)
	case dbus.ObjectPath:
		return string(s)
	}
	return ""
}

func asStrings(v dbus.Variant) []string {
	switch val := v.Value().(type) {
	case []string:
		return val
	case string:
		if val == "" {
			return nil
		}
		return []string{val}
	case []interface{}:
		var out []string
		for _, item := range val {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func firstString(v dbus.Variant) string {
	for _, s := range asStrings(v) {
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}

func joinStrings(v dbus.Variant) string {
	var parts []string
	for _, s := range asStrings(v) {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ", ")
}

func asInt64(v dbus.Variant) int64 {
	switch n := v.Value().(type) {
	case int64:
		return n
	case int32:
		return int64(n)
	case int16:
		return int64(n)
	case int:
		return int64(n)
	case uint64:
		return int64(n)
	case uint32:
		return int64(n)
	case uint16:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}

func asInt(v dbus.Variant) int {
	return int(asInt64(v))
}

func asFloat(v dbus.Variant) float64 {
	switch n := v.Value().(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int64:
		return float64(n)
	case int32:
		return float64(n)
	}
	return 0
}
