package decoder

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// xssiPrefix guards every JSON payload the maps frontend receives.
var xssiPrefix = []byte(")]}'")

// stripXSSI removes the anti-XSSI prefix and the line break following it.
func stripXSSI(body []byte) []byte {
	body = bytes.TrimSpace(body)
	if bytes.HasPrefix(body, xssiPrefix) {
		body = bytes.TrimLeft(body[len(xssiPrefix):], "\r\n")
	}
	return body
}

// safeGet navigates nested []any arrays by index path without panicking.
func safeGet(data any, path ...int) any {
	current := data
	for _, idx := range path {
		slice, ok := current.([]any)
		if !ok || idx < 0 || idx >= len(slice) {
			return nil
		}
		current = slice[idx]
	}
	return current
}

// safeSlice converts any to []any, returns nil if not a slice.
func safeSlice(data any) []any {
	slice, _ := data.([]any)
	return slice
}

// safeString extracts a string from any. Handles string and numbers.
func safeString(data any) string {
	switch v := data.(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return ""
}

// safeFloat extracts a float64 from any. Handles float64, json.Number and numeric strings.
func safeFloat(data any) float64 {
	switch v := data.(type) {
	case float64:
		return v
	case json.Number:
		f, _ := v.Float64()
		return f
	case string:
		f, _ := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f
	}
	return 0
}

// optString is the string at path, nil when absent or empty.
func optString(data any, path ...int) *string {
	s := safeString(safeGet(data, path...))
	if s == "" {
		return nil
	}
	return &s
}

// optFloat is the number at path, nil when absent.
func optFloat(data any, path ...int) *float64 {
	v, ok := safeGet(data, path...).(float64)
	if !ok {
		return nil
	}
	return &v
}

// optInt is the number at path truncated to int, nil when absent.
func optInt(data any, path ...int) *int {
	v, ok := safeGet(data, path...).(float64)
	if !ok {
		return nil
	}
	i := int(v)
	return &i
}

// stringsAt collects the string elements at path.
func stringsAt(data any, path ...int) []string {
	var out []string
	for _, v := range safeSlice(safeGet(data, path...)) {
		if s := safeString(v); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// fixFloat rounds to seven decimals, the precision coordinates are published with.
func fixFloat(v float64) float64 {
	return math.Round(v*1e7) / 1e7
}
