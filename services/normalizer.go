package services

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"societypay/errors"
)

// orderIDPaths lists every shape the backend has been observed to wrap the
// order id in. Paths are tried in order; the first present non-empty value
// wins. New shapes get a new entry here, not new control flow.
var orderIDPaths = [][]string{
	{"data", "orderId"},
	{"orderId"},
	{"order", "id"},
	{"order", "orderId"},
	{"order", "order_id"},
	{"data", "data", "orderId"},
	{"order_id"},
}

// ExtractOrderID pulls the canonical order id out of a create-order response
// body. When no path matches, the error reports the top-level keys seen so
// new shapes can be diagnosed from logs.
func ExtractOrderID(body map[string]interface{}) (string, error) {
	for _, path := range orderIDPaths {
		if v, ok := lookupPath(body, path); ok {
			if s := stringValue(v); s != "" {
				return s, nil
			}
		}
	}

	keys := make([]string, 0, len(body))
	for k := range body {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return "", errors.E(errors.Malformed,
		fmt.Sprintf("order id not found in response (top-level keys: %s)", strings.Join(keys, ", ")))
}

func lookupPath(m map[string]interface{}, path []string) (interface{}, bool) {
	var current interface{} = m
	for _, key := range path {
		node, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = node[key]
		if !ok || current == nil {
			return nil, false
		}
	}
	return current, true
}

// stringValue accepts the id as a string or, defensively, as a JSON number.
func stringValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	}
	return ""
}
