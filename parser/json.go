package parser

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// maxSearchDepth bounds the walk through embedded page state.
const maxSearchDepth = 6

// NextData decodes the __NEXT_DATA__ script that Next.js sites embed in the page.
func NextData(doc *goquery.Document) (any, error) {
	raw := strings.TrimSpace(doc.Find("script#__NEXT_DATA__").First().Text())
	if raw == "" {
		return nil, fmt.Errorf("no __NEXT_DATA__ script")
	}
	var data any
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, fmt.Errorf("decode __NEXT_DATA__: %w", err)
	}
	return data, nil
}

// FindObjects walks decoded JSON depth first and returns the first non-empty
// array stored under one of keys, keeping only its object elements.
func FindObjects(data any, keys ...string) []map[string]any {
	list := findList(data, keys, 0)
	out := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if obj, ok := item.(map[string]any); ok {
			out = append(out, obj)
		}
	}
	return out
}

func findList(data any, keys []string, depth int) []any {
	if depth > maxSearchDepth {
		return nil
	}
	switch v := data.(type) {
	case map[string]any:
		for _, key := range keys {
			if list, ok := v[key].([]any); ok && len(list) > 0 {
				return list
			}
		}
		for _, child := range v {
			if found := findList(child, keys, depth+1); len(found) > 0 {
				return found
			}
		}
	case []any:
		for _, child := range v {
			if found := findList(child, keys, depth+1); len(found) > 0 {
				return found
			}
		}
	}
	return nil
}

// String reads a nested string field; numbers are formatted.
func String(obj map[string]any, path ...string) string {
	switch v := lookup(obj, path).(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

// Number reads a nested numeric field; numeric strings are parsed as plain decimals.
func Number(obj map[string]any, path ...string) (float64, bool) {
	switch v := lookup(obj, path).(type) {
	case float64:
		return v, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// Object reads a nested object.
func Object(obj map[string]any, path ...string) map[string]any {
	m, _ := lookup(obj, path).(map[string]any)
	return m
}

func lookup(obj map[string]any, path []string) any {
	var cur any = obj
	for _, key := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[key]
	}
	return cur
}
