package graph

import "strconv"

// Config accessors tolerate the loose typing of canvas-edited JSON: numbers
// arrive as float64, but hand-written samples sometimes carry ints or
// numeric strings. Factories read these exactly once, at producer
// construction time.

// ConfigFloat returns a numeric config value, or def when absent or unusable
func (n Node) ConfigFloat(key string, def float64) float64 {
	v, ok := n.Config[key]
	if !ok {
		return def
	}
	switch t := v.(type) {
	case float64:
		return t
	case float32:
		return float64(t)
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case string:
		if f, err := strconv.ParseFloat(t, 64); err == nil {
			return f
		}
	}
	return def
}

// ConfigInt returns an integer config value, or def when absent or unusable
func (n Node) ConfigInt(key string, def int) int {
	return int(n.ConfigFloat(key, float64(def)))
}

// ConfigString returns a string config value, or def when absent
func (n Node) ConfigString(key string, def string) string {
	if v, ok := n.Config[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

// ConfigAny returns a raw config value, or def when absent
func (n Node) ConfigAny(key string, def any) any {
	if v, ok := n.Config[key]; ok {
		return v
	}
	return def
}
