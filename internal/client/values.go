package client

import (
	"encoding/json"
	"fmt"
	"strings"

	"git.netflux.io/rob/mtxdash/internal/domain"
)

// ParseValues parses a list of key=value arguments. Values are decoded as
// JSON where possible, so record=true yields a bool and maxReaders=5 a
// number. Anything else is kept as a string.
func ParseValues(args []string) (map[string]any, error) {
	values := make(map[string]any, len(args))
	for _, arg := range args {
		key, raw, ok := strings.Cut(arg, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("invalid argument %q: expected key=value", arg)
		}

		var val any
		if err := json.Unmarshal([]byte(raw), &val); err != nil {
			val = raw
		}
		values[key] = val
	}

	return values, nil
}

// BuildPathConf builds a path configuration from parsed values. Keys which
// are not modelled by domain.PathConf are kept as extras.
func BuildPathConf(name string, values map[string]any) (domain.PathConf, error) {
	doc := make(map[string]any, len(values)+1)
	for k, v := range values {
		doc[k] = v
	}
	doc["name"] = name

	b, err := json.Marshal(doc)
	if err != nil {
		return domain.PathConf{}, fmt.Errorf("marshal: %w", err)
	}

	var conf domain.PathConf
	if err := json.Unmarshal(b, &conf); err != nil {
		return domain.PathConf{}, fmt.Errorf("invalid path configuration: %w", err)
	}

	return conf, nil
}
