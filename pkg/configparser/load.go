package configparser

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

var ErrNoFilePath = errors.New("no file path provided")

// LoadYamlFile reads a YAML file and exports every scalar as an environment
// variable named after its upper-cased key path joined with "_":
//
//	rtk:
//	  heartbeat_interval: 10s   ->   RTK_HEARTBEAT_INTERVAL=10s
//
// Variables already present in the environment are left untouched. Values of
// the form ${VAR:-default} resolve to $VAR when set, default otherwise.
func LoadYamlFile(filepath string) error {
	if filepath == "" {
		return ErrNoFilePath
	}

	data, err := os.ReadFile(filepath)
	if err != nil {
		return fmt.Errorf("could not open YAML file: %w", err)
	}

	vars, err := Flatten(data)
	if err != nil {
		return err
	}

	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if _, set := os.LookupEnv(key); set {
			continue
		}
		if err := os.Setenv(key, vars[key]); err != nil {
			return fmt.Errorf("could not set env var %s: %w", key, err)
		}
	}
	return nil
}

// Flatten turns a YAML document into env-style key/value pairs.
func Flatten(data []byte) (map[string]string, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("error reading YAML file: %w", err)
	}

	out := make(map[string]string)
	flatten(nil, doc, out)
	return out, nil
}

func flatten(prefix []string, node map[string]any, out map[string]string) {
	for k, v := range node {
		path := append(append([]string(nil), prefix...), k)

		switch val := v.(type) {
		case map[string]any:
			flatten(path, val, out)
		case nil:
			// empty values don't represent environment variables
		default:
			out[strings.ToUpper(strings.Join(path, "_"))] = substitute(scalar(val))
		}
	}
}

func scalar(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			parts = append(parts, scalar(item))
		}
		return strings.Join(parts, ",")
	default:
		return fmt.Sprint(val)
	}
}

// substitute resolves ${VAR:-default}.
func substitute(value string) string {
	if !strings.HasPrefix(value, "${") || !strings.HasSuffix(value, "}") {
		return value
	}

	inner := value[2 : len(value)-1]
	name, def, _ := strings.Cut(inner, ":-")
	if env := os.Getenv(strings.TrimSpace(name)); env != "" {
		return env
	}
	return strings.TrimSpace(def)
}
