package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	json5 "github.com/yosuke-furukawa/json5/encoding/json5"
	"gopkg.in/yaml.v3"
)

// includeKey lists files merged underneath the including document.
const includeKey = "$include"

// maxIncludeDepth bounds nested includes.
const maxIncludeDepth = 8

// Document formats.
const (
	formatYAML  = "yaml"
	formatJSON5 = "json5"
)

// LoadRaw reads path and its includes into one merged map. Values in the
// including file win over included ones; nested maps merge key by key.
func LoadRaw(path string) (map[string]any, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("config path is required")
	}
	var l includeLoader
	return l.load(path)
}

// includeLoader tracks the chain of files being loaded to detect cycles.
type includeLoader struct {
	chain []string
}

func (l *includeLoader) load(path string) (map[string]any, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if slices.Contains(l.chain, abs) {
		return nil, fmt.Errorf("config include cycle: %s -> %s", strings.Join(l.chain, " -> "), abs)
	}
	if len(l.chain) >= maxIncludeDepth {
		return nil, fmt.Errorf("config includes nested deeper than %d at %s", maxIncludeDepth, abs)
	}
	l.chain = append(l.chain, abs)
	defer func() { l.chain = l.chain[:len(l.chain)-1] }()

	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, err
	}
	doc, err := decodeDocument([]byte(expandEnv(string(data))), formatOf(abs))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", abs, err)
	}
	includes, err := takeIncludes(doc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", abs, err)
	}

	merged := map[string]any{}
	for _, inc := range includes {
		if !filepath.IsAbs(inc) {
			inc = filepath.Join(filepath.Dir(abs), inc)
		}
		sub, err := l.load(inc)
		if err != nil {
			return nil, err
		}
		deepMerge(merged, sub)
	}
	deepMerge(merged, doc)
	return merged, nil
}

// LoadBytes decodes, defaults and validates an in-memory document. format
// is "yaml", "json" or "json5". Includes are not resolved.
func LoadBytes(data []byte, format string) (*Config, error) {
	doc, err := decodeDocument([]byte(expandEnv(string(data))), formatOf("config."+strings.TrimPrefix(format, ".")))
	if err != nil {
		return nil, err
	}
	delete(doc, includeKey)
	return finish(doc)
}

// finish turns a merged document into a validated Config.
func finish(doc map[string]any) (*Config, error) {
	cfg, err := decodeRawConfig(doc)
	if err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// expandEnv replaces $VAR and ${VAR} with environment values. ${VAR:-fallback}
// uses fallback when VAR is unset or empty. The $include key is kept.
func expandEnv(s string) string {
	return os.Expand(s, func(key string) string {
		if key == includeKey[1:] {
			return includeKey
		}
		name, fallback, hasFallback := strings.Cut(key, ":-")
		if value := os.Getenv(name); value != "" || !hasFallback {
			return value
		}
		return fallback
	})
}

func formatOf(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".json5":
		return formatJSON5
	default:
		return formatYAML
	}
}

// decodeDocument parses one document into a generic map. JSON is read as
// JSON5 so comments and trailing commas are accepted.
func decodeDocument(data []byte, format string) (map[string]any, error) {
	var doc map[string]any
	switch format {
	case formatJSON5:
		if err := json5.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
	default:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
			return nil, errors.New("expected a single YAML document")
		}
	}
	if doc == nil {
		doc = map[string]any{}
	}
	return doc, nil
}

// takeIncludes removes the include directive from doc and returns its paths.
func takeIncludes(doc map[string]any) ([]string, error) {
	value, ok := doc[includeKey]
	if !ok {
		return nil, nil
	}
	delete(doc, includeKey)

	var paths []string
	switch v := value.(type) {
	case nil:
	case string:
		paths = []string{v}
	case []any:
		for _, entry := range v {
			s, ok := entry.(string)
			if !ok {
				return nil, fmt.Errorf("%s entries must be strings", includeKey)
			}
			paths = append(paths, s)
		}
	default:
		return nil, fmt.Errorf("%s must be a path or a list of paths", includeKey)
	}
	return slices.DeleteFunc(paths, func(p string) bool { return strings.TrimSpace(p) == "" }), nil
}

// deepMerge copies src into dst, merging nested maps.
func deepMerge(dst, src map[string]any) {
	for key, value := range src {
		srcMap, srcIsMap := value.(map[string]any)
		dstMap, dstIsMap := dst[key].(map[string]any)
		if srcIsMap && dstIsMap {
			deepMerge(dstMap, srcMap)
			continue
		}
		dst[key] = value
	}
}

// decodeRawConfig re-encodes the merged document and decodes it strictly,
// so unknown keys anywhere in the tree are rejected.
func decodeRawConfig(doc map[string]any) (*Config, error) {
	payload, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode merged config: %w", err)
	}
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(payload))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}
