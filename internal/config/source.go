package config

import (
	"cmp"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"gopkg.in/yaml.v3"
)

// ConfigSource describes which YAML file, if any, backs the process settings.
type ConfigSource struct {
	Phase  string
	Path   string
	Loaded bool
}

type fileValues struct {
	once   sync.Once
	err    error
	values map[string]string
	source ConfigSource
}

var runtimeFile fileValues

func CurrentConfigSource() (ConfigSource, error) {
	if err := ensureRuntimeConfigLoaded(); err != nil {
		return ConfigSource{}, err
	}
	return runtimeFile.source, nil
}

// ensureRuntimeConfigLoaded reads config/config-<CONFIG_PHASE>.yaml, or
// CONFIG_FILE when set, once per process. A missing default file is not an
// error.
func ensureRuntimeConfigLoaded() error {
	runtimeFile.once.Do(runtimeFile.load)
	return runtimeFile.err
}

func (f *fileValues) load() {
	f.values = map[string]string{}
	f.source.Phase = cmp.Or(strings.TrimSpace(os.Getenv("CONFIG_PHASE")), "local")

	path, explicit := strings.TrimSpace(os.Getenv("CONFIG_FILE")), true
	if path == "" {
		path, explicit = filepath.Join("config", "config-"+f.source.Phase+".yaml"), false
	}

	body, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist) && !explicit:
		return
	case err != nil:
		f.err = fmt.Errorf("read config file %q: %w", path, err)
		return
	}

	values, err := parseConfigFile(body)
	if err != nil {
		f.err = fmt.Errorf("parse config file %q: %w", path, err)
		return
	}
	f.values = values
	f.source.Loaded = true
	f.source.Path = path
	if abs, err := filepath.Abs(path); err == nil {
		f.source.Path = abs
	}
}

// parseConfigFile flattens nested YAML into UPPER_SNAKE keys so that
// `keeper: {poll_interval: 5s}` answers to KEEPER_POLL_INTERVAL. Scalars keep
// the text they were written with.
func parseConfigFile(body []byte) (map[string]string, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(body, &doc); err != nil {
		return nil, err
	}
	out := map[string]string{}
	if len(doc.Content) == 0 {
		return out, nil
	}
	root := resolveAlias(doc.Content[0])
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: top level must be a mapping", root.Line)
	}
	return out, flattenNode("", root, out)
}

func flattenNode(prefix string, node *yaml.Node, out map[string]string) error {
	node = resolveAlias(node)
	switch node.Kind {
	case yaml.MappingNode:
		for i := 0; i+1 < len(node.Content); i += 2 {
			segment := normalizeKeySegment(node.Content[i].Value)
			if segment == "" {
				continue
			}
			key := segment
			if prefix != "" {
				key = prefix + "_" + segment
			}
			if err := flattenNode(key, node.Content[i+1], out); err != nil {
				return err
			}
		}
	case yaml.SequenceNode:
		items := make([]string, 0, len(node.Content))
		for _, item := range node.Content {
			item = resolveAlias(item)
			if item.Kind != yaml.ScalarNode {
				return fmt.Errorf("line %d: %s may only list scalars", item.Line, prefix)
			}
			if v := strings.TrimSpace(item.Value); v != "" {
				items = append(items, v)
			}
		}
		out[prefix] = strings.Join(items, ",")
	case yaml.ScalarNode:
		if node.ShortTag() != "!!null" {
			out[prefix] = node.Value
		}
	}
	return nil
}

func resolveAlias(node *yaml.Node) *yaml.Node {
	for node.Kind == yaml.AliasNode && node.Alias != nil {
		node = node.Alias
	}
	return node
}

// normalizeKeySegment upper-cases letters and digits and collapses every run
// of other characters into one underscore.
func normalizeKeySegment(raw string) string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return strings.ToUpper(strings.Join(fields, "_"))
}

// valueForKey prefers the process environment over the config file.
func valueForKey(key string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	if ensureRuntimeConfigLoaded() != nil {
		return ""
	}
	return strings.TrimSpace(runtimeFile.values[key])
}

func envOrDefault(key, fallback string) string {
	return cmp.Or(valueForKey(key), fallback)
}

// lookup hands a set value to parse and returns fallback when key is unset.
func lookup[T any](key string, fallback T, parse func(string) (T, error)) (T, error) {
	raw := valueForKey(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := parse(raw)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

var errNotPositive = errors.New("must be > 0")

func parsePositiveDuration(raw string) (time.Duration, error) {
	d, err := time.ParseDuration(raw)
	if err == nil && d <= 0 {
		err = errNotPositive
	}
	return d, err
}

func parsePositiveInt(raw string) (int, error) {
	v, err := strconv.Atoi(raw)
	if err == nil && v <= 0 {
		err = errNotPositive
	}
	return v, err
}

func parseNonNegativeInt(raw string) (int, error) {
	v, err := strconv.Atoi(raw)
	if err == nil && v < 0 {
		err = errors.New("must be >= 0")
	}
	return v, err
}

func uintParser[T ~uint | ~uint32 | ~uint64](bits int) func(string) (T, error) {
	return func(raw string) (T, error) {
		v, err := strconv.ParseUint(raw, 10, bits)
		return T(v), err
	}
}

func parseOptionalUint(raw string) (*uint, error) {
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return nil, err
	}
	n := uint(v)
	return &n, nil
}

func parseCommitment(raw string) (rpc.CommitmentType, error) {
	switch c := rpc.CommitmentType(strings.ToLower(raw)); c {
	case rpc.CommitmentProcessed, rpc.CommitmentConfirmed, rpc.CommitmentFinalized:
		return c, nil
	}
	return "", fmt.Errorf("%q (expected processed|confirmed|finalized)", raw)
}

func parsePubkey(raw string) (solana.PublicKey, error) {
	return solana.PublicKeyFromBase58(raw)
}

// parseCSVEnv splits a comma separated list, dropping blanks. An empty result
// yields fallback.
func parseCSVEnv(raw string, fallback []string) []string {
	var out []string
	for part := range strings.SplitSeq(raw, ",") {
		if v := strings.TrimSpace(part); v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

func expandHomePath(path string) (string, error) {
	rest, ok := strings.CutPrefix(path, "~")
	if !ok || (rest != "" && !strings.HasPrefix(rest, "/")) {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, rest), nil
}
