package store

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Names maps lower-cased wallet addresses to preferred display names.
// It is built once at startup and never mutated.
type Names struct {
	byWallet map[string]string
}

// NewNames builds a Names table, normalizing keys to lower case.
func NewNames(entries map[string]string) Names {
	n := Names{byWallet: make(map[string]string, len(entries))}
	for k, v := range entries {
		if v = strings.TrimSpace(v); v != "" {
			n.byWallet[strings.ToLower(strings.TrimSpace(k))] = v
		}
	}
	return n
}

// LoadNames reads a names file. JSON and YAML are both accepted since YAML is
// a superset of a plain JSON object. A missing file yields an
// empty table.
func LoadNames(path string) (Names, error) {
	if path == "" {
		return NewNames(nil), nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return NewNames(nil), nil
	}
	if err != nil {
		return NewNames(nil), fmt.Errorf("read names file: %w", err)
	}

	var entries map[string]string
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return NewNames(nil), fmt.Errorf("parse names file: %w", err)
	}
	return NewNames(entries), nil
}

// Lookup returns the display name for wallet, if any.
func (n Names) Lookup(wallet string) (string, bool) {
	name, ok := n.byWallet[strings.ToLower(wallet)]
	return name, ok
}

// Len returns the number of entries.
func (n Names) Len() int { return len(n.byWallet) }
