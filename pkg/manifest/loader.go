package manifest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads a seed manifest from path. See LoadFromBytes.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("manifest file not found: %s", path)
		}
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return LoadFromBytes(data, path)
}

// LoadFromReader reads a seed manifest from r. path only selects the format.
func LoadFromReader(r io.Reader, path string) (*Manifest, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return LoadFromBytes(data, path)
}

// LoadFromBytes decodes a manifest, validates it against the schema and
// the board rules in Check, and applies defaults. A path ending in .json
// is parsed as strict JSON; anything else as YAML, which accepts JSON too.
//
// The returned manifest has legacy stage names rewritten, so a seed
// listing "screen" comes back as "screening".
func LoadFromBytes(data []byte, path string) (*Manifest, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errors.New("manifest file is empty")
	}

	doc, err := toJSON(data, path)
	if err != nil {
		return nil, err
	}
	// Schema first: it sees unknown fields the typed decode would drop.
	if err := ValidateRaw(doc); err != nil {
		return nil, err
	}

	var m Manifest
	if err := json.Unmarshal(doc, &m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	m.ApplyDefaults()
	if err := m.Check(); err != nil {
		return nil, err
	}
	return &m, nil
}

func toJSON(data []byte, path string) ([]byte, error) {
	var raw any
	if strings.EqualFold(filepath.Ext(path), ".json") {
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("invalid JSON in manifest: %w", err)
		}
		return data, nil
	}

	// yaml.v3 keeps unquoted dates such as applied_at: 2024-05-01 as
	// strings when decoding into any.
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid YAML in manifest: %w", err)
	}
	out, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("manifest is not representable as JSON: %w", err)
	}
	return out, nil
}
