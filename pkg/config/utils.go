package config

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v2"
)

// decodeConfig decodes a donor config file into target, picking the
// format by file extension.
func decodeConfig(name string, r io.Reader, target any) error {
	switch ext := filepath.Ext(name); ext {
	case ".toml":
		_, err := toml.NewDecoder(r).Decode(target)
		return err
	case ".yaml", ".yml":
		return yaml.NewDecoder(r).Decode(target)
	case ".json":
		return json.NewDecoder(r).Decode(target)
	default:
		return fmt.Errorf("config %s: unsupported format %q, expected one of .toml, .yaml, .yml, .json", name, ext)
	}
}
