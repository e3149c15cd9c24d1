// Package toml loads the optional project-level rewatch.toml override
// file, a TOML sibling to each package's required JSON config.
//
// Grounded on the teacher's toml.go tomlMapper pattern (Gopkg.toml
// decoded into a typed struct via pelletier/go-toml), generalized from
// per-package manifest overrides to a single workspace-root override
// file.
package toml

import (
	"os"

	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"
)

// Overrides is the typed shape of rewatch.toml.
type Overrides struct {
	Build struct {
		Workers int `toml:"workers"`
	} `toml:"build"`
	Log struct {
		Level string `toml:"level"`
	} `toml:"log"`
	Cache struct {
		Path string `toml:"path"`
	} `toml:"cache"`
}

// Load reads path, returning (nil, nil) when the file is absent — the
// override file is optional by default.
func Load(path string) (*Overrides, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "reading %s", path)
	}

	var o Overrides
	if err := toml.Unmarshal(data, &o); err != nil {
		return nil, errors.Wrapf(err, "parsing %s", path)
	}
	return &o, nil
}
