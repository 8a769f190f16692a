// Copyright (c) 2025 Meterflow Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package config

import (
	"os"
	"strings"

	"github.com/meterflow/meterflow/config/key"
)

// Env represents a Source where its underlying values
// are extracted from environment variables.
type Env struct {
	prefix  string
	environ func() []string
}

// FromEnv returns a Source which will apply its config
// from the environment variables available to the
// current process.
//
// Only variables starting with prefix followed by an
// underscore are considered. The remainder of the variable
// name is lowercased and split on underscores to form a
// nested key chain e.g. with the prefix "METERFLOW" the
// variable METERFLOW_API_PORT=9999 sets "api.port" to "9999".
func FromEnv(prefix string) Env {
	return Env{
		prefix:  prefix,
		environ: os.Environ,
	}
}

// Apply implements the Source interface.
func (src Env) Apply(store Store) error {
	prefix := src.prefix + "_"
	for _, pair := range src.environ() {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		if !strings.HasPrefix(k, prefix) {
			continue
		}

		parts := strings.Split(strings.ToLower(strings.TrimPrefix(k, prefix)), "_")
		chain := make(key.Chain, len(parts))
		for i, part := range parts {
			chain[i] = key.Name(part)
		}

		err := store.Set(chain, v)
		if err != nil {
			return err
		}
	}
	return nil
}
