// SPDX-License-Identifier: MIT

package config

import (
	"fmt"

	xglog "github.com/ManuGH/pushd/internal/log"
	"github.com/google/renameio/v2"
	"gopkg.in/yaml.v3"
)

const defaultHeader = "# pushd configuration. Every key can be overridden by a PUSHD_ environment variable.\n"

// WriteDefault writes the default configuration to path atomically.
func WriteDefault(path string) error {
	return Write(path, Defaults())
}

// Write renders cfg as YAML and replaces path atomically.
func Write(path string, cfg Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	pending, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o640))
	if err != nil {
		return fmt.Errorf("create pending config file: %w", err)
	}
	defer func() {
		if err := pending.Cleanup(); err != nil {
			logger := xglog.WithComponent("config")
			logger.Debug().Err(err).Msg("cleanup pending config file")
		}
	}()

	if _, err := pending.WriteString(defaultHeader); err != nil {
		return fmt.Errorf("write config header: %w", err)
	}
	if _, err := pending.Write(data); err != nil {
		return fmt.Errorf("write config data: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace config file: %w", err)
	}
	return nil
}
