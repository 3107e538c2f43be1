package config

import (
	"path"

	"github.com/basaltos/basalt/config"
)

func localConfigFilePath(local string) string {
	return path.Join(local, config.DefaultConfigBase)
}
