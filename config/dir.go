package config

import (
	"os"
	"path"
)

const (
	DefaultConfigBase   = "basalt.conf"
	defaultWorkDir      = ".basalt"
	defaultSysLocalPath = "/var/lib/basalt"
)

func LocalUserPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return defaultSysLocalPath
	}
	return path.Join(homeDir, defaultWorkDir)
}
