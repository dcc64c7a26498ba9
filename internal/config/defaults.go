package config

import (
	"path/filepath"

	"github.com/adrg/xdg"
)

const (
	engineAddr        = "http://127.0.0.1:6810"
	engineEventBuffer = 256
	apiListenAddr     = "127.0.0.1:8420"
	maxConcurrent     = 3
	speedLimitBPS     = 0
	retentionDays     = 90
)

var (
	queueDBPath   = filepath.Join(xdg.DataHome, appName, "queue.db")
	historyDBPath = filepath.Join(xdg.DataHome, appName, "history.db")
	logPath       = ""
)
