// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package app

import (
	"fmt"

	"listing-watcher/pkg/config"
	"listing-watcher/pkg/log"
)

// Bootstrap 统一初始化：供 watcher 与测试复用，避免在 cmd 内装配业务
type Bootstrap struct {
	Config *config.Config
	Logger *log.Logger
}

// LogConfig 将 config.Log 转为 log.Config
func LogConfig(cfg *config.Config) *log.Config {
	logCfg := &log.Config{}
	if cfg != nil {
		logCfg.Level = cfg.Log.Level
		logCfg.Format = cfg.Log.Format
		logCfg.File = cfg.Log.File
	}
	return logCfg
}

// NewBootstrap 根据配置创建 Bootstrap
func NewBootstrap(cfg *config.Config) (*Bootstrap, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	logger, err := log.NewLogger(LogConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("初始化日志failed: %w", err)
	}
	return &Bootstrap{Config: cfg, Logger: logger}, nil
}
