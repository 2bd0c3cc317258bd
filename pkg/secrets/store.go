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

package secrets

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// Store 只读为主的 secret 来源，配置中的 ${NAME} 占位符经由它解析
type Store interface {
	// Get 获取 secret 值，不存在时返回错误
	Get(ctx context.Context, key string) (string, error)

	// Set 设置 secret 值（env / memory 支持，vault 写入 KV）
	Set(ctx context.Context, key string, value string) error
}

// Config Secret Store 配置
type Config struct {
	Provider string      `mapstructure:"provider"` // env | memory | vault
	Vault    VaultConfig `mapstructure:"vault"`
}

// NewStore 按 provider 创建 Secret Store，空 provider 视为 env
func NewStore(cfg Config) (Store, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "env":
		return NewEnvStore(), nil
	case "memory":
		return NewMemoryStore(), nil
	case "vault":
		return NewVaultStore(cfg.Vault)
	default:
		return nil, fmt.Errorf("unsupported secret provider: %s", cfg.Provider)
	}
}

var placeholderRe = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_./-]*)\}`)

// Resolve 将 value 中的 ${NAME} 替换为 store 中的值；未找到的占位符报错
func Resolve(ctx context.Context, store Store, value string) (string, error) {
	if store == nil || !strings.Contains(value, "${") {
		return value, nil
	}
	var firstErr error
	out := placeholderRe.ReplaceAllStringFunc(value, func(m string) string {
		name := placeholderRe.FindStringSubmatch(m)[1]
		v, err := store.Get(ctx, name)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("resolve %s: %w", name, err)
			}
			return m
		}
		return v
	})
	if firstErr != nil {
		return value, firstErr
	}
	return out, nil
}

// ResolveAll 原地解析一组字符串字段，遇到第一个错误即返回
func ResolveAll(ctx context.Context, store Store, fields ...*string) error {
	for _, f := range fields {
		if f == nil {
			continue
		}
		v, err := Resolve(ctx, store, *f)
		if err != nil {
			return err
		}
		*f = v
	}
	return nil
}
