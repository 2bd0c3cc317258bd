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
	"strings"
	"sync"

	vault "github.com/hashicorp/vault/api"
)

// VaultConfig Vault 配置
type VaultConfig struct {
	Address string `mapstructure:"address"` // e.g. http://vault:8200
	Token   string `mapstructure:"token"`
	Mount   string `mapstructure:"mount"` // KV v2 mount，默认 secret
	Path    string `mapstructure:"path"`  // 默认 secret 路径，key 不含 '#' 时从此路径读取字段
}

// vaultStore 从 KV v2 读取 secret；key 形如 "path#field" 或仅 "field"（使用默认 Path）
type vaultStore struct {
	kv   *vault.KVv2
	path string

	mu    sync.RWMutex
	cache map[string]string
}

// NewVaultStore 创建 Vault secret store
func NewVaultStore(cfg VaultConfig) (Store, error) {
	vcfg := vault.DefaultConfig()
	if cfg.Address != "" {
		vcfg.Address = cfg.Address
	}
	client, err := vault.NewClient(vcfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	if cfg.Token != "" {
		client.SetToken(cfg.Token)
	}
	if _, err := client.Sys().Health(); err != nil {
		return nil, fmt.Errorf("failed to connect to vault: %w", err)
	}

	mount := cfg.Mount
	if mount == "" {
		mount = "secret"
	}
	path := cfg.Path
	if path == "" {
		path = "listing-watcher"
	}
	return &vaultStore{
		kv:    client.KVv2(mount),
		path:  path,
		cache: make(map[string]string),
	}, nil
}

func (v *vaultStore) split(key string) (path, field string) {
	if i := strings.LastIndex(key, "#"); i >= 0 {
		return key[:i], key[i+1:]
	}
	return v.path, key
}

func (v *vaultStore) Get(ctx context.Context, key string) (string, error) {
	v.mu.RLock()
	if val, ok := v.cache[key]; ok {
		v.mu.RUnlock()
		return val, nil
	}
	v.mu.RUnlock()

	path, field := v.split(key)
	secret, err := v.kv.Get(ctx, path)
	if err != nil {
		return "", fmt.Errorf("failed to read secret from vault: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return "", fmt.Errorf("secret not found: %s", key)
	}
	val, ok := secret.Data[field].(string)
	if !ok {
		return "", fmt.Errorf("secret value not found: %s", key)
	}

	v.mu.Lock()
	v.cache[key] = val
	v.mu.Unlock()
	return val, nil
}

func (v *vaultStore) Set(ctx context.Context, key string, value string) error {
	path, field := v.split(key)
	if _, err := v.kv.Patch(ctx, path, map[string]interface{}{field: value}); err != nil {
		return fmt.Errorf("failed to write secret to vault: %w", err)
	}
	v.mu.Lock()
	v.cache[key] = value
	v.mu.Unlock()
	return nil
}
