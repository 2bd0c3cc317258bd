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

package notify

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	pkgerrors "listing-watcher/pkg/errors"
)

// PostgresSink 将投递内容归档到 Postgres，按 key 幂等
type PostgresSink struct {
	pool  *pgxpool.Pool
	table string
}

// NewPostgresSink 连接数据库并确保表存在
func NewPostgresSink(ctx context.Context, dsn, table string) (*PostgresSink, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	if table == "" {
		table = "delivered_items"
	}
	s := &PostgresSink{pool: pool, table: pgx.Identifier{table}.Sanitize()}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresSink) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS `+s.table+` (
		key         TEXT PRIMARY KEY,
		destination TEXT NOT NULL,
		body        TEXT NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`)
	if err != nil {
		return fmt.Errorf("postgres ensure schema: %w", err)
	}
	return nil
}

// Send 实现 Notifier；重复 key 不报错，Receipt.Duplicate 为 true
func (s *PostgresSink) Send(ctx context.Context, dest string, msg Message) (Receipt, error) {
	key := msg.Key
	if key == "" {
		return Receipt{}, pkgerrors.Wrap(pkgerrors.ErrInvalidArg, "postgres sink requires message key")
	}
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO `+s.table+` (key, destination, body) VALUES ($1, $2, $3) ON CONFLICT (key) DO NOTHING`,
		key, dest, msg.Text)
	if err != nil {
		return Receipt{}, pkgerrors.Transient(fmt.Errorf("postgres insert: %w", err))
	}
	return Receipt{MessageID: key, Duplicate: tag.RowsAffected() == 0}, nil
}

// Close 关闭连接池
func (s *PostgresSink) Close() {
	s.pool.Close()
}
