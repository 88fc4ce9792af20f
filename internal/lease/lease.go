// Copyright (c) 2026 John Earle
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

// Package lease provides a Redis-backed mutual exclusion lease so only one
// service instance polls the mailbox at a time.
package lease

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	// DefaultTTL bounds how long a crashed holder blocks other instances.
	DefaultTTL = 2 * time.Minute

	// keyPrefix namespaces lease keys in Redis.
	keyPrefix = "procurement:lease:"
)

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Lease is a named lock held by at most one owner across instances.
type Lease struct {
	rdb   *redis.Client
	key   string
	ttl   time.Duration
	token string
}

// New creates a lease called name. Each Lease carries its own owner token.
func New(rdb *redis.Client, name string, ttl time.Duration) *Lease {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Lease{
		rdb:   rdb,
		key:   keyPrefix + name,
		ttl:   ttl,
		token: uuid.NewString(),
	}
}

// Acquire returns true if the lease was free and is now ours.
func (l *Lease) Acquire(ctx context.Context) (bool, error) {
	// SET NX = set only if key does not exist. Returns true if the key was set.
	ok, err := l.rdb.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("lease SETNX: %w", err)
	}
	return ok, nil
}

// Release frees the lease if we still own it.
func (l *Lease) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.rdb, []string{l.key}, l.token).Err(); err != nil {
		return fmt.Errorf("lease release: %w", err)
	}
	return nil
}
