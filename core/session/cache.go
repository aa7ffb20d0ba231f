// Package session caches the provider session identifier for the whole
// process and serializes its renewal.
package session

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/singleflight"
)

// LoginFunc obtains a fresh SID from the provider.
type LoginFunc func(ctx context.Context) (string, error)

// Cache holds at most one SID. Concurrent callers needing a login share a
// single provider round trip.
type Cache struct {
	login LoginFunc

	mu  sync.RWMutex
	sid string

	group singleflight.Group
}

// NewCache returns an empty cache renewing sessions through login.
func NewCache(login LoginFunc) *Cache {
	return &Cache{login: login}
}

// Current returns the cached SID, if any.
func (c *Cache) Current() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sid, c.sid != ""
}

// Store replaces the cached SID. Empty values are ignored.
func (c *Cache) Store(sid string) {
	if sid == "" {
		return
	}
	c.mu.Lock()
	c.sid = sid
	c.mu.Unlock()
}

// GetOrLogin returns the cached SID or logs in to obtain one.
func (c *Cache) GetOrLogin(ctx context.Context) (string, error) {
	if sid, ok := c.Current(); ok {
		return sid, nil
	}
	return c.refresh(ctx, "")
}

// Renew replaces stale with a fresh SID. If the cache no longer holds stale
// because another caller already renewed it, the newer SID is returned
// without logging in again.
func (c *Cache) Renew(ctx context.Context, stale string) (string, error) {
	if sid, ok := c.Current(); ok && sid != stale {
		return sid, nil
	}
	return c.refresh(ctx, stale)
}

func (c *Cache) refresh(ctx context.Context, stale string) (string, error) {
	ch := c.group.DoChan("login", func() (any, error) {
		// A login that finished between our check and this point already
		// replaced the stale value.
		if sid, ok := c.Current(); ok && sid != stale {
			return sid, nil
		}
		// The shared login must outlive any single waiter's cancellation.
		sid, err := c.login(context.WithoutCancel(ctx))
		if err != nil {
			return "", err
		}
		if sid == "" {
			return "", errors.New("session: login returned an empty sid")
		}
		c.Store(sid)
		return sid, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
