// Package inmem keeps the denylist of revoked credential ids. Entries only
// need to outlive the credential they name, so every store takes an expiry.
package inmem

import (
	"context"
	"fmt"
	"strconv"
	"time"

	consul "github.com/hashicorp/consul/api"
)

type Client interface {
	Revoke(ctx context.Context, id string, until time.Time) error
	IsRevoked(ctx context.Context, id string) (bool, error)
	// Prune drops entries that expired before now and reports how many.
	Prune(ctx context.Context, now time.Time) (int, error)
}

const keyPrefix = "taskdesk/revoked/"

type client struct {
	consul *consul.Client
	now    func() time.Time
}

func NewClient(c *consul.Client) Client {
	return &client{consul: c, now: time.Now}
}

func (c *client) Revoke(ctx context.Context, id string, until time.Time) error {
	p := &consul.KVPair{
		Key:   keyPrefix + id,
		Value: []byte(strconv.FormatInt(until.Unix(), 10)),
	}
	_, err := c.consul.KV().Put(p, (&consul.WriteOptions{}).WithContext(ctx))
	return err
}

func (c *client) IsRevoked(ctx context.Context, id string) (bool, error) {
	kv, _, err := c.consul.KV().Get(keyPrefix+id, (&consul.QueryOptions{}).WithContext(ctx))
	if err != nil {
		return false, err
	}
	if kv == nil {
		return false, nil
	}

	until, err := parseUntil(kv.Value)
	if err != nil {
		return false, err
	}
	return c.now().Before(until), nil
}

func (c *client) Prune(ctx context.Context, now time.Time) (int, error) {
	pairs, _, err := c.consul.KV().List(keyPrefix, (&consul.QueryOptions{}).WithContext(ctx))
	if err != nil {
		return 0, err
	}

	var n int
	for _, kv := range pairs {
		until, err := parseUntil(kv.Value)
		if err == nil && now.Before(until) {
			continue
		}
		if _, err := c.consul.KV().Delete(kv.Key, (&consul.WriteOptions{}).WithContext(ctx)); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func parseUntil(b []byte) (time.Time, error) {
	sec, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed denylist entry: %w", err)
	}
	return time.Unix(sec, 0), nil
}
