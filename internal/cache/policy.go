package cache

import (
	"fmt"
	"time"

	"github.com/lalith-99/huddle/internal/cachekey"
)

// Policy maps each key family to its TTL.
//
// High-churn data (message pages, presence, unread counts) gets short TTLs;
// profiles and workspace lists change rarely and live longer. Every family is
// configurable so the staleness window can be traded against store load
// without a code change.
type Policy map[cachekey.Family]time.Duration

// DefaultPolicy returns the default TTL for every family.
func DefaultPolicy() Policy {
	return Policy{
		cachekey.UserProfile:     300 * time.Second,
		cachekey.WorkspaceList:   300 * time.Second,
		cachekey.WorkspaceDetail: 300 * time.Second,
		cachekey.ChannelList:     300 * time.Second,
		cachekey.ChannelMessages: 60 * time.Second,
		cachekey.UserOnline:      300 * time.Second,
		cachekey.UnreadCount:     30 * time.Second,
	}
}

// TTL returns the lifetime for family, or zero if the family is unknown.
func (p Policy) TTL(f cachekey.Family) time.Duration {
	return p[f]
}

// With returns a copy of p with f set to ttl.
func (p Policy) With(f cachekey.Family, ttl time.Duration) Policy {
	out := make(Policy, len(p)+1)
	for k, v := range p {
		out[k] = v
	}
	out[f] = ttl
	return out
}

// Validate reports families without a positive TTL. A zero TTL would make
// every Set a delete and silently disable the family.
func (p Policy) Validate() error {
	for _, f := range cachekey.Families() {
		if p[f] <= 0 {
			return fmt.Errorf("cache policy: family %s has no positive TTL", f)
		}
	}
	return nil
}
