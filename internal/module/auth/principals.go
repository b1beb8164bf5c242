package auth

import (
	"strconv"
	"time"

	shardedcache "github.com/simp-lee/cache"

	"github.com/simp-lee/practiceadmin/internal/domain"
)

// PrincipalCache keeps recently verified principals so that every request
// does not reread the staff table. A nil *PrincipalCache caches nothing.
type PrincipalCache struct {
	cache shardedcache.CacheInterface
}

const principalShards = 8

// NewPrincipalCache creates a cache of about size principals, each held for
// ttl. Close must be called exactly once.
func NewPrincipalCache(size int, ttl time.Duration) *PrincipalCache {
	return &PrincipalCache{cache: shardedcache.NewCache(shardedcache.Options{
		MaxSize:           max(size/principalShards, 1),
		DefaultExpiration: ttl,
		CleanupInterval:   time.Minute,
		ShardCount:        principalShards,
	})}
}

func (pc *PrincipalCache) get(id uint) (*domain.Principal, bool) {
	if pc == nil {
		return nil, false
	}
	p, ok := shardedcache.GetTyped[domain.Principal](pc.cache, principalKey(id))
	if !ok {
		return nil, false
	}
	return &p, true
}

// put stores a copy so callers may not change the cached entry.
func (pc *PrincipalCache) put(p *domain.Principal) {
	if pc == nil {
		return
	}
	pc.cache.Set(principalKey(p.StaffID), *p)
}

// Forget drops the cached principal of account id.
func (pc *PrincipalCache) Forget(id uint) {
	if pc == nil {
		return
	}
	pc.cache.Delete(principalKey(id))
}

// Close stops the cache's cleanup goroutines.
func (pc *PrincipalCache) Close() {
	if pc == nil {
		return
	}
	pc.cache.Close()
}

func principalKey(id uint) string {
	return "staff:" + strconv.FormatUint(uint64(id), 10)
}
