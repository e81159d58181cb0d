package settings

import (
	"context"
	"errors"
	"sync"
	"time"

	"engagement_backend/platform/logger"

	"golang.org/x/sync/singleflight"
)

// OverrideStore loads per-location overrides.
type OverrideStore interface {
	GetOverrides(ctx context.Context, locationID string) (Overrides, error)
}

type cacheEntry struct {
	profile   AgentProfile
	expiresAt time.Time
}

// Provider resolves the AgentProfile for a location: the location's row,
// then the default row, then environment defaults. Results are cached.
type Provider struct {
	store    OverrideStore
	defaults AgentProfile
	log      *logger.Logger
	group    singleflight.Group
	cache    map[string]cacheEntry
	cacheMu  sync.RWMutex
	cacheTTL time.Duration
	now      func() time.Time
}

// NewProvider creates a profile provider. A nil store serves defaults only.
func NewProvider(store OverrideStore, defaults AgentProfile, ttl time.Duration, log *logger.Logger) *Provider {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Provider{
		store:    store,
		defaults: defaults,
		log:      log,
		cache:    make(map[string]cacheEntry),
		cacheTTL: ttl,
		now:      time.Now,
	}
}

// Profile returns the profile for a location. Store failures fall back to
// the last cached value, or to defaults, and are logged.
func (p *Provider) Profile(ctx context.Context, locationID string) AgentProfile {
	if profile, ok := p.getFromCache(locationID, false); ok {
		return profile
	}

	v, err, _ := p.group.Do(locationID, func() (interface{}, error) {
		return p.load(context.WithoutCancel(ctx), locationID)
	})
	if err != nil {
		p.log.Warn("settings: load failed, serving fallback profile", "location_id", locationID, "error", err)
		if stale, ok := p.getFromCache(locationID, true); ok {
			return stale
		}
		fallback := p.defaults
		fallback.LocationID = locationID
		return fallback
	}

	profile := v.(AgentProfile)
	p.setCache(locationID, profile)
	return profile
}

// Refresh drops the cached profile for a location, or every location when
// locationID is "*".
func (p *Provider) Refresh(locationID string) {
	p.cacheMu.Lock()
	defer p.cacheMu.Unlock()
	if locationID == "*" {
		p.cache = make(map[string]cacheEntry)
		return
	}
	delete(p.cache, locationID)
	if locationID == DefaultLocation {
		// every location inherits from the default row
		p.cache = make(map[string]cacheEntry)
	}
}

func (p *Provider) load(ctx context.Context, locationID string) (AgentProfile, error) {
	profile := p.defaults
	profile.LocationID = locationID
	if p.store == nil {
		return profile, nil
	}

	base, err := p.store.GetOverrides(ctx, DefaultLocation)
	switch {
	case err == nil:
		profile = profile.Apply(base)
	case !errors.Is(err, ErrNotFound):
		return AgentProfile{}, err
	}

	if locationID == DefaultLocation {
		return profile, nil
	}

	own, err := p.store.GetOverrides(ctx, locationID)
	switch {
	case err == nil:
		profile = profile.Apply(own)
	case !errors.Is(err, ErrNotFound):
		return AgentProfile{}, err
	}
	return profile, nil
}

func (p *Provider) getFromCache(key string, allowStale bool) (AgentProfile, bool) {
	p.cacheMu.RLock()
	defer p.cacheMu.RUnlock()

	entry, ok := p.cache[key]
	if !ok {
		return AgentProfile{}, false
	}
	if !allowStale && p.now().After(entry.expiresAt) {
		return AgentProfile{}, false
	}
	return entry.profile, true
}

func (p *Provider) setCache(key string, profile AgentProfile) {
	p.cacheMu.Lock()
	defer p.cacheMu.Unlock()

	p.cache[key] = cacheEntry{
		profile:   profile,
		expiresAt: p.now().Add(p.cacheTTL),
	}
}
