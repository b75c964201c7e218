package core

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// cachedValidationContext answers "does this objective/channel exist, and
// in what state" by delegating to a Reconstructor, with a bounded LRU in
// front so a crank loop issuing many Validate calls in a row does not
// refold the whole log on every call.
type cachedValidationContext struct {
	recon *Reconstructor

	objectives *lru.Cache[ObjId, cachedObjectiveEntry]
	channels   *lru.Cache[Hash, cachedChannelEntry]

	mu      sync.Mutex
	msgSeen map[Hash]struct{}
}

type cachedObjectiveEntry struct {
	state ObjectiveState
	ok    bool
}

type cachedChannelEntry struct {
	state ChannelState
	ok    bool
}

// NewValidationContext returns a ValidationContext backed by recon, caching
// up to cacheSize entries per entity kind (objectives, channels). A
// cacheSize <= 0 disables caching (every lookup refolds from the store).
func NewValidationContext(recon *Reconstructor, cacheSize int) ValidationContext {
	c := &cachedValidationContext{
		recon:   recon,
		msgSeen: make(map[Hash]struct{}),
	}
	if cacheSize > 0 {
		// lru.New only errors on a non-positive size, which is guarded here.
		c.objectives, _ = lru.New[ObjId, cachedObjectiveEntry](cacheSize)
		c.channels, _ = lru.New[Hash, cachedChannelEntry](cacheSize)
	}
	return c
}

func (c *cachedValidationContext) Objective(id ObjId) (ObjectiveState, bool) {
	if c.objectives != nil {
		if e, ok := c.objectives.Get(id); ok {
			return e.state, e.ok
		}
	}
	st, err := c.recon.ReconstructObjective(id)
	entry := cachedObjectiveEntry{state: st, ok: err == nil}
	if c.objectives != nil {
		c.objectives.Add(id, entry)
	}
	return entry.state, entry.ok
}

func (c *cachedValidationContext) Channel(id Hash) (ChannelState, bool) {
	if c.channels != nil {
		if e, ok := c.channels.Get(id); ok {
			return e.state, e.ok
		}
	}
	st, err := c.recon.ReconstructChannel(id)
	entry := cachedChannelEntry{state: st, ok: err == nil}
	if c.channels != nil {
		c.channels.Add(id, entry)
	}
	return entry.state, entry.ok
}

// MessageSent reports whether a message-sent event with the given id has
// been recorded. Positive answers are cached unconditionally: the log is
// append-only, so a message id once seen never becomes unseen.
func (c *cachedValidationContext) MessageSent(id Hash) bool {
	c.mu.Lock()
	if _, ok := c.msgSeen[id]; ok {
		c.mu.Unlock()
		return true
	}
	c.mu.Unlock()
	if !c.recon.MessageSentExists(id) {
		return false
	}
	c.mu.Lock()
	c.msgSeen[id] = struct{}{}
	c.mu.Unlock()
	return true
}

// Invalidate drops any cached entry for id from both the objective and
// channel caches, so a just-appended event is reflected on the next lookup
// instead of returning stale cached state.
func (c *cachedValidationContext) Invalidate(id Hash) {
	if c.objectives != nil {
		c.objectives.Remove(id)
	}
	if c.channels != nil {
		c.channels.Remove(id)
	}
}
