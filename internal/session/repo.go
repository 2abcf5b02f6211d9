package session

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Repo stores live sessions with a sliding TTL. When a session expires
// without a clean close, the expiry callback runs so the orchestrator can
// finish the bookkeeping a dropped call skipped.
type Repo struct {
	cache *gocache.Cache
	now   func() time.Time
}

// NewRepo builds a session store. onExpired runs for sessions the cache
// evicts while still open; it never runs for sessions closed and deleted
// through the normal path.
func NewRepo(ttl time.Duration, onExpired func(*Session)) *Repo {
	sweep := ttl / 2
	if sweep < time.Minute {
		sweep = time.Minute
	}
	c := gocache.New(ttl, sweep)
	if onExpired != nil {
		c.OnEvicted(func(_ string, value interface{}) {
			sess, ok := value.(*Session)
			if !ok {
				return
			}
			sess.Lock()
			open := sess.State != StateClosed
			sess.Unlock()
			if open {
				onExpired(sess)
			}
		})
	}
	return &Repo{cache: c, now: time.Now}
}

// Get returns a live session by call id.
func (r *Repo) Get(id string) (*Session, bool) {
	value, ok := r.cache.Get(id)
	if !ok {
		return nil, false
	}
	return value.(*Session), true
}

// GetOrCreate returns the session for a call id, creating it on first
// contact. Created reports whether this call is new. Concurrent first
// contacts for the same id converge on one session: Add is atomic, and the
// loser re-reads the winner's entry.
func (r *Repo) GetOrCreate(id string) (sess *Session, created bool) {
	if existing, ok := r.Get(id); ok {
		return existing, false
	}
	sess = newSession(id, r.now())
	if err := r.cache.Add(id, sess, gocache.DefaultExpiration); err != nil {
		if existing, ok := r.Get(id); ok {
			return existing, false
		}
	}
	return sess, true
}

// Touch resets the session's TTL after a turn. A caller still talking is a
// call still live.
func (r *Repo) Touch(sess *Session) {
	sess.LastActivity = r.now()
	r.cache.SetDefault(sess.ID, sess)
}

// Delete removes a cleanly closed session. The expiry callback is skipped
// because the session is already in StateClosed.
func (r *Repo) Delete(id string) {
	r.cache.Delete(id)
}

// Len counts live sessions.
func (r *Repo) Len() int {
	return r.cache.ItemCount()
}
