package relay

import "sync"

// Role identifies which side of a trade a channel belongs to.
type Role string

const (
	RoleMaker Role = "maker"
	RoleTaker Role = "taker"
)

// Registry tracks, per role and per order id, at most one live duplex
// channel. The first channel to claim a slot keeps it until the session
// closes; Release drops every entry for a closed session so the registry
// does not grow for the lifetime of the process. A per-session reverse index
// keeps disconnect cleanup proportional to that session's claims.
type Registry struct {
	mu       sync.Mutex
	channels map[Role]map[string]*Session
	claims   map[*Session][]claim
}

type claim struct {
	role    Role
	orderID string
}

func NewRegistry() *Registry {
	return &Registry{
		channels: map[Role]map[string]*Session{
			RoleMaker: {},
			RoleTaker: {},
		},
		claims: make(map[*Session][]claim),
	}
}

// Register claims the (role, orderID) slot for sess. Returns whether the
// registration occurred; an occupied slot is never replaced.
func (r *Registry) Register(role Role, orderID string, sess *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.channels[role][orderID]; ok {
		return false
	}
	r.channels[role][orderID] = sess
	r.claims[sess] = append(r.claims[sess], claim{role: role, orderID: orderID})
	return true
}

// Lookup returns the channel registered for (role, orderID), if any.
func (r *Registry) Lookup(role Role, orderID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.channels[role][orderID]
	return sess, ok
}

// Release removes every registration held by sess.
func (r *Registry) Release(sess *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.claims[sess] {
		if cur, ok := r.channels[c.role][c.orderID]; ok && cur == sess {
			delete(r.channels[c.role], c.orderID)
		}
	}
	delete(r.claims, sess)
}
