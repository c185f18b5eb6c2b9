package chat

import (
	"sync"

	"github.com/proconq/proconq/internal/creds"
	"github.com/proconq/proconq/internal/idalloc"
)

// Registry holds live sessions, the id allocator, and the credential store
// behind a single mutex, so that credential deletion and the forced GUEST
// downgrade of a live session happen atomically (§8 property 6).
type Registry struct {
	mu       sync.Mutex
	sessions map[int]*Session
	ids      *idalloc.Allocator
	creds    *creds.Store
}

func NewRegistry(store *creds.Store) *Registry {
	return &Registry{
		sessions: make(map[int]*Session),
		ids:      idalloc.New(),
		creds:    store,
	}
}

// Accept allocates an id and registers sess under it. Returns the assigned
// id, or an error if the id space is exhausted (§7 AllocationError).
func (r *Registry) Accept(sess *Session) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, err := r.ids.Allocate()
	if err != nil {
		return 0, err
	}
	sess.id = id
	r.sessions[id] = sess
	return id, nil
}

// Remove releases id and drops the session from the registry. A missing id
// is tolerated (§4.G).
func (r *Registry) Remove(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
	r.ids.Release(id)
}

// Get returns the live session for id, or nil.
func (r *Registry) Get(id int) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[id]
}

// Snapshot returns every live session for the USERS listing. Entries are
// copies of the fields needed to render the listing, not the sessions
// themselves, so callers never touch session state outside the lock.
func (r *Registry) Snapshot() []UserEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]UserEntry, 0, len(r.sessions))
	for id, sess := range r.sessions {
		out = append(out, UserEntry{ID: id, Name: sess.PrincipalName()})
	}
	return out
}

// UserEntry is one row of the USERS listing.
type UserEntry struct {
	ID   int
	Name string
}

// Login verifies credentials and, on success, sets sess's principal. Runs
// under the registry lock so a concurrent DELUSER cannot race a login.
func (r *Registry) Login(sess *Session, name, password string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ok, err := r.creds.Verify(name, password)
	if err != nil {
		return false, err
	}
	if ok {
		sess.setPrincipal(name)
	}
	return ok, nil
}

// Register creates a new credential row.
func (r *Registry) Register(name, password string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.creds.Register(name, password)
}

// Credentials returns a snapshot of every stored name → hash, gated by
// callers checking the ADMIN principal.
func (r *Registry) Credentials() (map[string]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.creds.List()
}

// DeleteUser removes name's credential row and, if it existed, forces a
// GUEST downgrade on every live session currently authenticated as name
// (§8 property 6, "atomic delete-downgrade"). The audit entry is appended
// in the same critical section as the delete.
func (r *Registry) DeleteUser(actor, name string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	deleted, err := r.creds.Delete(name)
	if err != nil {
		return false, err
	}
	if err := r.creds.Audit(actor, "DELUSER", name); err != nil {
		return deleted, err
	}
	if !deleted {
		return false, nil
	}
	for _, sess := range r.sessions {
		if sess.PrincipalName() == name {
			sess.forceLogout()
		}
	}
	return true, nil
}

// AuditDatabaseRead records a DATABASE read attempt (success or failure).
func (r *Registry) AuditDatabaseRead(actor string, ok bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	action := "DATABASE"
	if !ok {
		action = "DATABASE_DENIED"
	}
	return r.creds.Audit(actor, action, "")
}

// AuditDenied records an admin-gated attempt that never reached the store
// (non-admin caller, or a disallowed target such as GUEST).
func (r *Registry) AuditDenied(actor, action, target string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.creds.Audit(actor, action+"_DENIED", target)
}
