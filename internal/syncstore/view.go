package syncstore

import (
	"errors"
	"sync"
	"time"
)

// ErrOverflow is returned by ViewRegistry.Attach when creating a new View
// would exceed the configured cap. The caller is expected to respond with
// an empty body, simulating a lost packet.
var ErrOverflow = errors.New("syncstore: too many views")

// editEntry is one unacknowledged server-originated edit sitting in a
// View's edit stack, paired with the serverVersion it was sent at.
type editEntry struct {
	ServerVersion int
	Fragment      string
}

// View represents one client's session on one Document: the server's
// shadow of what that client currently holds, plus the bookkeeping needed
// to reconcile future deltas against it.
type View struct {
	User     string
	Filename string
	Doc      *Document

	Shadow                    string
	ShadowClientVersion       int
	ShadowServerVersion       int
	BackupShadow              string
	BackupShadowServerVersion int
	EditStack                 []editEntry

	// DeltaOk is scoped to a single action: true unless this action's
	// delta could not be decoded or its versions desynced, in which case
	// the response downgrades to a raw reset.
	DeltaOk bool

	lastActivity time.Time
}

// PruneEditStack drops every entry the client has implicitly acknowledged
// by reporting a serverVersion at or beyond it.
func (v *View) PruneEditStack(ackedServerVersion int) {
	kept := v.EditStack[:0]
	for _, e := range v.EditStack {
		if e.ServerVersion > ackedServerVersion {
			kept = append(kept, e)
		}
	}
	v.EditStack = kept
}

// PushEdit appends a new unacknowledged server-originated edit.
func (v *View) PushEdit(serverVersion int, fragment string) {
	v.EditStack = append(v.EditStack, editEntry{ServerVersion: serverVersion, Fragment: fragment})
}

// viewKey is the (user, filename) pair keying the View registry.
type viewKey struct {
	user     string
	filename string
}

// ViewRegistry is the process-wide (user, filename) -> View map plus the
// mutex that serializes lookup, insert, and delete against it.
type ViewRegistry struct {
	mu       sync.Mutex
	views    map[viewKey]*View
	docs     *DocumentRegistry
	maxViews int // 0 = unbounded
}

// NewViewRegistry creates an empty view registry backed by docs. maxViews
// of 0 means unbounded.
func NewViewRegistry(docs *DocumentRegistry, maxViews int) *ViewRegistry {
	return &ViewRegistry{
		views:    make(map[viewKey]*View),
		docs:     docs,
		maxViews: maxViews,
	}
}

// Attach looks up the View for (user, filename), refreshing its activity
// timestamp on a hit. On a miss it attaches the backing Document (acquiring
// the document-registry lock nested inside this one, never the reverse)
// and creates a new View, unless doing so would exceed maxViews, in which
// case it returns ErrOverflow.
//
// The strict greater-than comparison below (rather than >=) matches the
// original MobWrite server's behavior: the effective cap is maxViews+1
// existing views before the next creation is refused.
func (r *ViewRegistry) Attach(user, filename string) (*View, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := viewKey{user: user, filename: filename}
	if v, ok := r.views[key]; ok {
		v.lastActivity = time.Now()
		return v, nil
	}

	if r.maxViews != 0 && len(r.views) > r.maxViews {
		return nil, ErrOverflow
	}

	doc := r.docs.attach(filename)
	v := &View{
		User:         user,
		Filename:     filename,
		Doc:          doc,
		DeltaOk:      true,
		lastActivity: time.Now(),
	}
	r.views[key] = v
	return v, nil
}

// Detach removes v from the registry and releases its Document reference.
// A no-op if v has already been replaced or removed.
func (r *ViewRegistry) Detach(v *View) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := viewKey{user: v.User, filename: v.Filename}
	if cur, ok := r.views[key]; !ok || cur != v {
		return
	}
	delete(r.views, key)
	r.docs.detach(v.Doc)
}

// Sweep detaches every View whose lastActivity is older than idleTimeout.
// Returns the views removed, for logging.
func (r *ViewRegistry) Sweep(idleTimeout time.Duration) []*View {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	var removed []*View
	for key, v := range r.views {
		if now.Sub(v.lastActivity) > idleTimeout {
			delete(r.views, key)
			r.docs.detach(v.Doc)
			removed = append(removed, v)
		}
	}
	return removed
}

// Len reports the number of views currently tracked, for tests and
// diagnostics.
func (r *ViewRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.views)
}
