// Package syncstore holds the process-wide Document and View registries:
// the shared in-memory document store and the per-client shadow state, each
// paired with the mutex that guards it.
package syncstore

import (
	"sync"
	"time"
)

// Document is the authoritative text for one document name, shared by every
// View attached to it.
//
// text is a pointer so that "absent" (never set, or nullified) is
// distinguishable from the empty string.
type Document struct {
	Name string

	mu           sync.Mutex
	text         *string
	lastModified time.Time
	createdAt    time.Time

	// views is the number of Views currently attached to this Document.
	// It is owned by the DocumentRegistry's mutex, not mu: incrementing
	// and decrementing always happens while a caller holds the registry
	// lock, so that "views == 0" is observable without racing a
	// concurrent attach.
	views int
}

// Lock acquires the per-document mutex. Callers must hold it across any
// read-modify-write of the document's text: a raw overwrite, a patch
// cycle, or a nullify.
func (d *Document) Lock() { d.mu.Lock() }

// Unlock releases the per-document mutex.
func (d *Document) Unlock() { d.mu.Unlock() }

// TextLocked returns the document's text, or "" if absent. Caller must
// hold Lock.
func (d *Document) TextLocked() string {
	if d.text == nil {
		return ""
	}
	return *d.text
}

// HasTextLocked reports whether the document's text has ever been set (and
// not since nullified). Caller must hold Lock.
func (d *Document) HasTextLocked() bool {
	return d.text != nil
}

// SetTextLocked replaces the document's text and bumps lastModified. A
// no-op if the text is already identical, per §4.3's raw-mode clobber rule.
// Caller must hold Lock.
func (d *Document) SetTextLocked(text string) {
	if d.text != nil && *d.text == text {
		return
	}
	d.text = &text
	d.lastModified = time.Now()
}

// ApplyPatchedTextLocked replaces the document's text with the result of a
// patch cycle and unconditionally bumps lastModified, even if the patched
// text happens to equal what was already there — unlike SetTextLocked,
// which is reserved for the raw-overwrite no-op case. Caller must hold
// Lock.
func (d *Document) ApplyPatchedTextLocked(text string) {
	d.text = &text
	d.lastModified = time.Now()
}

// ClearTextLocked nullifies the document's text. Caller must hold Lock.
func (d *Document) ClearTextLocked() {
	d.text = nil
	d.lastModified = time.Now()
}

// Views returns the number of Views currently attached. Safe to call
// without any lock only from the DocumentRegistry itself, which already
// holds its own mutex whenever it reads or writes this field.
func (d *Document) Views() int {
	return d.views
}

// DocumentRegistry is the process-wide name -> Document map plus the mutex
// that serializes lookup, insert, and delete against it.
type DocumentRegistry struct {
	mu   sync.Mutex
	docs map[string]*Document
}

// NewDocumentRegistry creates an empty document registry.
func NewDocumentRegistry() *DocumentRegistry {
	return &DocumentRegistry{
		docs: make(map[string]*Document),
	}
}

// attach looks up the named Document, creating it with no text on miss,
// and increments its view count. Held only for the duration of the
// lookup/insert — no I/O, no per-document lock is taken here.
func (r *DocumentRegistry) attach(name string) *Document {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, ok := r.docs[name]
	if !ok {
		now := time.Now()
		doc = &Document{Name: name, createdAt: now, lastModified: now}
		r.docs[name] = doc
	}
	doc.views++
	return doc
}

// detach decrements the Document's view count. It does not remove the
// Document from the registry even if the count reaches zero; that is the
// janitor's job, gated additionally on the text-idle timeout.
func (r *DocumentRegistry) detach(doc *Document) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc.views--
}

// Sweep removes every Document with zero attached views whose text has
// been untouched for longer than idleTimeout. Returns the names removed,
// for logging.
func (r *DocumentRegistry) Sweep(idleTimeout time.Duration) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	var removed []string
	for name, doc := range r.docs {
		doc.mu.Lock()
		expired := doc.views == 0 && now.Sub(doc.lastModified) > idleTimeout
		doc.mu.Unlock()
		if expired {
			delete(r.docs, name)
			removed = append(removed, name)
		}
	}
	return removed
}

// Len reports the number of documents currently tracked, for tests and
// diagnostics.
func (r *DocumentRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.docs)
}
