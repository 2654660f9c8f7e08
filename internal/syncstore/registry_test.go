package syncstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestViewRegistry_AttachCreatesDocumentOnce(t *testing.T) {
	docs := NewDocumentRegistry()
	views := NewViewRegistry(docs, 0)

	v1, err := views.Attach("alice", "memo")
	require.NoError(t, err)
	v2, err := views.Attach("bob", "memo")
	require.NoError(t, err)

	assert.Equal(t, 1, docs.Len())
	assert.Same(t, v1.Doc, v2.Doc)
	assert.Equal(t, 2, v1.Doc.Views())
}

func TestViewRegistry_AttachIsIdempotentPerKey(t *testing.T) {
	docs := NewDocumentRegistry()
	views := NewViewRegistry(docs, 0)

	v1, err := views.Attach("alice", "memo")
	require.NoError(t, err)
	v2, err := views.Attach("alice", "memo")
	require.NoError(t, err)

	assert.Same(t, v1, v2)
	assert.Equal(t, 1, v1.Doc.Views())
}

func TestViewRegistry_OverflowLeavesExistingViewsAlone(t *testing.T) {
	docs := NewDocumentRegistry()
	views := NewViewRegistry(docs, 1)

	_, err := views.Attach("alice", "memo")
	require.NoError(t, err)
	_, err = views.Attach("bob", "memo")
	require.NoError(t, err)

	_, err = views.Attach("carol", "memo")
	assert.ErrorIs(t, err, ErrOverflow)
	assert.Equal(t, 2, views.Len())
}

func TestViewRegistry_DetachDecrementsDocumentViews(t *testing.T) {
	docs := NewDocumentRegistry()
	views := NewViewRegistry(docs, 0)

	v, err := views.Attach("alice", "memo")
	require.NoError(t, err)
	require.Equal(t, 1, v.Doc.Views())

	views.Detach(v)
	assert.Equal(t, 0, v.Doc.Views())
	assert.Equal(t, 0, views.Len())
}

func TestDocumentRegistry_SweepRemovesOnlyUnreferencedIdleDocuments(t *testing.T) {
	docs := NewDocumentRegistry()
	views := NewViewRegistry(docs, 0)

	_, err := views.Attach("alice", "busy")
	require.NoError(t, err)

	idleView, err := views.Attach("bob", "idle")
	require.NoError(t, err)
	views.Detach(idleView)

	// "busy" still has an attached view; "idle" has none but was just
	// touched, so neither should be swept with a generous timeout.
	removed := docs.Sweep(time.Hour)
	assert.Empty(t, removed)

	removed = docs.Sweep(-time.Second)
	assert.ElementsMatch(t, []string{"idle"}, removed)
	assert.Equal(t, 1, docs.Len())
}

func TestViewRegistry_SweepDetachesIdleViews(t *testing.T) {
	docs := NewDocumentRegistry()
	views := NewViewRegistry(docs, 0)

	v, err := views.Attach("alice", "memo")
	require.NoError(t, err)

	removed := views.Sweep(time.Hour)
	assert.Empty(t, removed)

	removed = views.Sweep(-time.Second)
	require.Len(t, removed, 1)
	assert.Same(t, v, removed[0])
	assert.Equal(t, 0, v.Doc.Views())
}
