package engine

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestConvergence_TwoViewsAlternatingDeltas covers lifecycle scenario 2:
// two Views on the same document converge to identical shadow text after
// one extra empty (no-op) round for the View that didn't originate the
// edit.
func TestConvergence_TwoViewsAlternatingDeltas(t *testing.T) {
	e, _, views := newTestEngine(0)

	e.HandleRequest("u:alice\nF:0:shared\nR:0:AB\n\n")
	e.HandleRequest("u:bob\nF:0:shared\nR:0:AB\n\n")

	// Alice appends "!"; only her shadow and doc.text change so far.
	e.HandleRequest("u:alice\nf:0:shared\nd:1:=2\t+!\n\n")

	bobView, err := views.Attach("bob", "shared")
	require.NoError(t, err)
	require.Equal(t, "AB", bobView.Shadow, "bob hasn't round-tripped yet")

	// One extra no-op round for bob (acking his own state, changing
	// nothing) is enough for the response generator to diff his stale
	// shadow against the now-updated document and catch him up.
	e.HandleRequest("u:bob\nf:0:shared\nd:1:=2\n\n")

	assert.Equal(t, "AB!", bobView.Shadow)

	aliceView, err := views.Attach("alice", "shared")
	require.NoError(t, err)
	assert.Equal(t, aliceView.Shadow, bobView.Shadow, "both views converge on the same shadow text")

	aliceView.Doc.Lock()
	defer aliceView.Doc.Unlock()
	assert.Equal(t, "AB!", aliceView.Doc.TextLocked())
}

// TestConcurrentViewsOnSameDocument exercises the concurrency property:
// distinct Views on the same Document, driven from separate goroutines,
// must never corrupt doc.text or the registry's bookkeeping — every raw
// write is serialized by the per-Document lock even though the Views
// themselves are never shared across goroutines.
func TestConcurrentViewsOnSameDocument(t *testing.T) {
	e, docs, views := newTestEngine(0)

	const n = 20
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			user := fmt.Sprintf("user%d", i)
			req := fmt.Sprintf("u:%s\nF:0:shared\nR:0:payload-%d\n\n", user, i)
			e.HandleRequest(req)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, docs.Len(), "all views share one document")
	assert.Equal(t, n, views.Len())

	v, err := views.Attach("user0", "shared")
	require.NoError(t, err)
	v.Doc.Lock()
	text := v.Doc.TextLocked()
	v.Doc.Unlock()
	assert.Contains(t, text, "payload-", "document holds one of the concurrently-written payloads intact, not a torn write")
}

// TestDocumentViewCountMatchesLiveViews covers the invariant
// doc.views == |{live Views referencing doc}| at registry-stable points.
func TestDocumentViewCountMatchesLiveViews(t *testing.T) {
	_, docs, views := newTestEngine(0)

	v1, err := views.Attach("alice", "memo")
	require.NoError(t, err)
	v2, err := views.Attach("bob", "memo")
	require.NoError(t, err)
	assert.Equal(t, 2, v1.Doc.Views())
	require.Same(t, v1.Doc, v2.Doc)

	views.Detach(v1)
	assert.Equal(t, 1, v2.Doc.Views())

	views.Detach(v2)
	assert.Equal(t, 0, v2.Doc.Views())
	assert.Equal(t, 1, docs.Len(), "detaching the last view doesn't remove the document; that's the janitor's job")
}
