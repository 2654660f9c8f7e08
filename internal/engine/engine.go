// Package engine implements the differential-sync state machine: given a
// parsed action list it walks it left-to-right, reconciling each
// (user, filename) View against its Document and emitting the server's
// divergence back to the client.
package engine

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
	"go.uber.org/zap"

	"syncserver/internal/protocol"
	"syncserver/internal/syncstore"
)

// Engine ties the protocol parser, the view/document registries, and the
// diff-match-patch primitive together into the request handler described
// in spec §4.3.
type Engine struct {
	views  *syncstore.ViewRegistry
	dmp    *diffmatchpatch.DiffMatchPatch
	logger *zap.Logger
}

// New creates an Engine serving views out of the given registry.
func New(views *syncstore.ViewRegistry, logger *zap.Logger) *Engine {
	return &Engine{
		views:  views,
		dmp:    diffmatchpatch.New(),
		logger: logger,
	}
}

// HandleRequest parses body and returns the concatenated response
// fragments with a terminating newline, per §6. When there are no
// fragments (overflow, or only null actions) it returns "" with no newline.
func (e *Engine) HandleRequest(body string) string {
	actions := protocol.ParseRequest(e.logger, body)
	result := e.processActions(actions)
	if result == "" {
		return ""
	}
	return result + "\n"
}

// processActions is the doActions loop: one pass over the action list,
// dispatching each action against the current View and emitting one
// response fragment per action group.
func (e *Engine) processActions(actions []protocol.Action) string {
	var output strings.Builder
	var view *syncstore.View
	var lastUser, lastFilename string
	haveLast := false

	for i := range actions {
		action := actions[i]

		if view == nil {
			v, err := e.views.Attach(action.User, action.Filename)
			if err != nil {
				// Too many views connected at once. Pretend the whole
				// response packet was lost; the client will retry.
				e.logger.Warn("view overflow, dropping response",
					zap.String("user", action.User), zap.String("filename", action.Filename))
				return ""
			}
			view = v
			view.DeltaOk = true
		}

		if action.Mode == protocol.ModeNull {
			view.Doc.Lock()
			view.Doc.ClearTextLocked()
			view.Doc.Unlock()
			e.views.Detach(view)
			view = nil
			continue
		}

		switch action.Mode {
		case protocol.ModeRaw:
			e.applyRaw(view, action)
		case protocol.ModeDelta:
			e.applyDelta(view, action)
		}

		isLastAction := i == len(actions)-1
		groupEnds := isLastAction ||
			actions[i+1].User != action.User ||
			actions[i+1].Filename != action.Filename
		if !groupEnds {
			continue
		}

		printUser := ""
		if action.EchoUser && (!haveLast || lastUser != action.User) {
			printUser = action.User
		}
		printFilename := ""
		if !haveLast || lastFilename != action.Filename || lastUser != action.User {
			printFilename = action.Filename
		}

		output.WriteString(e.generateResponse(view, printUser, printFilename, action.Force))
		lastUser, lastFilename, haveLast = action.User, action.Filename, true
		view = nil
	}

	return output.String()
}

// applyRaw implements the "raw" action of §4.3: the client's text dump
// becomes the new shadow, and conditionally clobbers the document.
func (e *Engine) applyRaw(view *syncstore.View, action protocol.Action) {
	data, err := percentDecodeUTF8(action.Data)
	if err != nil {
		e.logger.Warn("raw payload is not valid UTF-8 after percent-decode",
			zap.String("user", view.User), zap.String("filename", view.Filename), zap.Error(err))
		return
	}

	view.DeltaOk = true
	view.Shadow = data
	view.ShadowClientVersion = action.ClientVersion
	view.ShadowServerVersion = action.ServerVersion
	view.BackupShadow = data
	view.BackupShadowServerVersion = action.ServerVersion
	view.EditStack = nil

	view.Doc.Lock()
	if action.Force || !view.Doc.HasTextLocked() {
		view.Doc.SetTextLocked(data)
	}
	view.Doc.Unlock()
}

// applyDelta implements the version-reconciliation case analysis of §4.3.
func (e *Engine) applyDelta(view *syncstore.View, action protocol.Action) {
	if action.ServerVersion != view.ShadowServerVersion &&
		action.ServerVersion == view.BackupShadowServerVersion {
		// The client never received our last response. Roll back to the
		// backup shadow and forget what we thought we'd sent.
		e.logger.Warn("rollback from shadow to backup shadow",
			zap.Int("shadow", view.ShadowServerVersion),
			zap.Int("backupShadow", view.BackupShadowServerVersion))
		view.Shadow = view.BackupShadow
		view.ShadowServerVersion = view.BackupShadowServerVersion
		view.EditStack = nil
	}

	view.PruneEditStack(action.ServerVersion)

	switch {
	case action.ServerVersion != view.ShadowServerVersion:
		view.DeltaOk = false
		e.logger.Warn("shadow version mismatch",
			zap.Int("got", action.ServerVersion), zap.Int("want", view.ShadowServerVersion))

	case action.ClientVersion > view.ShadowClientVersion:
		view.DeltaOk = false
		e.logger.Warn("delta from the future",
			zap.Int("got", action.ClientVersion), zap.Int("want", view.ShadowClientVersion))

	case action.ClientVersion < view.ShadowClientVersion:
		// Duplicate edit we've already applied; ignore silently.
		e.logger.Debug("repeated delta ignored",
			zap.Int("got", action.ClientVersion), zap.Int("want", view.ShadowClientVersion))

	default:
		diffs, err := e.dmp.DiffFromDelta(view.Shadow, action.Data)
		if err != nil {
			view.DeltaOk = false
			e.logger.Warn("delta decode failed against current shadow", zap.Error(err))
			return
		}
		view.ShadowClientVersion++
		view.Doc.Lock()
		e.applyPatches(view, diffs)
		view.Doc.Unlock()
	}
}

// applyPatches implements §4.4: patches are recomputed against the current
// shadow, applied unconditionally to the shadow, and applied best-effort to
// the document text. Caller must hold view.Doc's lock.
func (e *Engine) applyPatches(view *syncstore.View, diffs []diffmatchpatch.Diff) {
	patches := e.dmp.PatchMake(view.Shadow, diffs)

	newShadow, _ := e.dmp.PatchApply(patches, view.Shadow)
	view.Shadow = newShadow

	newText, _ := e.dmp.PatchApply(patches, view.Doc.TextLocked())
	view.Doc.ApplyPatchedTextLocked(newText)
}
