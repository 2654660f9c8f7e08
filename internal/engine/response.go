package engine

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"syncserver/internal/syncstore"
)

// generateResponse implements §4.5: one response fragment for a View at
// its action-group boundary.
func (e *Engine) generateResponse(view *syncstore.View, printUser, printFilename string, force bool) string {
	var out strings.Builder

	if printUser != "" {
		fmt.Fprintf(&out, "u:%s\n", printUser)
	}
	if printFilename != "" {
		fmt.Fprintf(&out, "F:%d:%s\n", view.ShadowClientVersion, printFilename)
	}

	view.Doc.Lock()
	masterText := view.Doc.TextLocked()
	hasText := view.Doc.HasTextLocked()
	view.Doc.Unlock()

	// The backup shadow tracks what the shadow was immediately before this
	// round's server-originated edit, labeled with the version that edit is
	// about to go out under. If the client never receives this response
	// and replays that same version next time, applyDelta's rollback check
	// recognizes it and restores exactly this state.
	view.BackupShadow = view.Shadow
	view.BackupShadowServerVersion = view.ShadowServerVersion

	if view.DeltaOk {
		diffs := e.dmp.DiffMain(view.Shadow, masterText, false)
		diffs = e.dmp.DiffCleanupEfficiency(diffs)
		delta := e.dmp.DiffToDelta(diffs)

		tag := "d"
		if force {
			tag = "D"
		}
		view.PushEdit(view.ShadowServerVersion, fmt.Sprintf("%s:%d:%s\n", tag, view.ShadowServerVersion, delta))
		view.ShadowServerVersion++
		e.logger.Debug("sent delta", zap.String("user", view.User), zap.String("filename", view.Filename))
	} else {
		view.ShadowClientVersion++
		if !hasText {
			view.PushEdit(view.ShadowServerVersion, fmt.Sprintf("r:%d:\n", view.ShadowServerVersion))
			e.logger.Debug("sent empty raw reset", zap.String("user", view.User), zap.String("filename", view.Filename))
		} else {
			encoded := percentEncodeUTF8(masterText)
			view.PushEdit(view.ShadowServerVersion, fmt.Sprintf("R:%d:%s\n", view.ShadowServerVersion, encoded))
			e.logger.Debug("sent raw reset", zap.String("user", view.User), zap.String("filename", view.Filename),
				zap.Int("bytes", len(encoded)))
		}
	}

	view.Shadow = masterText

	for _, edit := range view.EditStack {
		out.WriteString(edit.Fragment)
	}

	return out.String()
}
