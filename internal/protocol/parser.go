package protocol

import (
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// ParseRequest splits a request body into lines and turns each recognized
// tagged line into an Action. Malformed lines are skipped and logged; they
// never abort the rest of the parse. Empty input yields an empty slice.
//
// Grammar (one action per line, tag:payload):
//
//	u:<username>              set current user, echo off
//	U:<username>              set current user, echo on
//	f:<clientVersion>:<name>  set current filename, no force
//	F:<clientVersion>:<name>  set current filename, force
//	d:<serverVersion>:<delta> delta edit, no force
//	D:<serverVersion>:<delta> delta edit, force overwrite
//	r:<serverVersion>:<data>  raw text, no force (percent-encoded UTF-8)
//	R:<serverVersion>:<data>  raw text, force overwrite
//	n:<name>                  nullify document
//	N:<name>                  nullify document
//
// A blank line terminates a logical request group, but since grouping of
// consecutive same (user, filename) actions is done by the engine, the
// parser itself just ignores blank lines.
func ParseRequest(logger *zap.Logger, text string) []Action {
	var (
		actions       []Action
		user          string
		echoUser      bool
		filename      string
		force         bool
		clientVersion int
	)

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}

		tag := line[0]
		if len(line) < 2 || line[1] != ':' {
			logger.Warn("skipping malformed line: missing tag separator", zap.String("line", line))
			continue
		}
		payload := line[2:]

		switch tag {
		case 'u', 'U':
			user = payload
			echoUser = tag == 'U'

		case 'f', 'F':
			version, name, ok := splitVersionedPayload(payload)
			if !ok {
				logger.Warn("skipping malformed filename line", zap.String("line", line))
				continue
			}
			n, err := strconv.Atoi(version)
			if err != nil {
				logger.Warn("skipping filename line with bad version", zap.String("line", line))
				continue
			}
			clientVersion = n
			filename = name
			force = tag == 'F'

		case 'd', 'D', 'r', 'R':
			versionStr, data, ok := splitVersionedPayload(payload)
			if !ok {
				logger.Warn("skipping malformed edit line", zap.String("line", line))
				continue
			}
			serverVersion, err := strconv.Atoi(versionStr)
			if err != nil {
				logger.Warn("skipping edit line with bad version", zap.String("line", line))
				continue
			}
			mode := ModeDelta
			if tag == 'r' || tag == 'R' {
				mode = ModeRaw
			}
			actions = append(actions, Action{
				User:          user,
				Filename:      filename,
				Mode:          mode,
				Data:          data,
				Force:         force || tag == 'D' || tag == 'R',
				ClientVersion: clientVersion,
				ServerVersion: serverVersion,
				EchoUser:      echoUser,
			})

		case 'n', 'N':
			actions = append(actions, Action{
				User:     user,
				Filename: payload,
				Mode:     ModeNull,
				EchoUser: echoUser,
			})

		default:
			logger.Warn("skipping line with unrecognized tag", zap.String("line", line))
		}
	}

	return actions
}

// splitVersionedPayload splits a "<version>:<rest>" payload on the first
// colon. The rest may itself contain colons (deltas and raw text do).
func splitVersionedPayload(payload string) (version, rest string, ok bool) {
	idx := strings.IndexByte(payload, ':')
	if idx < 0 {
		return "", "", false
	}
	return payload[:idx], payload[idx+1:], true
}
