package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestParseRequest_Empty(t *testing.T) {
	actions := ParseRequest(zap.NewNop(), "")
	assert.Empty(t, actions)
}

func TestParseRequest_Delta(t *testing.T) {
	actions := ParseRequest(zap.NewNop(), "u:fred\nf:3:report\nd:2:=10+Hello-7=2\n\n")
	assert.Equal(t, []Action{{
		User:          "fred",
		Filename:      "report",
		Mode:          ModeDelta,
		Data:          "=10+Hello-7=2",
		Force:         false,
		ClientVersion: 3,
		ServerVersion: 2,
		EchoUser:      false,
	}}, actions)
}

func TestParseRequest_RawForceEcho(t *testing.T) {
	actions := ParseRequest(zap.NewNop(), "U:fred\nF:3:report\nR:2:Hello World\n\n")
	assert.Equal(t, []Action{{
		User:          "fred",
		Filename:      "report",
		Mode:          ModeRaw,
		Data:          "Hello World",
		Force:         true,
		ClientVersion: 3,
		ServerVersion: 2,
		EchoUser:      true,
	}}, actions)
}

func TestParseRequest_Null(t *testing.T) {
	actions := ParseRequest(zap.NewNop(), "U:fred\nN:report\n\n")
	assert.Equal(t, []Action{{
		User:     "fred",
		Filename: "report",
		Mode:     ModeNull,
		EchoUser: true,
	}}, actions)
}

func TestParseRequest_SkipsMalformedLines(t *testing.T) {
	actions := ParseRequest(zap.NewNop(), "u:fred\nf:3:report\nx:nonsense\nd:nope\nd:2:ok\n\n")
	assert.Len(t, actions, 1)
	assert.Equal(t, "ok", actions[0].Data)
}

func TestParseRequest_MultipleFilesSameUser(t *testing.T) {
	actions := ParseRequest(zap.NewNop(), "u:fred\nf:0:a\nd:0:=1\nf:0:b\nd:0:=1\n\n")
	assert.Len(t, actions, 2)
	assert.Equal(t, "a", actions[0].Filename)
	assert.Equal(t, "b", actions[1].Filename)
}
