// Package protocol implements the line-and-frame wire format spoken between
// earshot and the device.
//
// Device to server is raw 16-bit PCM with two in-band sentinels,
// [MarkerLangRU] and [MarkerLangEN], that may appear anywhere in the byte
// stream. [Scanner] separates them from the audio.
//
// Server to device is a sequence of newline-terminated UTF-8 lines. A speech
// frame is the line [TokenSpeakingOn], a length line
// "__audio_len__ N", exactly N raw PCM bytes, and the line
// [TokenSpeakingOff]. [Writer] produces this format and [Reader] parses it.
package protocol

// Outbound control tokens.
const (
	TokenAwake        = "__awake__"
	TokenSleeping     = "__sleeping__"
	TokenListeningOn  = "__listening_on__"
	TokenListeningOff = "__listening_off__"
	TokenSpeakingOn   = "__speaking_on__"
	TokenSpeakingOff  = "__speaking_off__"
	TokenLangRUOK     = "LANG_RU_OK"
	TokenLangENOK     = "LANG_EN_OK"

	// audioLenPrefix starts the length line of a speech frame.
	audioLenPrefix = "__audio_len__ "
)

// Inbound in-band markers.
const (
	MarkerLangRU = "__lang_ru__"
	MarkerLangEN = "__lang_en__"
)

// Markers lists every inbound marker.
var Markers = []string{MarkerLangRU, MarkerLangEN}

// MaxFrameBytes bounds the payload a [Reader] accepts in one speech frame.
// At 16 kHz mono 16-bit this is a little over five minutes of audio.
const MaxFrameBytes = 10 << 20
