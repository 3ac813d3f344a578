// Package wsserver provides a WebSocket server for streaming terminal output
// to the frontend.
//
// # Binary frame protocol
//
// Binary frame format: [1 byte: sessionID length][sessionID bytes][data bytes]
//
//   - Byte 0: uint8 length of the session ID (0..255).
//   - Bytes 1..1+sessionIDLen: session ID encoded as ASCII/UTF-8.
//   - Remaining bytes: raw terminal data (may be empty).
//
// EncodeSessionData produces frames in this format; DecodeSessionData parses them.
package wsserver

import (
	"fmt"
	"log/slog"
)

// maxSessionIDLen is the maximum session ID length that fits in the 1-byte length
// prefix of the binary frame protocol. Session IDs exceeding this are truncated.
const maxSessionIDLen = 255

// EncodeSessionData constructs a binary frame for streaming terminal output to
// the frontend.
//
// Frame format:
//
//	[1 byte: len(sessionID) as uint8] [sessionID bytes (ASCII)] [data bytes]
//
// The frame avoids JSON serialization overhead on the hot path (~60Hz per session).
// A single allocation is used: make([]byte, 1+len(sessionID)+len(data)).
//
// Precondition: len(sessionID) must fit in uint8 (max 255 bytes). Longer session IDs
// are silently truncated to 255 bytes with a debug log.
func EncodeSessionData(sessionID string, data []byte) ([]byte, error) {
	if len(sessionID) == 0 {
		return nil, fmt.Errorf("wsserver: encode session data: sessionID must not be empty")
	}

	id := sessionID
	if len(id) > maxSessionIDLen {
		// Warn (not Debug) because truncation changes the session ID used for
		// routing, risking data delivery to the wrong session if two IDs share
		// the same 255-byte prefix.
		slog.Warn("[DEBUG-WS] sessionID truncated, collision risk: different sessions may receive each other's data",
			"originalLen", len(id), "truncatedTo", maxSessionIDLen, "sessionID", id[:maxSessionIDLen])
		id = id[:maxSessionIDLen]
	}

	idLen := len(id)
	buf := make([]byte, 1+idLen+len(data))
	buf[0] = byte(idLen)
	copy(buf[1:1+idLen], id)
	copy(buf[1+idLen:], data)
	return buf, nil
}

// DecodeSessionData parses a binary frame produced by EncodeSessionData.
// Returns the session ID and raw terminal data, or an error if the frame is
// malformed (empty frame, insufficient length for declared session ID).
//
// Zero-copy: The returned data slice shares memory with frame.
// Callers must not modify frame after calling this function.
func DecodeSessionData(frame []byte) (sessionID string, data []byte, err error) {
	if len(frame) < 1 {
		return "", nil, fmt.Errorf("wsserver: decode session data: empty frame")
	}

	idLen := int(frame[0])
	// The frame must contain at least the length byte + idLen bytes of session ID.
	if len(frame) < 1+idLen {
		return "", nil, fmt.Errorf("wsserver: decode session data: frame too short for sessionID length %d (frame length %d)", idLen, len(frame))
	}

	sessionID = string(frame[1 : 1+idLen])
	data = frame[1+idLen:]
	return sessionID, data, nil
}
