// Package store persists conversation caches. Each conversation is one blob:
// a format byte followed by the JSON-encoded messages, zstd-compressed once
// it grows past a kilobyte.
package store

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"

	"github.com/NeboLoop/chat-go-sdk/conversation"
)

const compressionThreshold = 1024 // only compress blobs > 1KB

// Blob format bytes.
const (
	formatJSON byte = 'j'
	formatZstd byte = 'z'
)

var errBadBlob = errors.New("store: unknown blob format")

var (
	encoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	decoder, _ = zstd.NewReader(nil)
)

// compress compresses payload with zstd if it exceeds the threshold.
// Returns (compressed data, true) if compression helped, or (original, false).
func compress(payload []byte) ([]byte, bool) {
	if len(payload) <= compressionThreshold {
		return payload, false
	}
	compressed := encoder.EncodeAll(payload, make([]byte, 0, len(payload)))
	if len(compressed) >= len(payload) {
		return payload, false
	}
	return compressed, true
}

// encodeBlob serialises a conversation.
func encodeBlob(ms []conversation.Message) ([]byte, error) {
	if ms == nil {
		ms = []conversation.Message{}
	}
	payload, err := json.Marshal(ms)
	if err != nil {
		return nil, fmt.Errorf("marshal conversation: %w", err)
	}
	body, zipped := compress(payload)
	format := formatJSON
	if zipped {
		format = formatZstd
	}
	blob := make([]byte, 0, len(body)+1)
	blob = append(blob, format)
	return append(blob, body...), nil
}

// decodeBlob reverses encodeBlob. An empty blob is an empty conversation.
func decodeBlob(blob []byte) ([]conversation.Message, error) {
	if len(blob) == 0 {
		return nil, nil
	}
	body := blob[1:]
	switch blob[0] {
	case formatJSON:
	case formatZstd:
		raw, err := decoder.DecodeAll(body, nil)
		if err != nil {
			return nil, fmt.Errorf("decompress conversation: %w", err)
		}
		body = raw
	default:
		return nil, errBadBlob
	}
	var ms []conversation.Message
	if err := json.Unmarshal(body, &ms); err != nil {
		return nil, fmt.Errorf("unmarshal conversation: %w", err)
	}
	return ms, nil
}
