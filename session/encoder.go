package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const (
	recordFormatVersionCurrent = 1
	recordFormatVersionV1      = 1
)

var (
	errEmptyRecord        = errors.New("empty session record")
	errUnsupportedVersion = errors.New("unsupported session schema version")
)

type wireRecord struct {
	Data           Data   `json:"data"`
	CreatedAt      int64  `json:"createdAt"`
	LastAccessedAt int64  `json:"lastAccessedAt"`
	ExpiresAt      int64  `json:"expiresAt"`
	Revision       uint64 `json:"revision"`
}

// Encode serializes r as one version byte followed by JSON. The id is not
// stored; it is the storage key.
func Encode(r *Record) ([]byte, error) {
	body, err := json.Marshal(wireRecord{
		Data:           r.Data,
		CreatedAt:      r.CreatedAt.UnixMilli(),
		LastAccessedAt: r.LastAccessedAt.UnixMilli(),
		ExpiresAt:      r.ExpiresAt.UnixMilli(),
		Revision:       r.Revision,
	})
	if err != nil {
		return nil, fmt.Errorf("encode session: %w", err)
	}

	out := make([]byte, 0, len(body)+1)
	out = append(out, recordFormatVersionCurrent)
	return append(out, body...), nil
}

// Decode parses data produced by Encode. The returned record has no ID.
func Decode(data []byte) (*Record, error) {
	if len(data) == 0 {
		return nil, errEmptyRecord
	}

	switch data[0] {
	case recordFormatVersionV1:
	default:
		return nil, fmt.Errorf("%w: %d", errUnsupportedVersion, data[0])
	}

	var w wireRecord
	if err := json.Unmarshal(data[1:], &w); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}

	return &Record{
		Data:           w.Data,
		CreatedAt:      time.UnixMilli(w.CreatedAt),
		LastAccessedAt: time.UnixMilli(w.LastAccessedAt),
		ExpiresAt:      time.UnixMilli(w.ExpiresAt),
		Revision:       w.Revision,
	}, nil
}

// revisionOf decodes only what SaveIfCurrent needs from a stored blob.
func revisionOf(data []byte) (uint64, error) {
	r, err := Decode(data)
	if err != nil {
		return 0, err
	}
	return r.Revision, nil
}
