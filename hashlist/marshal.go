package hashlist

import (
	"encoding/hex"

	"github.com/pkg/errors"
)

// MarshalText renders the hash as lowercase hex, which keeps hash
// list files readable.
func (h StrongHash) MarshalText() ([]byte, error) {
	out := make([]byte, hex.EncodedLen(len(h)))
	hex.Encode(out, h[:])
	return out, nil
}

func (h *StrongHash) UnmarshalText(text []byte) error {
	if hex.DecodedLen(len(text)) != len(h) {
		return errors.Errorf("strong hash: want %d hex chars, got %d", hex.EncodedLen(len(h)), len(text))
	}
	_, err := hex.Decode(h[:], text)
	return errors.WithStack(err)
}
