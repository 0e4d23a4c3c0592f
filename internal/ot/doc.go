// Package ot implements the operational-transform primitives the
// collaborative document core is built on: a flat rich-text content model,
// range-replace steps, position maps with bias, and a lossy same-author
// step merge used before persistence.
package ot

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Doc is the authoritative content of one collaborative document. Positions
// used by steps, comments and cursors are rune offsets into Text.
type Doc struct {
	Text string `json:"text"`
}

// NewDefaultDoc returns the seed document used when nothing is persisted:
// a single paragraph holding fifteen newlines.
func NewDefaultDoc() *Doc {
	return &Doc{Text: strings.Repeat("\n", 15)}
}

// Len returns the document length in runes.
func (d *Doc) Len() int {
	return len([]rune(d.Text))
}

// Clone returns an independent copy.
func (d *Doc) Clone() *Doc {
	return &Doc{Text: d.Text}
}

// MarshalJSON keeps the persisted shape stable.
func (d *Doc) MarshalJSON() ([]byte, error) {
	type alias Doc
	return json.Marshal((*alias)(d))
}

// DecodeDoc deserialises a persisted document payload.
func DecodeDoc(raw json.RawMessage) (*Doc, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty document payload")
	}
	var d Doc
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return &d, nil
}
