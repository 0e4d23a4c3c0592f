package ot

import "fmt"

// Step is a unit transformation: replace the rune range [From,To) with Text.
// From == To is an insertion, empty Text a deletion. ClientID records who
// authored the step and survives persistence.
type Step struct {
	ClientID string `json:"clientID"`
	From     int    `json:"from"`
	To       int    `json:"to"`
	Text     string `json:"text,omitempty"`
}

// Validate checks the step against a document of the given rune length.
func (s Step) Validate(docLen int) error {
	if s.From < 0 || s.To < s.From || s.To > docLen {
		return fmt.Errorf("step range [%d,%d) out of bounds for document of length %d", s.From, s.To, docLen)
	}
	return nil
}

// Apply performs the replacement, returning the new document. The input
// document is not modified.
func (s Step) Apply(d *Doc) (*Doc, error) {
	runes := []rune(d.Text)
	if err := s.Validate(len(runes)); err != nil {
		return nil, err
	}
	out := make([]rune, 0, len(runes)-(s.To-s.From)+len([]rune(s.Text)))
	out = append(out, runes[:s.From]...)
	out = append(out, []rune(s.Text)...)
	out = append(out, runes[s.To:]...)
	return &Doc{Text: string(out)}, nil
}

// InsertedLen returns the rune length of the replacement text.
func (s Step) InsertedLen() int {
	return len([]rune(s.Text))
}

// Map returns the position map induced by this step.
func (s Step) Map() StepMap {
	return StepMap{from: s.From, to: s.To, inserted: s.InsertedLen()}
}

// StepMap maps document positions through one step. Bias decides which side
// a position that falls exactly on the replaced range sticks to: negative
// bias keeps it before the insertion, positive bias moves it after.
type StepMap struct {
	from     int
	to       int
	inserted int
}

// Map transforms pos through the step. bias must be -1 or +1.
func (m StepMap) Map(pos, bias int) int {
	if pos < m.from {
		return pos
	}
	if pos > m.to {
		return pos + m.inserted - (m.to - m.from)
	}
	// Position inside (or on the edge of) the replaced range.
	if bias < 0 {
		return m.from
	}
	return m.from + m.inserted
}

// Mapping composes a sequence of step maps.
type Mapping struct {
	maps []StepMap
}

// NewMapping builds a composed mapping from a batch of steps.
func NewMapping(steps []Step) Mapping {
	var m Mapping
	for _, s := range steps {
		m.maps = append(m.maps, s.Map())
	}
	return m
}

// Append adds one more step map at the end of the composition.
func (m *Mapping) Append(sm StepMap) {
	m.maps = append(m.maps, sm)
}

// Map threads a position through every step map in order.
func (m Mapping) Map(pos, bias int) int {
	for _, sm := range m.maps {
		pos = sm.Map(pos, bias)
	}
	return pos
}

// Len returns the number of composed maps.
func (m Mapping) Len() int {
	return len(m.maps)
}
