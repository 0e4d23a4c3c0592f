package collab

import "classhub/internal/ot"

// Selection is one client's cursor range.
type Selection struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// Cursors maps client ids to selections. Every mutation bumps the version
// so pollers can tell whether anything moved. Cursors are never persisted.
type Cursors struct {
	version    int
	selections map[string]Selection
}

// NewCursors builds an empty cursor table.
func NewCursors() *Cursors {
	return &Cursors{selections: make(map[string]Selection)}
}

// Version returns the mutation counter.
func (c *Cursors) Version() int {
	return c.version
}

// Update stores a selection for the client and bumps the version.
func (c *Cursors) Update(clientID string, sel Selection) {
	c.selections[clientID] = sel
	c.version++
}

// Remove drops a client's cursor. Removing an absent id is a no-op so a
// fresh registration does not wake pollers.
func (c *Cursors) Remove(clientID string) {
	if _, ok := c.selections[clientID]; !ok {
		return
	}
	delete(c.selections, clientID)
	c.version++
}

// Get returns the cursor table when the caller is behind, nil otherwise.
func (c *Cursors) Get(sinceVersion int) map[string]Selection {
	if sinceVersion >= c.version {
		return nil
	}
	out := make(map[string]Selection, len(c.selections))
	for k, v := range c.selections {
		out[k] = v
	}
	return out
}

// MapThrough rewrites every selection through the mapping.
func (c *Cursors) MapThrough(m ot.Mapping) {
	for id, sel := range c.selections {
		c.selections[id] = Selection{
			From: m.Map(sel.From, 1),
			To:   m.Map(sel.To, -1),
		}
	}
}
