package ot

// Merger collapses two consecutive steps into one. Implementations may be
// lossy; the instance only merges runs that share a ClientID so per-step
// authorship survives persistence.
type Merger interface {
	// Merge attempts to combine a followed by b. The second return value
	// reports whether a merge happened.
	Merge(a, b Step) (Step, bool)
}

// RangeMerger merges a pair of range-replace steps when the second step
// falls on or inside the text produced by the first. The result is a single
// replace step; intermediate states are lost.
type RangeMerger struct{}

// Merge combines a then b when b touches a's output range.
func (RangeMerger) Merge(a, b Step) (Step, bool) {
	if a.ClientID != b.ClientID {
		return Step{}, false
	}
	insEnd := a.From + a.InsertedLen()
	if b.From < a.From || b.From > insEnd {
		return Step{}, false
	}

	overlapEnd := b.To
	if overlapEnd > insEnd {
		overlapEnd = insEnd
	}
	text := []rune(a.Text)
	merged := string(text[:b.From-a.From]) + b.Text + string(text[overlapEnd-a.From:])

	// Deletion extending past a's inserted text widens the original range.
	extra := b.To - overlapEnd
	return Step{
		ClientID: a.ClientID,
		From:     a.From,
		To:       a.To + extra,
		Text:     merged,
	}, true
}

// MergeSteps folds a step slice with the given merger, merging only
// neighbouring steps. The input slice is not modified.
func MergeSteps(steps []Step, m Merger) []Step {
	if len(steps) == 0 {
		return nil
	}
	out := make([]Step, 0, len(steps))
	out = append(out, steps[0])
	for _, s := range steps[1:] {
		last := out[len(out)-1]
		if merged, ok := m.Merge(last, s); ok {
			out[len(out)-1] = merged
			continue
		}
		out = append(out, s)
	}
	return out
}
