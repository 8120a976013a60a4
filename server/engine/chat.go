package engine

// ChatLog is the append-only transcript shared by both agents.
type ChatLog struct {
	lines []ChatLine
}

func (c *ChatLog) Append(l ChatLine) { c.lines = append(c.lines, l) }

func (c *ChatLog) Len() int { return len(c.lines) }

// Lines returns a copy of the full transcript.
func (c *ChatLog) Lines() []ChatLine {
	return append([]ChatLine(nil), c.lines...)
}

// Round returns the lines of one round in order.
func (c *ChatLog) Round(n int) []ChatLine {
	var out []ChatLine
	for _, l := range c.lines {
		if l.Round == n {
			out = append(out, l)
		}
	}
	return out
}

// Truncate drops every line past n. Used to discard an abandoned round.
func (c *ChatLog) Truncate(n int) {
	if n < 0 {
		n = 0
	}
	if n < len(c.lines) {
		c.lines = c.lines[:n]
	}
}
