package engine

import "testing"

func TestDecideAllCombinations(t *testing.T) {
	cases := []struct {
		a, b Move
		want Side
	}{
		{Rock, Rock, Tie},
		{Rock, Paper, SideB},
		{Rock, Scissors, SideA},
		{Paper, Rock, SideA},
		{Paper, Paper, Tie},
		{Paper, Scissors, SideB},
		{Scissors, Rock, SideB},
		{Scissors, Paper, SideA},
		{Scissors, Scissors, Tie},
	}
	for _, tc := range cases {
		if got := Decide(tc.a, tc.b); got != tc.want {
			t.Fatalf("Decide(%s, %s) = %q, want %q", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestDefeatsAndDefeatedByAreInverse(t *testing.T) {
	for _, m := range Moves {
		if !m.Beats(m.Defeats()) {
			t.Fatalf("%s should beat %s", m, m.Defeats())
		}
		if !m.DefeatedBy().Beats(m) {
			t.Fatalf("%s should beat %s", m.DefeatedBy(), m)
		}
		if m.Defeats().DefeatedBy() != m {
			t.Fatalf("inverse mismatch for %s", m)
		}
	}
}

func TestParseMove(t *testing.T) {
	ok := map[string]Move{
		"rock":      Rock,
		"  Paper\n": Paper,
		"SCISSORS.": Scissors,
		"\"rock\"":  Rock,
		"**paper**": Paper,
	}
	for in, want := range ok {
		got, valid := ParseMove(in)
		if !valid || got != want {
			t.Fatalf("ParseMove(%q) = %q,%v want %q", in, got, valid, want)
		}
	}
	for _, in := range []string{"", "stone", "rock paper", "lizard", "stay"} {
		if _, valid := ParseMove(in); valid {
			t.Fatalf("ParseMove(%q) should be rejected", in)
		}
	}
}

func TestScoreboard(t *testing.T) {
	sb := NewScoreboard("A", "B")
	for _, w := range []string{"A", "", "B", "A"} {
		if err := sb.Record(w); err != nil {
			t.Fatalf("Record(%q): %v", w, err)
		}
	}
	if err := sb.Record("C"); err == nil {
		t.Fatalf("expected error for unknown player")
	}
	st := sb.Snapshot()
	if st.Wins("A") != 2 || st.Wins("B") != 1 || st.Ties != 1 {
		t.Fatalf("unexpected standings: %+v", st)
	}
	if st.Rounds() != 4 {
		t.Fatalf("expected 4 rounds, got %d", st.Rounds())
	}
	if got, want := st.String(), "Scoreboard: {A: 2, B: 1, Ties: 1}"; got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}

	// snapshots do not alias live state
	_ = sb.Record("B")
	if st.Wins("B") != 1 {
		t.Fatalf("snapshot changed after Record")
	}
}

func TestChatLogTruncate(t *testing.T) {
	var c ChatLog
	c.Append(ChatLine{Round: 1, Speaker: "A", Text: "hi", Kind: KindChat})
	c.Append(ChatLine{Round: 1, Speaker: "", Text: "result", Kind: KindResult})
	mark := c.Len()
	c.Append(ChatLine{Round: 2, Speaker: "B", Text: "rock incoming", Kind: KindChat})
	if len(c.Round(2)) != 1 {
		t.Fatalf("expected one line in round 2")
	}
	c.Truncate(mark)
	if c.Len() != 2 || len(c.Round(2)) != 0 {
		t.Fatalf("truncate did not drop round 2: %+v", c.Lines())
	}
	lines := c.Lines()
	lines[0].Text = "mutated"
	if c.Lines()[0].Text != "hi" {
		t.Fatalf("Lines should return a copy")
	}
}
