package agent

import (
	"fmt"
	"strings"

	"rps-thunderdome/server/engine"
)

const chatPrompt = "Generate a short, strategic message to your opponent in a rock-paper-scissors game. " +
	"Try to influence their next move or make them second-guess their strategy."

func renderDecisionPrompt(st State, chat []engine.ChatLine) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, playing an iterated game of rock-paper-scissors against one opponent.\n", st.Name)
	fmt.Fprintf(&b, "This is round %d.\n\n", st.Round)

	b.WriteString("Your previous decisions (oldest first):\n")
	if len(st.Decisions) == 0 {
		b.WriteString("- none yet\n")
	}
	for _, d := range st.Decisions {
		fmt.Fprintf(&b, "- round %d: played %s", d.Round, d.Move)
		if r := strings.TrimSpace(d.Rationale); r != "" {
			fmt.Fprintf(&b, " (strategy: %s)", oneLine(r))
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "\nYour opponent's move history (inferred from results, ties omitted): %s\n", formatMoves(st.OpponentMoves))
	if st.LastResult != "" {
		fmt.Fprintf(&b, "Last round winner: %s\n", st.LastResult)
	}
	if len(st.Scoreboard.Players) > 0 {
		fmt.Fprintf(&b, "Current %s\n", st.Scoreboard)
	}

	if len(chat) > 0 {
		b.WriteString("\nMessages from your opponent:\n")
		for _, l := range chat {
			fmt.Fprintf(&b, "- [round %d] %s: %q\n", l.Round, l.Speaker, l.Text)
		}
	}

	b.WriteString(`
Respond ONLY with a single compact JSON object:
{"rationale":"<your strategy in one or two sentences>","chat":"<optional short message to your opponent, or empty>","move":"rock"|"paper"|"scissors"}
Rules:
- "move" must be exactly one of rock, paper, scissors.
- Keep "chat" empty if you have nothing to say.
- No extra keys. No prose. No markdown.`)
	return b.String()
}

func renderThinkPrompt(st State) string {
	scoreboard := "no rounds played yet"
	if len(st.Scoreboard.Players) > 0 {
		scoreboard = st.Scoreboard.String()
	}
	return fmt.Sprintf("You are playing rock-paper-scissors. Your opponent's move history is %s. "+
		"The current scoreboard is %s. What's your strategy for the next move? Explain your reasoning.",
		formatMoves(st.OpponentMoves), scoreboard)
}

func renderGuessPrompt(rationale string) string {
	var b strings.Builder
	if rationale != "" {
		fmt.Fprintf(&b, "Your analysis for this round was:\n%s\n\n", rationale)
	}
	b.WriteString("Based on your previous analysis, what's your next move in rock-paper-scissors? " +
		"Respond with only 'rock', 'paper', or 'scissors'.")
	return b.String()
}

func renderRevisePrompt(initial engine.Move, opponentChat string) string {
	return fmt.Sprintf("You initially guessed %s for this round of rock-paper-scissors. Your opponent then said: '%s'. "+
		"Would you like to change your guess? If yes, what's your new guess? If no, stick with your original guess. "+
		"Respond with only 'rock', 'paper', 'scissors', or 'stay'.", initial, opponentChat)
}

func formatMoves(ms []engine.Move) string {
	if len(ms) == 0 {
		return "[]"
	}
	parts := make([]string, len(ms))
	for i, m := range ms {
		parts[i] = string(m)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
