package engine

type Move string

const (
	Rock     Move = "rock"
	Paper    Move = "paper"
	Scissors Move = "scissors"
)

// Moves lists every legal move in a fixed order.
var Moves = []Move{Rock, Paper, Scissors}

// Side identifies the winner of a round. The empty side is a tie.
type Side string

const (
	SideA Side = "A"
	SideB Side = "B"
	Tie   Side = ""
)

type ChatKind string

const (
	KindChat   ChatKind = "chat"
	KindResult ChatKind = "result"
)

type ChatLine struct {
	Round   int      `json:"round"`
	Speaker string   `json:"speaker"`
	Text    string   `json:"text"`
	Kind    ChatKind `json:"kind"`
}
