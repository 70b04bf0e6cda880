package pingagg

// Suggestion tier boundaries in milliseconds.
const (
	competitiveCeiling = 50
	actionCeiling      = 100
	strategyCeiling    = 150
)

// Suggestion recommends a game category for a room's latency profile.
type Suggestion struct {
	Category  string   `json:"category"`
	Games     []string `json:"games"`
	Reason    string   `json:"reason"`
	PingRange string   `json:"pingRange"`
	Color     string   `json:"color"`
}

// SuggestFor maps an average latency to its recommendation tier.
func SuggestFor(avgPing float64) Suggestion {
	switch {
	case avgPing < competitiveCeiling:
		return Suggestion{
			Category:  "Competitive",
			Games:     []string{"Counter-Strike 2", "Valorant", "League of Legends", "Rocket League"},
			Reason:    "Low ping, ideal for competitive play",
			PingRange: "< 50ms",
			Color:     "#48bb78",
		}
	case avgPing < actionCeiling:
		return Suggestion{
			Category:  "Action",
			Games:     []string{"Fortnite", "Apex Legends", "Call of Duty", "Overwatch 2"},
			Reason:    "Good ping, well suited for action games",
			PingRange: "50-100ms",
			Color:     "#38b2ac",
		}
	case avgPing < strategyCeiling:
		return Suggestion{
			Category:  "Strategy",
			Games:     []string{"Civilization VI", "Age of Empires IV", "StarCraft II", "Chess.com"},
			Reason:    "Moderate ping, strategy games play fine",
			PingRange: "100-150ms",
			Color:     "#ed8936",
		}
	default:
		return Suggestion{
			Category:  "Turn-based",
			Games:     []string{"Hearthstone", "Gwent", "Auto Chess", "Board Game Arena"},
			Reason:    "High ping, turn-based games recommended",
			PingRange: "> 150ms",
			Color:     "#f56565",
		}
	}
}
