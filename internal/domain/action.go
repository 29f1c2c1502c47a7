package domain

// Action is a caretaking intervention applied after decay.
type Action string

const (
	ActionFeed Action = "feed"
	ActionPlay Action = "play"
	ActionHeal Action = "heal"
)

const (
	feedHungerGain    = 20.0
	playHappinessGain = 15.0
	playHungerCost    = 5.0
	healHealthGain    = 25.0
)

// Apply returns p with the action's delta applied and gauges kept in range.
// It never touches IsAlive; only decay kills and only rebirth revives.
func (a Action) Apply(p Pet) Pet {
	switch a {
	case ActionFeed:
		p.Hunger = min(MaxGauge, p.Hunger+feedHungerGain)
	case ActionPlay:
		p.Happiness = min(MaxGauge, p.Happiness+playHappinessGain)
		p.Hunger = max(MinGauge, p.Hunger-playHungerCost)
	case ActionHeal:
		p.Health = min(MaxGauge, p.Health+healHealthGain)
	}
	return p.Clamp()
}

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	switch a {
	case ActionFeed, ActionPlay, ActionHeal:
		return true
	}
	return false
}
