package domain

import "time"

const (
	msPerHour = float64(time.Hour / time.Millisecond)

	// minDecayHours (~3.6s) stops near-simultaneous calls from charging decay twice.
	minDecayHours = 0.001

	hungerDecayPerHour    = 5.0
	happinessDecayPerHour = 3.0
	healthDecayPerHour    = 2.0

	starvingThreshold   = 20.0
	starvingMultiplier  = 2.0
	miserableThreshold  = 20.0
	miserableMultiplier = 1.5
)

type stageThreshold struct {
	stage    Stage
	minHours float64
}

// Ordered highest first; the first match wins.
var stageThresholds = []stageThreshold{
	{StageSenior, 168},
	{StageAdult, 72},
	{StageTeen, 24},
	{StageChild, 6},
	{StageBaby, 1},
	{StageEgg, 0},
}

// StageForAge maps an age in hours to its life stage. Thresholds are inclusive
// lower bounds: exactly 72h is adult.
func StageForAge(hours float64) Stage {
	for _, t := range stageThresholds {
		if hours >= t.minHours {
			return t.stage
		}
	}
	return StageEgg
}

// ApplyDecay ages the pet to now. Dead pets and intervals shorter than
// minDecayHours (including negative ones) come back unchanged.
func ApplyDecay(p Pet, now time.Time) Pet {
	if !p.IsAlive {
		return p
	}

	nowMs := now.UnixMilli()
	hours := float64(nowMs-p.LastUpdate) / msPerHour
	if hours < minDecayHours {
		return p
	}

	p.Hunger = max(MinGauge, p.Hunger-hungerDecayPerHour*hours)
	p.Happiness = max(MinGauge, p.Happiness-happinessDecayPerHour*hours)

	healthDecay := healthDecayPerHour * hours
	if p.Hunger < starvingThreshold {
		healthDecay *= starvingMultiplier
	}
	if p.Happiness < miserableThreshold {
		healthDecay *= miserableMultiplier
	}
	p.Health = max(MinGauge, p.Health-healthDecay)

	p.Age = float64(nowMs-p.BirthTime) / msPerHour
	p.Stage = StageForAge(p.Age)
	p.LastUpdate = nowMs

	if p.Health <= 0 {
		p.IsAlive = false
		p.Health = 0
	}

	return p
}
