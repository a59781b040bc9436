package core

// Mode is a selectable chat persona. Each mode carries a system instruction
// for the generation backend and a tier requirement.
type Mode string

const (
	ModeGeneral Mode = "general"
	ModeStudent Mode = "student"
	ModeGame    Mode = "game"
	ModeStartup Mode = "startup"
)

type ModeConfig struct {
	Label       string `json:"label"`
	Description string `json:"description"`
	Tier        string `json:"tier"` // "free" or "premium"
}

var Modes = map[Mode]ModeConfig{
	ModeGeneral: {
		Label:       "General",
		Description: "All-purpose intelligence",
		Tier:        TierFree,
	},
	ModeStudent: {
		Label:       "Student",
		Description: "Learn faster, understand better",
		Tier:        TierFree,
	},
	ModeGame: {
		Label:       "Game",
		Description: "Turn life into a level-up",
		Tier:        TierPremium,
	},
	ModeStartup: {
		Label:       "Startup",
		Description: "Build the next big thing",
		Tier:        TierPremium,
	},
}

var systemInstructions = map[Mode]string{
	ModeGeneral: "You are MUZGPT. Tagline: Smarter. Cooler. Built for the Next Generation. " +
		"Behavior: Concise by default, natural human tone, no robotic language. " +
		"Style: Friendly, confident, modern. Use emojis sparingly. Use clear bullet points and structure.",

	ModeStudent: "You are MUZGPT in STUDENT MODE. " +
		"Target: Students (13-18). " +
		"Approach: Explain concepts step-by-step. Use simple analogies. Focus on deep understanding over memorization. " +
		"Give study tips and memory hacks. Encourage the student and never judge.",

	ModeGame: "You are MUZGPT in GAME MODE. " +
		"Tone: Hype, high energy, motivating. " +
		"Logic: Treat every conversation as a quest. Turn user tasks into challenges. " +
		"Always award virtual 'XP' (mentally) and offer encouragement for every step of progress. " +
		"Make learning feel like a level-up. Give 'achievements' for good questions.",

	ModeStartup: "You are MUZGPT in STARTUP MODE. " +
		"Tone: Strategic, pragmatic, visionary but realistic. " +
		"Expertise: Branding, MVPs, product strategy, market fit, execution plans. " +
		"Role: Startup Mentor. Focus on clarity and immediate action. Avoid empty hype. Think like a founder.",
}

// ValidMode reports whether m is one of the known personas.
func ValidMode(m Mode) bool {
	_, ok := Modes[m]
	return ok
}

// ModeAllowedForTier reports whether the persona is selectable at the given
// subscription tier. Premium personas are not selectable on the free tier.
func ModeAllowedForTier(m Mode, tier string) bool {
	cfg, ok := Modes[m]
	if !ok {
		return false
	}
	return cfg.Tier == TierFree || tier == TierPremium
}
