package correlation

import (
	"fmt"

	"github.com/couchcryptid/atmosfault-service/internal/domain"
)

// explanations holds the flavour pool per category. Each entry is a format
// string taking the altitude in km.
var explanations = map[domain.BlameCategory][]string{
	domain.CategoryJetStreamChaos: {
		"A rogue jet stream at %.1fkm hijacked your package like a high-altitude carjacking",
		"Jet stream winds are treating your package like a pinball at %.1fkm",
		"The jet stream is running a protection racket at %.1fkm and your package paid the toll",
	},
	domain.CategoryPressureWarfare: {
		"Competing pressure systems are using your package as a bargaining chip at %.1fkm",
		"A low-pressure zone at %.1fkm is holding your package hostage for atmospheric ransom",
		"Pressure systems are playing tug-of-war with your package at %.1fkm",
	},
	domain.CategoryTurbulenceNightmare: {
		"Turbulence at %.1fkm is giving your package the ride of its life (not in a good way)",
		"Your package is experiencing what we call \"aggressive atmospheric disagreement\" at %.1fkm",
		"Turbulence is treating your package like a cocktail shaker at %.1fkm",
	},
	domain.CategoryAltitudeMadness: {
		"The %.1fkm altitude zone is known to atmospheric scientists as \"The Bermuda Triangle of Shipping\"",
		"At %.1fkm, your package entered an atmospheric no-man's-land",
		"Altitude %.1fkm is where packages go to question their life choices",
	},
	domain.CategoryAtmosphericHostage: {
		"Your package is being held captive by atmospheric forces at %.1fkm",
		"A weather pattern at %.1fkm has taken your package prisoner",
		"Your package is trapped in atmospheric bureaucracy at %.1fkm",
	},
}

var scientificReasons = map[domain.BlameCategory]string{
	domain.CategoryJetStreamChaos:      "Jet stream activity at %.1fkm altitude creates wind shear conditions exceeding 100 knots, forcing aircraft to adjust flight paths and causing routing delays.",
	domain.CategoryPressureWarfare:     "Pressure differential at %.1fkm creates unstable atmospheric conditions, requiring flight path modifications for safety.",
	domain.CategoryTurbulenceNightmare: "Clear air turbulence detected at %.1fkm with wind speed variations of 40+ knots per vertical kilometer, necessitating altitude changes.",
	domain.CategoryAltitudeMadness:     "Atmospheric instability at %.1fkm creates challenging flight conditions requiring extended routing.",
	domain.CategoryAtmosphericHostage:  "Complex weather system at %.1fkm creating multi-layer wind patterns that impact optimal flight routing.",
}

func explanation(p Picker, category domain.BlameCategory, altitude float64) string {
	pool := explanations[category]
	if len(pool) == 0 {
		return ""
	}
	i := p.IntN(len(pool))
	if i < 0 || i >= len(pool) {
		i = 0
	}
	return fmt.Sprintf(pool[i], altitude)
}

func scientificReason(category domain.BlameCategory, altitude float64) string {
	return fmt.Sprintf(scientificReasons[category], altitude)
}

// Narrative describes what the delay would have looked like at a given severity index.
func Narrative(index int) string {
	switch {
	case index < 20:
		return "Your package would've arrived on time, blissfully unaware of the atmospheric drama unfolding around it."
	case index < 40:
		return "Your package would've been delayed by 2-3 hours, with the carrier blaming 'unforeseen weather conditions' (which we now foresee, thanks to balloons)."
	case index < 60:
		return "Your package would've taken a scenic detour through 3 extra states, adding a full day to delivery, while the airline pretended everything was fine."
	case index < 80:
		return "Your package would've been grounded for 48 hours with vague explanations about 'operational issues' (aka: pilots don't like flying through atmospheric chaos)."
	default:
		return "Your package would've been rerouted through an alternate dimension. Delivery estimate: sometime between tomorrow and the heat death of the universe."
	}
}
