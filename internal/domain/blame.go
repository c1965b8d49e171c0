package domain

import (
	"math"
	"time"
)

// ThreatLevel is a five-tier severity bucket.
type ThreatLevel string

const (
	ThreatPeaceful    ThreatLevel = "PEACEFUL"
	ThreatTurbulent   ThreatLevel = "TURBULENT"
	ThreatChaotic     ThreatLevel = "CHAOTIC"
	ThreatApocalyptic ThreatLevel = "APOCALYPTIC"
	ThreatDoomed      ThreatLevel = "DOOMED"
)

// BlameCategory labels the altitude band a candidate was found in.
type BlameCategory string

const (
	CategoryPressureWarfare     BlameCategory = "PRESSURE_WARFARE"
	CategoryTurbulenceNightmare BlameCategory = "TURBULENCE_NIGHTMARE"
	CategoryJetStreamChaos      BlameCategory = "JET_STREAM_CHAOS"
	CategoryAltitudeMadness     BlameCategory = "ALTITUDE_MADNESS"
	CategoryAtmosphericHostage  BlameCategory = "ATMOSPHERIC_HOSTAGE"
)

// ThreatForAltitude classifies a sample altitude (km).
func ThreatForAltitude(altitude float64) ThreatLevel {
	switch {
	case altitude < 5:
		return ThreatPeaceful
	case altitude < 10:
		return ThreatTurbulent
	case altitude < 15:
		return ThreatChaotic
	case altitude < 20:
		return ThreatApocalyptic
	default:
		return ThreatDoomed
	}
}

// CategoryForAltitude maps a sample altitude (km) to its blame category.
func CategoryForAltitude(altitude float64) BlameCategory {
	switch {
	case altitude < 3:
		return CategoryPressureWarfare
	case altitude < 8:
		return CategoryTurbulenceNightmare
	case altitude < 15:
		return CategoryJetStreamChaos
	case altitude < 20:
		return CategoryAltitudeMadness
	default:
		return CategoryAtmosphericHostage
	}
}

// ThreatForSeverity buckets a 0-100 severity index.
func ThreatForSeverity(index int) ThreatLevel {
	switch {
	case index < 20:
		return ThreatPeaceful
	case index < 40:
		return ThreatTurbulent
	case index < 60:
		return ThreatChaotic
	case index < 80:
		return ThreatApocalyptic
	default:
		return ThreatDoomed
	}
}

// Severity scores a candidate 0-100. Non-decreasing in altitude, non-increasing in distance.
func Severity(altitudeKm, distanceKm float64) int {
	altitudeFactor := math.Max(0, math.Min(altitudeKm/25, 1))
	distanceFactor := math.Max(0, 1-distanceKm/1000)
	return int(math.Min(math.Round(altitudeFactor*50+distanceFactor*50), 100))
}

// Candidate is one telemetry sample implicated in a blame chain.
type Candidate struct {
	SourceID         string        `json:"balloonId"`
	Latitude         float64       `json:"latitude"`
	Longitude        float64       `json:"longitude"`
	Altitude         float64       `json:"altitude"`
	ObservedAt       time.Time     `json:"detectedAt"`
	ThreatLevel      ThreatLevel   `json:"threatLevel"`
	Category         BlameCategory `json:"category"`
	DistanceKm       float64       `json:"distanceFromRoute"`
	Severity         int           `json:"severity"`
	Explanation      string        `json:"dramaticReason"`
	ScientificReason string        `json:"scientificReason"`
}

// BlameChain is the ranked correlation result for one subject location.
type BlameChain struct {
	SubjectLocation Location    `json:"packageLocation"`
	Candidates      []Candidate `json:"culpritBalloons"`
	OverallThreat   ThreatLevel `json:"overallThreat"`
	SeverityIndex   int         `json:"doomLevel"`
	Narrative       string      `json:"alternateTimeline"`
}
