package indicators

import (
	"fmt"

	"marketvision/internal/market"
)

// SessionAnalysis summarizes behavior per trading session (Asia, London,
// New York) and reads the bias of the session the latest candle falls in.
// Matching London and New York biases produce the strongest readings.
type SessionAnalysis struct{}

// NewSessionAnalysis creates a session-analysis indicator.
func NewSessionAnalysis() *SessionAnalysis {
	return &SessionAnalysis{}
}

func (sa *SessionAnalysis) Name() string { return "session_analysis" }

type sessionWindow struct {
	name      string
	startHour int
	endHour   int
}

var tradingSessions = []sessionWindow{
	{name: "asia", startHour: 0, endHour: 8},
	{name: "london", startHour: 7, endHour: 16},
	{name: "new_york", startHour: 13, endHour: 22},
}

type sessionStats struct {
	avgRange   float64
	bullishPct float64
	bearishPct float64
	avgVolume  float64
	bias       string
}

func (sa *SessionAnalysis) Calculate(s *market.Series) ([]Result, error) {
	if err := validateSeries(s); err != nil {
		return nil, err
	}
	candles := s.Candles
	if len(candles) < 20 {
		return nil, nil
	}

	stats := make(map[string]sessionStats, len(tradingSessions))
	for _, sess := range tradingSessions {
		var rangeSum, volSum float64
		var bullish, bearish, n int
		for _, c := range candles {
			h := c.Timestamp.UTC().Hour()
			if h < sess.startHour || h >= sess.endHour {
				continue
			}
			n++
			rangeSum += c.Range()
			volSum += c.Volume
			if c.IsBullish() {
				bullish++
			} else if c.IsBearish() {
				bearish++
			}
		}
		if n == 0 {
			continue
		}
		st := sessionStats{
			avgRange:   rangeSum / float64(n),
			bullishPct: float64(bullish) / float64(n) * 100,
			bearishPct: float64(bearish) / float64(n) * 100,
			avgVolume:  volSum / float64(n),
			bias:       "neutral",
		}
		if st.bullishPct > 55 {
			st.bias = "bullish"
		} else if st.bearishPct > 55 {
			st.bias = "bearish"
		}
		stats[sess.name] = st
	}

	// The current session is taken from the last candle's hour so results
	// depend only on the input series.
	last := candles[len(candles)-1]
	hour := last.Timestamp.UTC().Hour()
	current := "off_hours"
	for _, sess := range tradingSessions {
		if hour >= sess.startHour && hour < sess.endHour {
			current = sess.name
		}
	}
	inOverlap := hour >= 13 && hour < 16

	london := stats["london"]
	newYork := stats["new_york"]
	confluence := london.bias != "" && london.bias != "neutral" && london.bias == newYork.bias

	classification := "neutral"
	if confluence {
		classification = "strong_" + london.bias + "_sessions"
	} else if st, ok := stats[current]; ok && st.bias != "neutral" {
		classification = st.bias + "_session"
	}

	confidence := 50.0
	if confluence {
		confidence = 70
	}
	if inOverlap {
		confidence += 15
	}

	extra := map[string]interface{}{
		"current_session": current,
		"in_overlap":      inOverlap,
	}
	for name, st := range stats {
		extra[name+"_bias"] = st.bias
		extra[name+"_avg_range"] = st.avgRange
		extra[name+"_avg_volume"] = st.avgVolume
		extra[name+"_summary"] = fmt.Sprintf("%.0f%% bull / %.0f%% bear", st.bullishPct, st.bearishPct)
	}

	return []Result{{
		Name:      sa.Name(),
		Value:     confidence,
		Timestamp: last.Timestamp,
		Meta: Metadata{
			Classification: classification,
			Extra:          extra,
		},
	}}, nil
}
