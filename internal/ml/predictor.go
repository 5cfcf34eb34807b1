// Package ml provides the price prediction contract the signal engine
// consumes. The default predictor scores weighted momentum, mean-reversion,
// volume and trend features; any error downgrades to a neutral prediction.
package ml

import (
	"math"
	"sync"

	"marketvision/internal/market"
)

// Directions a prediction can take.
const (
	DirectionBullish = "bullish"
	DirectionBearish = "bearish"
	DirectionNeutral = "neutral"
)

// Prediction is the output of a Predictor call.
type Prediction struct {
	Symbol     string             `json:"symbol"`
	Timeframe  market.Timeframe   `json:"timeframe"`
	Direction  string             `json:"direction"`
	Confidence float64            `json:"confidence"`
	Signals    map[string]float64 `json:"signals,omitempty"`
}

// Neutral is the prediction used when a predictor fails or has no opinion.
func Neutral(symbol string, tf market.Timeframe) Prediction {
	return Prediction{Symbol: symbol, Timeframe: tf, Direction: DirectionNeutral}
}

// Predictor produces a next-move direction estimate for a series. The
// signal engine treats any error as a neutral prediction with zero
// confidence.
type Predictor interface {
	Predict(s *market.Series, symbol string, tf market.Timeframe) (Prediction, error)
}

// FeaturePredictor scores four weighted signal families over the series.
// It is deterministic: the same series always produces the same prediction.
type FeaturePredictor struct {
	config Config
	stats  predictionStats
}

// Config weights the signal families.
type Config struct {
	MomentumWeight      float64
	MeanReversionWeight float64
	VolumeWeight        float64
	TrendWeight         float64
}

// DefaultConfig returns the standard weighting.
func DefaultConfig() Config {
	return Config{
		MomentumWeight:      0.3,
		MeanReversionWeight: 0.2,
		VolumeWeight:        0.25,
		TrendWeight:         0.25,
	}
}

type predictionStats struct {
	mu      sync.Mutex
	total   int
	correct int
}

// NewFeaturePredictor creates a predictor with the given config.
func NewFeaturePredictor(cfg Config) *FeaturePredictor {
	return &FeaturePredictor{config: cfg}
}

type priceFeatures struct {
	volatility        float64
	priceVelocity     float64
	priceAcceleration float64
	rsi               float64
	macdHistogram     float64
	bollingerPosition float64
	volumeRatio       float64
	buyPressure       float64
	volumeAccel       float64
	trendStrength     float64
	trendConsistency  float64
}

// Predict scores the series. Fewer than 30 candles yields a neutral
// prediction without error.
func (p *FeaturePredictor) Predict(s *market.Series, symbol string, tf market.Timeframe) (Prediction, error) {
	if s == nil || s.Len() < 30 {
		return Neutral(symbol, tf), nil
	}

	f := extractFeatures(s.Candles)

	signals := map[string]float64{
		"momentum":       p.momentumSignal(f),
		"mean_reversion": p.meanReversionSignal(f),
		"volume":         p.volumeSignal(f),
		"trend":          p.trendSignal(f),
	}

	combined := signals["momentum"]*p.config.MomentumWeight +
		signals["mean_reversion"]*p.config.MeanReversionWeight +
		signals["volume"]*p.config.VolumeWeight +
		signals["trend"]*p.config.TrendWeight

	direction := DirectionNeutral
	if combined > 0.1 {
		direction = DirectionBullish
	} else if combined < -0.1 {
		direction = DirectionBearish
	}

	return Prediction{
		Symbol:     symbol,
		Timeframe:  tf,
		Direction:  direction,
		Confidence: confidenceFrom(signals),
		Signals:    signals,
	}, nil
}

// RecordOutcome feeds back whether a prediction's direction matched the
// realized move.
func (p *FeaturePredictor) RecordOutcome(predicted string, actualMove float64) {
	p.stats.mu.Lock()
	defer p.stats.mu.Unlock()
	p.stats.total++
	if (predicted == DirectionBullish && actualMove > 0) ||
		(predicted == DirectionBearish && actualMove < 0) {
		p.stats.correct++
	}
}

// Accuracy returns the fraction of recorded predictions whose direction
// matched, and the sample count.
func (p *FeaturePredictor) Accuracy() (float64, int) {
	p.stats.mu.Lock()
	defer p.stats.mu.Unlock()
	if p.stats.total == 0 {
		return 0, 0
	}
	return float64(p.stats.correct) / float64(p.stats.total), p.stats.total
}

func extractFeatures(candles []market.Candle) priceFeatures {
	var f priceFeatures
	n := len(candles)

	returns := make([]float64, 0, n-1)
	for i := 1; i < n; i++ {
		prev := candles[i-1].Close
		if prev < 1e-10 {
			returns = append(returns, 0)
			continue
		}
		returns = append(returns, (candles[i].Close-prev)/prev*100)
	}
	f.volatility = stdDev(returns)

	if len(returns) >= 5 {
		f.priceVelocity = mean(returns[len(returns)-5:])
	}
	if len(returns) >= 10 {
		recent := mean(returns[len(returns)-5:])
		prior := mean(returns[len(returns)-10 : len(returns)-5])
		f.priceAcceleration = recent - prior
	}

	f.rsi = lastRSI(candles, 14)
	f.macdHistogram = macdHistogram(candles, 12, 26, 9)
	f.bollingerPosition = bollingerPosition(candles, 20, 2.0)

	avgVol := averageVolume(candles, 20)
	last := candles[n-1]
	if avgVol > 0 {
		f.volumeRatio = last.Volume / avgVol
	}
	if rng := last.Range(); rng > 0 {
		f.buyPressure = (last.Close - last.Low) / rng
	}
	if n >= 10 {
		var recent, prior float64
		for i := n - 5; i < n; i++ {
			recent += candles[i].Volume
		}
		for i := n - 10; i < n-5; i++ {
			prior += candles[i].Volume
		}
		if prior > 0 {
			f.volumeAccel = (recent - prior) / prior
		}
	}

	ema20 := lastEMA(candles, 20)
	ema50 := lastEMA(candles, 50)
	if ema50 > 0 {
		f.trendStrength = (ema20 - ema50) / ema50 * 100
	}

	bullish := 0
	for i := n - 10; i < n; i++ {
		if candles[i].IsBullish() {
			bullish++
		}
	}
	f.trendConsistency = float64(bullish-5) / 5

	return f
}

func (p *FeaturePredictor) momentumSignal(f priceFeatures) float64 {
	signal := clamp(f.priceVelocity/0.5, -1, 1) * 0.4
	signal += clamp(f.priceAcceleration/0.2, -1, 1) * 0.3
	signal += clamp(f.macdHistogram/0.01, -1, 1) * 0.3
	return clamp(signal, -1, 1)
}

func (p *FeaturePredictor) meanReversionSignal(f priceFeatures) float64 {
	signal := 0.0
	if f.rsi > 70 {
		signal -= (f.rsi - 70) / 30
	} else if f.rsi < 30 {
		signal += (30 - f.rsi) / 30
	}
	if f.bollingerPosition > 1 {
		signal -= (f.bollingerPosition - 1) * 0.5
	} else if f.bollingerPosition < -1 {
		signal += (-1 - f.bollingerPosition) * 0.5
	}
	return clamp(signal, -1, 1)
}

func (p *FeaturePredictor) volumeSignal(f priceFeatures) float64 {
	signal := 0.0
	if f.volumeRatio > 1.5 {
		signal += (f.buyPressure - 0.5) * (f.volumeRatio - 1) * 0.5
	}
	signal += clamp(f.volumeAccel*0.5, -0.5, 0.5)
	return clamp(signal, -1, 1)
}

func (p *FeaturePredictor) trendSignal(f priceFeatures) float64 {
	signal := clamp(f.trendStrength/2, -1, 1) * 0.6
	signal += f.trendConsistency * 0.4
	return clamp(signal, -1, 1)
}

// confidenceFrom blends signal agreement with average signal strength.
func confidenceFrom(signals map[string]float64) float64 {
	positive, negative := 0, 0
	avgStrength := 0.0
	for _, s := range signals {
		if s > 0.1 {
			positive++
		} else if s < -0.1 {
			negative++
		}
		avgStrength += math.Abs(s)
	}
	total := len(signals)
	avgStrength /= float64(total)

	maxAgree := positive
	if negative > maxAgree {
		maxAgree = negative
	}
	base := float64(maxAgree) / float64(total)
	if maxAgree == total {
		base = 0.9
	}
	return clamp(base*0.6+avgStrength*0.4, 0, 1)
}

func lastRSI(candles []market.Candle, period int) float64 {
	if len(candles) < period+1 {
		return 50
	}
	var gains, losses float64
	for i := len(candles) - period; i < len(candles); i++ {
		change := candles[i].Close - candles[i-1].Close
		if change > 0 {
			gains += change
		} else {
			losses -= change
		}
	}
	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

func macdHistogram(candles []market.Candle, fast, slow, signalSpan int) float64 {
	if len(candles) < slow+signalSpan {
		return 0
	}
	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}
	fastAlpha := 2.0 / float64(fast+1)
	slowAlpha := 2.0 / float64(slow+1)
	sigAlpha := 2.0 / float64(signalSpan+1)
	emaFast, emaSlow := closes[0], closes[0]
	sig := 0.0
	macd := 0.0
	for i := 1; i < len(closes); i++ {
		emaFast = fastAlpha*closes[i] + (1-fastAlpha)*emaFast
		emaSlow = slowAlpha*closes[i] + (1-slowAlpha)*emaSlow
		macd = emaFast - emaSlow
		sig = sigAlpha*macd + (1-sigAlpha)*sig
	}
	return macd - sig
}

func bollingerPosition(candles []market.Candle, period int, mult float64) float64 {
	if len(candles) < period {
		return 0
	}
	start := len(candles) - period
	var sum float64
	for i := start; i < len(candles); i++ {
		sum += candles[i].Close
	}
	middle := sum / float64(period)
	var variance float64
	for i := start; i < len(candles); i++ {
		d := candles[i].Close - middle
		variance += d * d
	}
	sd := math.Sqrt(variance / float64(period))
	if sd < 1e-10 {
		return 0
	}
	return (candles[len(candles)-1].Close - middle) / (mult * sd)
}

func averageVolume(candles []market.Candle, period int) float64 {
	if len(candles) < period {
		period = len(candles)
	}
	var sum float64
	for i := len(candles) - period; i < len(candles); i++ {
		sum += candles[i].Volume
	}
	return sum / float64(period)
}

func lastEMA(candles []market.Candle, period int) float64 {
	if len(candles) < period {
		return candles[len(candles)-1].Close
	}
	var sum float64
	for i := 0; i < period; i++ {
		sum += candles[i].Close
	}
	ema := sum / float64(period)
	mult := 2.0 / float64(period+1)
	for i := period; i < len(candles); i++ {
		ema = (candles[i].Close-ema)*mult + ema
	}
	return ema
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stdDev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := mean(values)
	var variance float64
	for _, v := range values {
		variance += (v - m) * (v - m)
	}
	return math.Sqrt(variance / float64(len(values)))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
