package recommendation

import (
	"fmt"
	"math"
	"time"

	"intelligent-resource-analyzer/pkg/models"
	"intelligent-resource-analyzer/pkg/stats"
)

// DataQuality grades how far a sizing recommendation can be trusted based on
// the shape of the snapshot window rather than on its values
type DataQuality struct {
	// Overall score (0-100)
	Score float64 `json:"score"`

	// Individual factor scores (0-100 each)
	DurationScore    float64 `json:"durationScore"`
	SampleCountScore float64 `json:"sampleCountScore"`
	ConsistencyScore float64 `json:"consistencyScore"`
	RecencyScore     float64 `json:"recencyScore"`
	CoverageScore    float64 `json:"coverageScore"`

	DurationHours          float64       `json:"durationHours"`
	SampleCount            int           `json:"sampleCount"`
	NewestSampleAge        time.Duration `json:"newestSampleAge"`
	CoefficientOfVariation float64       `json:"coefficientOfVariation"`
	Gaps                   int           `json:"gaps"`

	Level       QualityLevel `json:"level"`
	Description string       `json:"description"`
	Warnings    []string     `json:"warnings,omitempty"`
}

// QualityLevel is a categorical data-quality grade
type QualityLevel string

const (
	QualityVeryLow  QualityLevel = "VeryLow"  // 0-20
	QualityLow      QualityLevel = "Low"      // 20-40
	QualityMedium   QualityLevel = "Medium"   // 40-60
	QualityHigh     QualityLevel = "High"     // 60-80
	QualityVeryHigh QualityLevel = "VeryHigh" // 80-100
)

// QualityConfig holds the grading thresholds
type QualityConfig struct {
	MinSamples   int
	IdealSamples int

	MinDataHours   float64
	IdealDataHours float64

	// MaxAcceptableCV is the CPU coefficient of variation at which the
	// consistency score bottoms out
	MaxAcceptableCV float64

	MaxAcceptableRecency time.Duration

	// ExpectedInterval is the collection cadence; spacing above twice this
	// counts as a gap
	ExpectedInterval time.Duration

	// Weights sum to 1
	WeightDuration    float64
	WeightSampleCount float64
	WeightConsistency float64
	WeightRecency     float64
	WeightCoverage    float64
}

// DefaultQualityConfig grades windows collected every interval
func DefaultQualityConfig(interval time.Duration) QualityConfig {
	return QualityConfig{
		MinSamples:           10,
		IdealSamples:         360,
		MinDataHours:         5.0 / 60,
		IdealDataHours:       24,
		MaxAcceptableCV:      0.5,
		MaxAcceptableRecency: 15 * time.Minute,
		ExpectedInterval:     interval,

		WeightDuration:    0.25,
		WeightSampleCount: 0.25,
		WeightConsistency: 0.20,
		WeightRecency:     0.15,
		WeightCoverage:    0.15,
	}
}

// QualityScorer grades snapshot windows
type QualityScorer struct {
	config QualityConfig
}

// NewQualityScorer creates a scorer with the given thresholds
func NewQualityScorer(config QualityConfig) *QualityScorer {
	return &QualityScorer{config: config}
}

// Assess grades a window as of now
func (q *QualityScorer) Assess(snaps []models.Snapshot, now time.Time) DataQuality {
	if len(snaps) == 0 {
		return DataQuality{
			Level:       QualityVeryLow,
			Description: "No data available",
			Warnings:    []string{"No snapshots available for analysis"},
		}
	}

	ordered := models.Chronological(snaps)
	oldest := ordered[0].Timestamp
	newest := ordered[len(ordered)-1].Timestamp

	quality := DataQuality{
		SampleCount:            len(ordered),
		DurationHours:          newest.Sub(oldest).Hours(),
		NewestSampleAge:        now.Sub(newest),
		CoefficientOfVariation: stats.CoefficientOfVariation(models.CPUValues(ordered)),
	}

	gapTime, gaps := q.gaps(ordered)
	quality.Gaps = gaps

	quality.DurationScore = q.durationScore(quality.DurationHours)
	quality.SampleCountScore = q.sampleScore(quality.SampleCount)
	quality.ConsistencyScore = q.consistencyScore(quality.CoefficientOfVariation)
	quality.RecencyScore = q.recencyScore(quality.NewestSampleAge)
	quality.CoverageScore = q.coverageScore(quality.SampleCount, gapTime, newest.Sub(oldest))

	c := q.config
	quality.Score = clamp(c.WeightDuration*quality.DurationScore+
		c.WeightSampleCount*quality.SampleCountScore+
		c.WeightConsistency*quality.ConsistencyScore+
		c.WeightRecency*quality.RecencyScore+
		c.WeightCoverage*quality.CoverageScore, 0, 100)

	quality.Level = levelFor(quality.Score)
	quality.Description = describe(quality)
	quality.Warnings = q.warnings(quality)
	return quality
}

// gaps sums the spacing between consecutive samples that exceeds twice the
// expected interval
func (q *QualityScorer) gaps(ordered []models.Snapshot) (time.Duration, int) {
	if q.config.ExpectedInterval <= 0 {
		return 0, 0
	}
	var total time.Duration
	count := 0
	for i := 1; i < len(ordered); i++ {
		gap := ordered[i].Timestamp.Sub(ordered[i-1].Timestamp)
		if gap > 2*q.config.ExpectedInterval {
			total += gap
			count++
		}
	}
	return total, count
}

// logProgress scales v between lo (20) and hi (100) on a log axis
func logProgress(v, lo, hi float64) float64 {
	if v < lo {
		return v / lo * 20
	}
	if v >= hi {
		return 100
	}
	progress := (math.Log(v) - math.Log(lo)) / (math.Log(hi) - math.Log(lo))
	return 20 + progress*80
}

func (q *QualityScorer) durationScore(hours float64) float64 {
	return logProgress(hours, q.config.MinDataHours, q.config.IdealDataHours)
}

func (q *QualityScorer) sampleScore(samples int) float64 {
	return logProgress(float64(samples), float64(q.config.MinSamples), float64(q.config.IdealSamples))
}

// consistencyScore is 100 below a CV of 0.1, falling linearly to 20 at the
// maximum acceptable CV. A zero CV (constant or missing CPU) is neutral.
func (q *QualityScorer) consistencyScore(cv float64) float64 {
	switch {
	case cv <= 0:
		return 50
	case cv <= 0.1:
		return 100
	case cv >= q.config.MaxAcceptableCV:
		return 20
	}
	progress := (cv - 0.1) / (q.config.MaxAcceptableCV - 0.1)
	return 100 - progress*80
}

func (q *QualityScorer) recencyScore(age time.Duration) float64 {
	if age <= 0 {
		return 100
	}
	if age <= q.config.MaxAcceptableRecency {
		return 100 - float64(age)/float64(q.config.MaxAcceptableRecency)*20
	}
	if age >= 24*time.Hour {
		return 20
	}
	progress := float64(age-q.config.MaxAcceptableRecency) / float64(24*time.Hour-q.config.MaxAcceptableRecency)
	return 80 - progress*60
}

func (q *QualityScorer) coverageScore(samples int, gapTime, span time.Duration) float64 {
	if samples < 2 || span <= 0 {
		return 50
	}
	ratio := float64(gapTime) / float64(span)
	switch {
	case ratio <= 0.05:
		return 100
	case ratio >= 0.5:
		return 20
	}
	return 100 - (ratio-0.05)/0.45*80
}

func levelFor(score float64) QualityLevel {
	switch {
	case score >= 80:
		return QualityVeryHigh
	case score >= 60:
		return QualityHigh
	case score >= 40:
		return QualityMedium
	case score >= 20:
		return QualityLow
	default:
		return QualityVeryLow
	}
}

func describe(quality DataQuality) string {
	var span string
	switch h := quality.DurationHours; {
	case h < 1:
		span = fmt.Sprintf("%.0f minutes", h*60)
	case h < 24:
		span = fmt.Sprintf("%.1f hours", h)
	default:
		span = fmt.Sprintf("%.1f days", h/24)
	}
	return fmt.Sprintf("%s data quality (%.0f%%) from %d samples over %s",
		quality.Level, quality.Score, quality.SampleCount, span)
}

func (q *QualityScorer) warnings(quality DataQuality) []string {
	var warnings []string
	if quality.DurationScore < 40 {
		warnings = append(warnings, fmt.Sprintf("Limited history: %.0f minutes of data", quality.DurationHours*60))
	}
	if quality.SampleCountScore < 40 {
		warnings = append(warnings, fmt.Sprintf("Low sample count: %d samples (recommend at least %d)",
			quality.SampleCount, q.config.MinSamples*5))
	}
	if quality.ConsistencyScore < 40 {
		warnings = append(warnings, fmt.Sprintf("Highly variable CPU usage: CV=%.2f", quality.CoefficientOfVariation))
	}
	if quality.RecencyScore < 40 {
		warnings = append(warnings, fmt.Sprintf("Stale data: newest sample is %.1f hours old", quality.NewestSampleAge.Hours()))
	}
	if quality.CoverageScore < 40 && quality.Gaps > 0 {
		warnings = append(warnings, fmt.Sprintf("Collection gaps: %d gaps in the window", quality.Gaps))
	}
	return warnings
}

func clamp(value, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, value))
}
