package dashboard

import (
	"fmt"
	"sort"
)

// RangeLabel names the classification band a temperature falls into.
type RangeLabel string

// Unclassified is returned for temperatures outside every configured band.
const Unclassified RangeLabel = "unclassified"

// Band is one inclusive temperature range. A reading classifies into a band
// when Min <= temperature <= Max.
type Band struct {
	Label RangeLabel `json:"label" yaml:"label" validate:"required"`
	Min   float64    `json:"min" yaml:"min"`
	Max   float64    `json:"max" yaml:"max"`
}

// Bands is an ordered set of disjoint classification ranges.
type Bands []Band

// Validate checks that every band is well-formed and that no two bands
// overlap. Overlapping bands are a configuration error, not a runtime
// ambiguity to resolve silently.
func (b Bands) Validate() error {
	for _, band := range b {
		if band.Label == "" || band.Label == Unclassified {
			return fmt.Errorf("%w: band label %q is reserved or empty", ErrConfig, band.Label)
		}
		if band.Min > band.Max {
			return fmt.Errorf("%w: band %q has min %.2f above max %.2f", ErrConfig, band.Label, band.Min, band.Max)
		}
	}

	ordered := make(Bands, len(b))
	copy(ordered, b)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Min < ordered[j].Min })

	for i := 1; i < len(ordered); i++ {
		if ordered[i].Min <= ordered[i-1].Max {
			return fmt.Errorf("%w: bands %q and %q overlap", ErrConfig, ordered[i-1].Label, ordered[i].Label)
		}
	}
	return nil
}

// Classify maps a temperature to the single band containing it, or
// Unclassified when no band does. Bands must have been validated.
func (b Bands) Classify(temperature float64) RangeLabel {
	for _, band := range b {
		if temperature >= band.Min && temperature <= band.Max {
			return band.Label
		}
	}
	return Unclassified
}

// View is a pure projection over an ordered reading sequence. It is
// recomputed on demand and never stored or mutated.
type View struct {
	// Latest is the newest reading in the sequence, nil when empty.
	Latest *Reading

	// AvgTemperature is the arithmetic mean temperature over the sequence.
	// Zero when Samples is zero; never NaN.
	AvgTemperature float64

	// AvgHumidity is the mean over readings that reported humidity.
	// Zero when HumiditySamples is zero; never NaN.
	AvgHumidity float64

	// Samples is the number of readings averaged.
	Samples int

	// HumiditySamples is the number of readings that carried humidity.
	HumiditySamples int

	// Classification is the band of the latest temperature, or
	// Unclassified when the sequence is empty or no band matches.
	Classification RangeLabel
}

// ComputeView derives a View from an ordered reading sequence.
// It is a pure function: the input is not retained or modified.
func ComputeView(readings []Reading, bands Bands) View {
	view := View{Classification: Unclassified}
	if len(readings) == 0 {
		return view
	}

	latest := readings[len(readings)-1]
	view.Latest = &latest
	view.Classification = bands.Classify(latest.Temperature)

	var tempSum, humSum float64
	for _, r := range readings {
		tempSum += r.Temperature
		view.Samples++
		if r.Humidity != nil {
			humSum += *r.Humidity
			view.HumiditySamples++
		}
	}
	view.AvgTemperature = tempSum / float64(view.Samples)
	if view.HumiditySamples > 0 {
		view.AvgHumidity = humSum / float64(view.HumiditySamples)
	}
	return view
}
