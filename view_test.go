package dashboard

import (
	"errors"
	"testing"
	"time"
)

var testBands = Bands{
	{Label: "cold", Min: -40, Max: 17.99},
	{Label: "comfortable", Min: 18, Max: 26},
	{Label: "hot", Min: 26.01, Max: 85},
}

func TestBands_Classify(t *testing.T) {
	cases := []struct {
		temp float64
		want RangeLabel
	}{
		{10, "cold"},
		{18, "comfortable"},
		{26, "comfortable"},
		{30, "hot"},
		{200, Unclassified},
	}
	for _, tc := range cases {
		if got := testBands.Classify(tc.temp); got != tc.want {
			t.Errorf("Classify(%.2f) = %q, want %q", tc.temp, got, tc.want)
		}
	}
}

func TestBands_ValidateOverlap(t *testing.T) {
	overlapping := Bands{
		{Label: "a", Min: 0, Max: 10},
		{Label: "b", Min: 10, Max: 20},
	}
	if err := overlapping.Validate(); !errors.Is(err, ErrConfig) {
		t.Errorf("expected ErrConfig for shared boundary, got %v", err)
	}

	reserved := Bands{{Label: Unclassified, Min: 0, Max: 1}}
	if err := reserved.Validate(); !errors.Is(err, ErrConfig) {
		t.Errorf("expected ErrConfig for reserved label, got %v", err)
	}

	inverted := Bands{{Label: "a", Min: 10, Max: 0}}
	if err := inverted.Validate(); !errors.Is(err, ErrConfig) {
		t.Errorf("expected ErrConfig for min above max, got %v", err)
	}

	if err := testBands.Validate(); err != nil {
		t.Errorf("disjoint bands should validate: %v", err)
	}
}

func TestComputeView_Empty(t *testing.T) {
	view := ComputeView(nil, testBands)
	if view.Latest != nil {
		t.Error("expected nil latest on empty sequence")
	}
	if view.AvgTemperature != 0 || view.AvgHumidity != 0 {
		t.Errorf("expected zero averages, got %.2f / %.2f", view.AvgTemperature, view.AvgHumidity)
	}
	if view.Classification != Unclassified {
		t.Errorf("expected unclassified, got %q", view.Classification)
	}
}

func TestComputeView_Averages(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	readings := []Reading{
		{Timestamp: base, Temperature: 20, Humidity: Float64(40)},
		{Timestamp: base.Add(time.Minute), Temperature: 22},
		{Timestamp: base.Add(2 * time.Minute), Temperature: 24, Humidity: Float64(60)},
	}

	view := ComputeView(readings, testBands)
	if view.Samples != 3 {
		t.Errorf("expected 3 samples, got %d", view.Samples)
	}
	if view.AvgTemperature != 22 {
		t.Errorf("expected avg temperature 22, got %.2f", view.AvgTemperature)
	}
	if view.HumiditySamples != 2 {
		t.Errorf("expected 2 humidity samples, got %d", view.HumiditySamples)
	}
	if view.AvgHumidity != 50 {
		t.Errorf("expected avg humidity 50 over reporting samples only, got %.2f", view.AvgHumidity)
	}
	if view.Latest == nil || view.Latest.Temperature != 24 {
		t.Errorf("expected latest temperature 24, got %+v", view.Latest)
	}
	if view.Classification != "comfortable" {
		t.Errorf("expected comfortable, got %q", view.Classification)
	}
}

func TestComputeView_DoesNotRetainInput(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	readings := []Reading{{Timestamp: base, Temperature: 20}}

	view := ComputeView(readings, testBands)
	readings[0].Temperature = -100

	if view.Latest.Temperature != 20 {
		t.Error("view aliases the input slice")
	}
}
