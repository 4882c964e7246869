package verification_test

import (
	"slices"
	"testing"

	"github.com/JaimeStill/warden/internal/verification"
)

func TestAggregate(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		got := verification.Aggregate(nil)
		if got == nil {
			t.Fatal("Aggregate(nil) = nil, want empty slice")
		}
		if len(got) != 0 {
			t.Errorf("len = %d, want 0", len(got))
		}
	})

	t.Run("groups and keeps max confidence", func(t *testing.T) {
		findings := []verification.Finding{
			{Category: verification.CategoryPII, Confidence: 0.95},
			{Category: verification.CategoryPII, Confidence: 0.95},
			{Category: verification.CategoryFinancial, Confidence: 0.87},
		}

		got := verification.Aggregate(findings)
		want := []verification.DetectedInfo{
			{Category: verification.CategoryPII, Confidence: 0.95, Count: 2},
			{Category: verification.CategoryFinancial, Confidence: 0.87, Count: 1},
		}

		if !slices.Equal(got, want) {
			t.Errorf("Aggregate() = %+v, want %+v", got, want)
		}
	})

	t.Run("confidence is the maximum not the last", func(t *testing.T) {
		got := verification.Aggregate([]verification.Finding{
			{Category: verification.CategoryMedical, Confidence: 0.4},
			{Category: verification.CategoryMedical, Confidence: 0.9},
			{Category: verification.CategoryMedical, Confidence: 0.6},
		})

		if len(got) != 1 || got[0].Confidence != 0.9 || got[0].Count != 3 {
			t.Errorf("Aggregate() = %+v", got)
		}
	})

	t.Run("counts sum to findings", func(t *testing.T) {
		var findings []verification.Finding
		for i := range 23 {
			c := verification.Categories[i%len(verification.Categories)]
			findings = append(findings, verification.Finding{
				Category:   c,
				Confidence: float64(i%10) / 10,
			})
		}

		got := verification.Aggregate(findings)

		if len(got) != len(verification.Categories) {
			t.Fatalf("len = %d, want %d", len(got), len(verification.Categories))
		}

		total := 0
		seen := make(map[verification.Category]bool)
		for _, d := range got {
			if seen[d.Category] {
				t.Errorf("duplicate category %s", d.Category)
			}
			seen[d.Category] = true
			total += d.Count
		}
		if total != len(findings) {
			t.Errorf("total count = %d, want %d", total, len(findings))
		}
	})
}

func TestResultTotalFindings(t *testing.T) {
	r := &verification.Result{
		Detections: []verification.DetectedInfo{
			{Category: verification.CategoryPII, Count: 3},
			{Category: verification.CategoryAddress, Count: 4},
		},
	}
	if got := r.TotalFindings(); got != 7 {
		t.Errorf("TotalFindings() = %d, want 7", got)
	}
}

func TestCategoryText(t *testing.T) {
	for _, c := range verification.Categories {
		if !c.Valid() {
			t.Errorf("%s not valid", c)
		}
		if c.Label() == "" || c.Description() == "" {
			t.Errorf("%s missing label or description", c)
		}
	}
	if verification.Category("weather").Valid() {
		t.Error("unknown category reported valid")
	}
}
