package cityflow

import (
	"math"
	"testing"
)

func TestGradeLOS(t *testing.T) {
	cases := []struct {
		vc    float64
		grade LOSGrade
	}{
		{0, LOS_A},
		{0.30, LOS_A},
		{0.35, LOS_B},
		{0.54, LOS_B},
		{0.55, LOS_C},
		{0.60, LOS_C},
		{0.77, LOS_D},
		{0.90, LOS_D},
		{0.93, LOS_E},
		{1.0, LOS_E},
		{1.0001, LOS_F},
		{1.20, LOS_F},
		{math.Inf(1), LOS_F},
		{math.NaN(), LOS_F},
	}
	for _, c := range cases {
		grade := GradeLOS(c.vc)
		if grade != c.grade {
			t.Errorf("Grade for v/c %v must be %s, but got %s", c.vc, c.grade, grade)
		}
	}
}

func TestGradeLOSMonotone(t *testing.T) {
	prev := GradeLOS(0)
	for vc := 0.0; vc <= 2.0; vc += 0.01 {
		grade := GradeLOS(vc)
		if grade < prev {
			t.Errorf("Grade must not improve with growing v/c: %s after %s at %v", grade, prev, vc)
		}
		prev = grade
	}
}

func TestLOSText(t *testing.T) {
	if LOS_D.Label() != "LOS D (Approaching Unstable)" {
		t.Errorf("Label must be 'LOS D (Approaching Unstable)', but got '%s'", LOS_D.Label())
	}
	var grade LOSGrade
	if err := grade.UnmarshalText([]byte("E")); err != nil {
		t.Error(err)
		return
	}
	if grade != LOS_E {
		t.Errorf("Grade must be %s, but got %s", LOS_E, grade)
	}
	if err := grade.UnmarshalText([]byte("G")); err == nil {
		t.Errorf("Unknown grade must be rejected")
	}
}
