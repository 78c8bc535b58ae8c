package cityflow

import (
	"fmt"
	"math"
)

// LOSGrade is level of service of a road edge. It is reporting only and never feeds routing.
type LOSGrade uint16

const (
	LOS_A = LOSGrade(iota + 1)
	LOS_B
	LOS_C
	LOS_D
	LOS_E
	LOS_F
)

var (
	losNames  = [...]string{"A", "B", "C", "D", "E", "F"}
	losLabels = [...]string{"Free Flow", "Stable Flow", "Restricted Flow", "Approaching Unstable", "Unstable Flow", "Breakdown"}

	// Upper bounds (exclusive) of v/c for grades A..D. E is closed at 1.0.
	losThresholds = [...]float64{0.35, 0.55, 0.77, 0.93}
)

// LOSGrades lists every grade in order
var LOSGrades = []LOSGrade{LOS_A, LOS_B, LOS_C, LOS_D, LOS_E, LOS_F}

func (iotaIdx LOSGrade) String() string {
	if iotaIdx == 0 || int(iotaIdx) > len(losNames) {
		return "undefined"
	}
	return losNames[iotaIdx-1]
}

// Label returns human readable description, e.g. "LOS D (Approaching Unstable)"
func (iotaIdx LOSGrade) Label() string {
	if iotaIdx == 0 || int(iotaIdx) > len(losLabels) {
		return "LOS undefined"
	}
	return fmt.Sprintf("LOS %s (%s)", losNames[iotaIdx-1], losLabels[iotaIdx-1])
}

func (iotaIdx LOSGrade) MarshalText() ([]byte, error) {
	return []byte(iotaIdx.String()), nil
}

func (iotaIdx *LOSGrade) UnmarshalText(text []byte) error {
	for i, name := range losNames {
		if name == string(text) {
			*iotaIdx = LOSGrade(i + 1)
			return nil
		}
	}
	return fmt.Errorf("Unknown LOS grade '%s'", string(text))
}

// GradeLOS maps volume/capacity ratio to a grade
func GradeLOS(vc float64) LOSGrade {
	if math.IsNaN(vc) {
		return LOS_F
	}
	for i, threshold := range losThresholds {
		if vc < threshold {
			return LOSGrade(i + 1)
		}
	}
	if vc <= 1.0 {
		return LOS_E
	}
	return LOS_F
}
