package cityflow

import (
	"math"
	"testing"
)

func TestBPRTravelTime(t *testing.T) {
	bpr := NewBPR()
	link := &Link{Kind: LINK_ROAD, FreeFlowTime: 60, Capacity: 1000}

	if tt := bpr.TravelTime(link, 0); tt != 60 {
		t.Errorf("Travel time without volume must be %v, but got %v", 60.0, tt)
	}
	correct := 60 * (1 + 0.15*math.Pow(0.9, 4))
	if tt := bpr.TravelTime(link, 900); math.Abs(tt-correct) > 1e-9 {
		t.Errorf("Travel time at v/c 0.9 must be %v, but got %v", correct, tt)
	}
	if tt := bpr.TravelTime(link, 1000); math.Abs(tt-69) > 1e-9 {
		t.Errorf("Travel time at capacity must be %v, but got %v", 69.0, tt)
	}
}

func TestBPRMonotone(t *testing.T) {
	bpr := NewBPR()
	link := &Link{Kind: LINK_ROAD, FreeFlowTime: 42, Capacity: 800}
	prev := bpr.TravelTime(link, 0)
	for volume := 10.0; volume <= 3000; volume += 10 {
		tt := bpr.TravelTime(link, volume)
		if tt < prev {
			t.Errorf("Travel time must not decrease with volume: %v after %v at %v veh/h", tt, prev, volume)
		}
		if tt < link.FreeFlowTime {
			t.Errorf("Travel time must not be less than free-flow time %v, but got %v", link.FreeFlowTime, tt)
		}
		prev = tt
	}
}

func TestBPRClosedAndNonRoad(t *testing.T) {
	bpr := NewBPR()
	closed := &Link{Kind: LINK_ROAD, FreeFlowTime: 10, Capacity: 0}
	if tt := bpr.TravelTime(closed, 0); !math.IsInf(tt, 1) {
		t.Errorf("Link without capacity must be non-traversable, but got %v", tt)
	}
	transfer := &Link{Kind: LINK_TRANSFER, FreeFlowTime: 300, Capacity: 0}
	if tt := bpr.TravelTime(transfer, 5000); tt != 300 {
		t.Errorf("Transfer cost must be fixed %v, but got %v", 300.0, tt)
	}
}

func TestVolumeCapacityRatio(t *testing.T) {
	if vc := VolumeCapacityRatio(0, 0); vc != 0 {
		t.Errorf("Empty closed edge must have v/c 0, but got %v", vc)
	}
	if vc := VolumeCapacityRatio(10, 0); !math.IsInf(vc, 1) {
		t.Errorf("Loaded closed edge must be saturated, but got %v", vc)
	}
	if vc := VolumeCapacityRatio(300, 1000); vc != 0.3 {
		t.Errorf("v/c must be %v, but got %v", 0.3, vc)
	}
}
