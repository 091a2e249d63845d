package geo

import (
	"math"
	"testing"
	"time"
)

func TestHaversineDistanceKm(t *testing.T) {
	tests := []struct {
		name string
		a, b Point
		want float64
		tol  float64
	}{
		{
			name: "zero distance",
			a:    Point{Lat: 12.97, Lng: 77.593},
			b:    Point{Lat: 12.97, Lng: 77.593},
			want: 0,
			tol:  1e-9,
		},
		{
			name: "short city hop",
			a:    Point{Lat: 12.9700, Lng: 77.5930},
			b:    Point{Lat: 12.9750, Lng: 77.5990},
			want: 0.74,
			tol:  0.05,
		},
		{
			name: "bangalore to chennai",
			a:    Point{Lat: 12.9716, Lng: 77.5946},
			b:    Point{Lat: 13.0827, Lng: 80.2707},
			want: 290,
			tol:  5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := HaversineDistanceKm(tt.a, tt.b)
			if math.Abs(got-tt.want) > tt.tol {
				t.Errorf("HaversineDistanceKm() = %v, want %v (+-%v)", got, tt.want, tt.tol)
			}
		})
	}
}

func TestHaversineDistanceKmSymmetric(t *testing.T) {
	a := Point{Lat: 12.97, Lng: 77.593}
	b := Point{Lat: 13.0827, Lng: 80.2707}
	if d1, d2 := HaversineDistanceKm(a, b), HaversineDistanceKm(b, a); math.Abs(d1-d2) > 1e-9 {
		t.Errorf("distance not symmetric: %v vs %v", d1, d2)
	}
}

func TestBearingDegrees(t *testing.T) {
	origin := Point{Lat: 0, Lng: 0}

	tests := []struct {
		name string
		to   Point
		want float64
	}{
		{"due north", Point{Lat: 1, Lng: 0}, 0},
		{"due east", Point{Lat: 0, Lng: 1}, 90},
		{"due south", Point{Lat: -1, Lng: 0}, 180},
		{"due west", Point{Lat: 0, Lng: -1}, 270},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BearingDegrees(origin, tt.to)
			if math.Abs(got-tt.want) > 0.01 {
				t.Errorf("BearingDegrees() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEstimateArrival(t *testing.T) {
	// 25 km at 25 km/h is exactly one hour
	if got := EstimateArrival(25, 25); got != time.Hour {
		t.Errorf("EstimateArrival(25, 25) = %v, want 1h", got)
	}

	// non-positive speed falls back to the default 25 km/h
	if got := EstimateArrival(25, 0); got != time.Hour {
		t.Errorf("EstimateArrival(25, 0) = %v, want 1h (fallback speed)", got)
	}
	if got := EstimateArrival(12.5, -3); got != 30*time.Minute {
		t.Errorf("EstimateArrival(12.5, -3) = %v, want 30m", got)
	}

	// zero distance means no travel time
	if got := EstimateArrival(0, 40); got != 0 {
		t.Errorf("EstimateArrival(0, 40) = %v, want 0", got)
	}
}

func TestPointValidate(t *testing.T) {
	if err := (Point{Lat: 12.97, Lng: 77.59}).Validate(); err != nil {
		t.Fatalf("valid point rejected: %v", err)
	}
	if err := (Point{Lat: 91, Lng: 0}).Validate(); err != ErrInvalidLatitude {
		t.Errorf("want ErrInvalidLatitude, got %v", err)
	}
	if err := (Point{Lat: 0, Lng: -181}).Validate(); err != ErrInvalidLongitude {
		t.Errorf("want ErrInvalidLongitude, got %v", err)
	}
}
