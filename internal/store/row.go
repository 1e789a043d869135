package store

import (
	"fmt"
	"strings"
)

// squareMetersPerSquareMile converts the NCES area columns for presentation.
const squareMetersPerSquareMile = 2589988.11

// Row is one district record as persisted.
type Row struct {
	DistrictID   string
	Name         string
	StateCode    string
	GradeLowest  string
	GradeHighest string
	LandAreaM2   float64
	WaterAreaM2  float64
	SchoolYear   string

	MinLng, MinLat, MaxLng, MaxLat float64
	CentroidLng, CentroidLat       float64

	Geometry []byte
}

// CoversPoint reports whether the row's bounding box contains the point.
func (r *Row) CoversPoint(lng, lat float64) bool {
	return r.MinLng <= lng && lng <= r.MaxLng && r.MinLat <= lat && lat <= r.MaxLat
}

// LandAreaSqMiles converts the stored square meters for presentation.
func (r *Row) LandAreaSqMiles() float64 {
	return r.LandAreaM2 / squareMetersPerSquareMile
}

func (r *Row) WaterAreaSqMiles() float64 {
	return r.WaterAreaM2 / squareMetersPerSquareMile
}

// GradeRange formats the normalized grade span, e.g. "Pre-K - 12".
func (r *Row) GradeRange() string {
	lo := NormalizeGrade(r.GradeLowest)
	hi := NormalizeGrade(r.GradeHighest)
	switch {
	case lo == "" && hi == "":
		return ""
	case lo == "":
		return hi
	case hi == "":
		return lo
	default:
		return fmt.Sprintf("%s - %s", lo, hi)
	}
}

// NormalizeGrade maps NCES grade codes for presentation: PK, KG and UG get
// readable names, numeric codes lose leading zeros, unknown codes pass
// through unchanged.
func NormalizeGrade(code string) string {
	c := strings.ToUpper(strings.TrimSpace(code))
	switch c {
	case "":
		return ""
	case "PK":
		return "Pre-K"
	case "KG":
		return "K"
	case "UG":
		return "Ungraded"
	}
	if isDigits(c) {
		trimmed := strings.TrimLeft(c, "0")
		if trimmed == "" {
			return "0"
		}
		return trimmed
	}
	return strings.TrimSpace(code)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
