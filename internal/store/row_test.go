package store

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDistrictd_Store_NormalizeGrade(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"PK":  "Pre-K",
		"KG":  "K",
		"UG":  "Ungraded",
		"01":  "1",
		"09":  "9",
		"12":  "12",
		"00":  "0",
		"":    "",
		"AE":  "AE", // unknown codes pass through
		" 07": "7",
	}
	for in, want := range cases {
		require.Equal(t, want, NormalizeGrade(in), "input %q", in)
	}
}

func TestDistrictd_Store_GradeRange(t *testing.T) {
	t.Parallel()

	r := Row{GradeLowest: "PK", GradeHighest: "12"}
	require.Equal(t, "Pre-K - 12", r.GradeRange())

	r = Row{GradeLowest: "KG"}
	require.Equal(t, "K", r.GradeRange())

	r = Row{}
	require.Equal(t, "", r.GradeRange())
}

func TestDistrictd_Store_AreaConversion(t *testing.T) {
	t.Parallel()

	r := Row{LandAreaM2: 2589988.11, WaterAreaM2: 0}
	require.InDelta(t, 1.0, r.LandAreaSqMiles(), 1e-9)
	require.Zero(t, r.WaterAreaSqMiles())
}
