package engine

import "github.com/edgemaps/districtd/internal/store"

// Kind discriminates the result variants of a lookup.
type Kind string

const (
	// KindExact means the point lies inside the district's boundary.
	KindExact Kind = "exact"
	// KindApproximate means no district contains the point; the engine fell
	// back to the nearest district by centroid and reports the boundary
	// distance.
	KindApproximate Kind = "approximate"
	// KindNotFound is reserved for lookups against an empty store.
	KindNotFound Kind = "not_found"
	// KindError carries a typed Error instead of a district.
	KindError Kind = "error"
)

// District is the caller-facing attribute record.
type District struct {
	DistrictID  string  `json:"district_id"`
	Name        string  `json:"name"`
	StateCode   string  `json:"state_code"`
	GradeRange  string  `json:"grade_range"`
	AreaSqMiles float64 `json:"area_sq_miles"`
	SchoolYear  string  `json:"school_year"`
}

// Result is the single return shape of Lookup. Exactly one of District or
// Err is set for the exact/approximate and error kinds; both are nil for
// not_found. DistanceMeters is meaningful only for approximate results.
type Result struct {
	Kind           Kind      `json:"kind"`
	District       *District `json:"district,omitempty"`
	DistanceMeters uint32    `json:"distance_meters,omitempty"`
	Err            *Error    `json:"error,omitempty"`
}

func districtFromRow(r *store.Row) *District {
	return &District{
		DistrictID:  r.DistrictID,
		Name:        r.Name,
		StateCode:   r.StateCode,
		GradeRange:  r.GradeRange(),
		AreaSqMiles: r.LandAreaSqMiles(),
		SchoolYear:  r.SchoolYear,
	}
}

func errResult(kind ErrorKind, detail string) Result {
	return Result{Kind: KindError, Err: &Error{Kind: kind, Detail: detail}}
}
