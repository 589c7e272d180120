package origin

import "github.com/cmlabs-hris/hris-presence-go/internal/pkg/validator"

type OriginResponse struct {
	Lat    float64 `json:"lat"`
	Lng    float64 `json:"lng"`
	Radius float64 `json:"radius"`
}

func ToResponse(o Origin) OriginResponse {
	return OriginResponse{
		Lat:    o.Latitude,
		Lng:    o.Longitude,
		Radius: o.RadiusMeters,
	}
}

type SetOriginRequest struct {
	Lat       *float64 `json:"lat"`
	Lng       *float64 `json:"lng"`
	Radius    *float64 `json:"radius,omitempty"`
	UpdatedBy string   `json:"-"`
}

func (r *SetOriginRequest) Validate() error {
	var errs validator.ValidationErrors

	if r.Lat == nil {
		errs = append(errs, validator.ValidationError{
			Field:   "lat",
			Message: "lat is required",
		})
	} else if !validator.IsValidLatitude(*r.Lat) {
		errs = append(errs, validator.ValidationError{
			Field:   "lat",
			Message: "lat must be between -90 and 90",
		})
	}

	if r.Lng == nil {
		errs = append(errs, validator.ValidationError{
			Field:   "lng",
			Message: "lng is required",
		})
	} else if !validator.IsValidLongitude(*r.Lng) {
		errs = append(errs, validator.ValidationError{
			Field:   "lng",
			Message: "lng must be between -180 and 180",
		})
	}

	if r.Radius != nil && *r.Radius <= 0 {
		errs = append(errs, validator.ValidationError{
			Field:   "radius",
			Message: "radius must be greater than 0",
		})
	}

	if len(errs) > 0 {
		return errs
	}

	return nil
}
