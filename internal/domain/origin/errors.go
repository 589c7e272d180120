package origin

import "errors"

var (
	ErrOriginNotFound = errors.New("origin has not been configured")
)
