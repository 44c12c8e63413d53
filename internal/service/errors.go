package service

import "errors"

// ErrInvalidQuery is returned for malformed read filters
var ErrInvalidQuery = errors.New("invalid query")
