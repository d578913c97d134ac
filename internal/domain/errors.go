package domain

import "errors"

var ErrNotFound = errors.New("not found")
var ErrNoMetadata = errors.New("metadata not available")
