package domain

import "errors"

// ErrNotFound is returned by stores for a missing job or campaign.
var ErrNotFound = errors.New("not found")
