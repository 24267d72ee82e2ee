package vbuffer

import "github.com/pkg/errors"

// MemoryTypeUnavailableError is the error returned from FindMemoryType and friends when no memory
// type on the device satisfies both the type filter and the required property flags
var MemoryTypeUnavailableError error = errors.New("no memory type satisfies the requested property flags")
