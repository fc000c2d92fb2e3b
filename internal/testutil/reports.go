package testutil

import "github.com/joeycumines/nativebridge/internal/fault"

// Reports is a fault.Recorder shared by test helpers.
type Reports = fault.Recorder
