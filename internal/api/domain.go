package api

import (
	"github.com/JaimeStill/warden/internal/verifications"
)

// Domain holds all domain systems that comprise the API.
type Domain struct {
	Verifications verifications.System
}

// NewDomain creates all domain systems from the API runtime.
func NewDomain(runtime *Runtime) *Domain {
	return &Domain{
		Verifications: verifications.New(
			runtime.Verification,
			verifications.Deps{
				DB:        runtime.Database.Connection(),
				Storage:   runtime.Storage,
				Detector:  runtime.Detector,
				Inspector: runtime.Inspector,
				Logger:    runtime.Logger,
			},
			runtime.Pagination,
		),
	}
}
