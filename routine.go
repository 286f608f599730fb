package lss

import (
	"fmt"
	"strings"
)

// Routine defines an enum of integration backends.
type Routine uint8

const (
	// ImportanceMC is the adaptive importance-sampling Monte-Carlo routine ("vegas"). It is the
	// zero value, hence the default routine of an Integrator.
	ImportanceMC Routine = iota
	// Quadrature is the 1-D adaptive deterministic quadrature routine ("cquad").
	Quadrature
	// StratifiedMC is the region-partitioning stratified Monte-Carlo routine ("divonne").
	StratifiedMC
)

// Routine identifiers, matched case-insensitively as substrings by ParseRoutine.
const (
	QuadratureName   = "cquad"
	ImportanceMCName = "vegas"
	StratifiedMCName = "divonne"
)

// Routines lists the known routines in lookup order.
var Routines = []Routine{Quadrature, ImportanceMC, StratifiedMC}

func (r Routine) String() string {
	switch r {
	case Quadrature:
		return QuadratureName
	case ImportanceMC:
		return ImportanceMCName
	case StratifiedMC:
		return StratifiedMCName
	}
	return fmt.Sprintf("routine(%d)", uint8(r))
}

// Valid returns whether this is one of the known routines.
func (r Routine) Valid() bool {
	return r <= StratifiedMC
}

// ParseRoutine resolves a routine from its name. The name matches if it contains one of the
// identifiers, ignoring case, so "CQUAD" and "Vegas-MC" are both accepted.
func ParseRoutine(name string) (Routine, error) {
	lower := strings.ToLower(name)
	for _, r := range Routines {
		if strings.Contains(lower, r.String()) {
			return r, nil
		}
	}
	return ImportanceMC, configErrf("ParseRoutine", ErrUnknownRoutine, "%q", name)
}
