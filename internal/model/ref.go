package model

import (
	"fmt"

	"go.jetify.com/typeid/v2"
)

// Prefixes of record references handed out to clients.
const (
	BenefitRefPrefix = "bnf"
	BookingRefPrefix = "bkg"
)

// NewRef returns a sortable, prefix-qualified reference such as
// "bkg_01h455vb4pex5vsknk084sn02q".
func NewRef(prefix string) string {
	tid, err := typeid.Generate(prefix)
	if err != nil {
		panic(fmt.Sprintf("model: invalid ref prefix %q: %v", prefix, err))
	}
	return tid.String()
}
