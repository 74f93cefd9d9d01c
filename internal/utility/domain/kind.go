package domain

import (
	"fmt"
	"strings"
)

// Kind is the closed set of utility kinds with a tiered pricing strategy.
type Kind int

const (
	KindElectricity Kind = iota + 1
	KindGas
	KindWater
	KindHotWater
	KindHeating
)

var kindNames = map[Kind]string{
	KindElectricity: "electricity",
	KindGas:         "gas",
	KindWater:       "water",
	KindHotWater:    "hot_water",
	KindHeating:     "heating",
}

// ParseKind maps a utility type name to its Kind. Unknown names yield
// ErrUnsupportedUtilityType.
func ParseKind(name string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "electricity":
		return KindElectricity, nil
	case "gas":
		return KindGas, nil
	case "water", "cold_water":
		return KindWater, nil
	case "hot_water":
		return KindHotWater, nil
	case "heating":
		return KindHeating, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedUtilityType, name)
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}
