package enums

import "fmt"

// ProfileType distinguishes an individual shopper from a business buyer.
type ProfileType string

const (
	ProfileTypeIndividual ProfileType = "individual"
	ProfileTypeBusiness   ProfileType = "business"
)

var validProfileTypes = []ProfileType{
	ProfileTypeIndividual,
	ProfileTypeBusiness,
}

// String implements fmt.Stringer.
func (p ProfileType) String() string {
	return string(p)
}

// IsValid reports whether the value is a known ProfileType.
func (p ProfileType) IsValid() bool {
	for _, candidate := range validProfileTypes {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParseProfileType converts raw input into a ProfileType.
func ParseProfileType(value string) (ProfileType, error) {
	for _, candidate := range validProfileTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid profile type %q", value)
}
