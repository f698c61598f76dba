package domain

import dErrors "correspondence/pkg/domain-errors"

// Division is an organizational sub-unit. The zero value means "no division".
type Division string

const (
	DivisionNone                       Division = ""
	DivisionTechnicalAndLegal          Division = "technical_and_legal"
	DivisionDataAndInformation         Division = "data_and_information"
	DivisionLogisticsAndFinance        Division = "logistics_and_finance"
	DivisionHumanResourcesAndCommunity Division = "human_resources_and_community"
)

// Divisions lists every assignable division in display order.
var Divisions = []Division{
	DivisionTechnicalAndLegal,
	DivisionDataAndInformation,
	DivisionLogisticsAndFinance,
	DivisionHumanResourcesAndCommunity,
}

// ParseDivision constructs a Division from external input. The empty string
// and "none" both yield DivisionNone.
func ParseDivision(s string) (Division, error) {
	if s == "" || s == "none" {
		return DivisionNone, nil
	}
	d := Division(s)
	if !d.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid division").WithField("division")
	}
	return d, nil
}

// IsValid reports whether d is an assignable division. DivisionNone is not.
func (d Division) IsValid() bool {
	for _, v := range Divisions {
		if d == v {
			return true
		}
	}
	return false
}

func (d Division) IsNone() bool {
	return d == DivisionNone
}

func (d Division) String() string {
	return string(d)
}
