package history

import (
	"strings"

	"github.com/david/tender-finder/internal/enrich"
)

// CPV divisions that are always ICT.
var ictDivisions = []string{"72", "48"}

// Narrower groups inside otherwise non-ICT divisions.
var ictGroups = []string{
	"3020", "3021", "3023", // computer equipment
	"6420", "6421", // telecommunications
	"5030", // computer repair
	"5160", // office equipment installation
}

var ictDescription = enrich.NewMatcher(
	"ict", "it-dienst", "software", "hosting", "cloud",
	"werkplek", "datacenter", "informatiebeveiliging", "cybersecurity",
	"netwerk", "firewall", "applicatie", "servicedesk", "helpdesk",
	"server", "storage", "backup", "digitalisering",
)

// IsICT marks a dataset notice as ICT by its CPV codes, or by its description
// when the notice has no CPV codes.
func IsICT(cpvCodes, description string) bool {
	codes := enrich.ParseCPVList(cpvCodes)
	if len(codes) == 0 {
		return ictDescription.Any(description)
	}
	for _, c := range codes {
		code := enrich.StripCPV(c.Code)
		for _, p := range ictDivisions {
			if strings.HasPrefix(code, p) {
				return true
			}
		}
		for _, p := range ictGroups {
			if strings.HasPrefix(code, p) {
				return true
			}
		}
	}
	return false
}
