package enrich

import (
	"github.com/david/tender-finder/internal/models"
)

const (
	SegmentWorkplace   = "Werkplek & Eindgebruikersbeheer"
	SegmentCloud       = "Cloud & Hosting"
	SegmentSecurity    = "Cybersecurity"
	SegmentNetwork     = "Netwerk & Connectiviteit"
	SegmentApplication = "Applicatiebeheer & Implementatie"
	SegmentData        = "Data & Business Intelligence"

	// SegmentFullService is synthesized when enough base segments match.
	SegmentFullService = "Full-service"

	fullServiceThreshold = 3
)

type segmentCategory int

const (
	categoryInfrastructure segmentCategory = iota
	categoryApplication
)

type segmentRule struct {
	Label    string
	Category segmentCategory
	Strong   *keywordSet
	Weak     *keywordSet
	CPV      []string
}

func newSegmentRule(label string, cat segmentCategory, strong, weak, cpv []string) segmentRule {
	prefixes := make([]string, 0, len(cpv))
	for _, c := range cpv {
		prefixes = append(prefixes, significantPrefix(c))
	}
	return segmentRule{
		Label:    label,
		Category: cat,
		Strong:   newKeywordSet(strong...),
		Weak:     newKeywordSet(weak...),
		CPV:      prefixes,
	}
}

// segmentRules are evaluated in this order; output order follows it.
var segmentRules = []segmentRule{
	newSegmentRule(SegmentWorkplace, categoryInfrastructure,
		[]string{
			"werkplekbeheer", "workplace management", "endpoint management", "digitale werkomgeving", "DWR",
			"printbeheer", "multifunctional", "MFP", "modern workplace", "Microsoft 365", "M365", "Office 365",
			"servicedesk", "ITSM", "client management", "end user computing", "kantoorautomatisering", "repro",
		},
		[]string{"werkplek", "printer", "print", "desktop", "laptop", "telefonie"},
		[]string{"30200000", "30210000", "30230000", "50300000", "51600000"},
	),
	newSegmentRule(SegmentCloud, categoryInfrastructure,
		[]string{
			"hosting", "IaaS", "PaaS", "cloudmigratie", "VMware", "virtualisatie", "compute", "storage", "backup",
			"disaster recovery", "datacenter", "datacentrum", "containerisatie", "hybride cloud", "private cloud", "public cloud",
		},
		[]string{"cloud", "SaaS", "Azure", "AWS", "migratie", "as a service"},
		[]string{"72400000", "72300000", "72900000", "48800000"},
	),
	newSegmentRule(SegmentSecurity, categoryInfrastructure,
		[]string{
			"SOC", "SIEM", "SOAR", "penetratietest", "pentest", "vulnerability scan", "informatiebeveiliging",
			"cybersecurity", "security operations", "dreigingsanalyse", "incident response", "security monitoring",
		},
		[]string{"security", "beveiliging", "NIS2", "DORA", "BIO"},
		[]string{"72800000"},
	),
	newSegmentRule(SegmentNetwork, categoryInfrastructure,
		[]string{
			"SD-WAN", "LAN", "WAN", "firewall", "connectiviteit", "glasvezel", "wifi", "WLAN",
			"switching", "routing", "VPN", "netwerkbeheer", "netwerk infrastructuur",
		},
		[]string{"netwerk", "telecom", "VoIP", "unified communications"},
		[]string{"64200000", "64210000", "72700000"},
	),
	newSegmentRule(SegmentApplication, categoryApplication,
		[]string{
			"applicatiebeheer", "softwareimplementatie", "zaaksysteem", "servicemanagement", "ITSM",
			"ERP-implementatie", "CRM-implementatie", "document management", "DMS", "informatiebeheer", "maatwerk software",
		},
		[]string{"applicatie", "software", "platform", "portaal", "systeem", "ERP", "CRM", "HRM", "integratie", "API", "koppeling"},
		[]string{"72200000", "72260000", "72230000", "48000000", "48100000"},
	),
	newSegmentRule(SegmentData, categoryApplication,
		[]string{
			"datawarehouse", "business intelligence", "Power BI", "Tableau", "datafundament",
			"data-integratie", "ETL", "data analytics", "rapportage-omgeving", "dataverzameling",
		},
		[]string{"data", "BI", "analytics", "dashboard", "rapportage"},
		[]string{"72300000", "72310000", "48600000"},
	),
}

// DetectSegments assigns the business segments of a tender. A strong keyword
// or a CPV match assigns a segment; a weak keyword never does on its own.
func DetectSegments(title, description string, cpv []models.CpvEntry) []string {
	text := combinedText(title, description)
	codes := cleanCodes(cpv)

	segments := []string{}
	for _, rule := range segmentRules {
		if rule.Strong.Any(text) || rule.cpvMatch(codes) {
			segments = append(segments, rule.Label)
		}
	}
	if len(segments) >= fullServiceThreshold {
		segments = append(segments, SegmentFullService)
	}
	return segments
}

// SegmentEvidence explains one segment decision.
type SegmentEvidence struct {
	Label    string   `json:"label"`
	Strong   []string `json:"strong"`
	Weak     []string `json:"weak"`
	CPV      bool     `json:"cpv"`
	Assigned bool     `json:"assigned"`
}

// ExplainSegments reports the keyword and CPV evidence behind DetectSegments.
// Weak keywords show up here but never assign a segment without a CPV match.
func ExplainSegments(title, description string, cpv []models.CpvEntry) []SegmentEvidence {
	text := combinedText(title, description)
	codes := cleanCodes(cpv)

	out := make([]SegmentEvidence, 0, len(segmentRules))
	for _, rule := range segmentRules {
		ev := SegmentEvidence{
			Label:  rule.Label,
			Strong: rule.Strong.Matches(text),
			Weak:   rule.Weak.Matches(text),
			CPV:    rule.cpvMatch(codes),
		}
		ev.Assigned = len(ev.Strong) > 0 || ev.CPV
		out = append(out, ev)
	}
	return out
}

func (r segmentRule) cpvMatch(codes []string) bool {
	for _, code := range codes {
		for _, prefix := range r.CPV {
			if prefixMatch(code, prefix) {
				return true
			}
		}
	}
	return false
}

// RealSegments drops the synthesized full-service label.
func RealSegments(segments []string) []string {
	out := make([]string, 0, len(segments))
	for _, s := range segments {
		if s != SegmentFullService {
			out = append(out, s)
		}
	}
	return out
}

func hasSegment(segments []string, label string) bool {
	for _, s := range segments {
		if s == label {
			return true
		}
	}
	return false
}

func segmentCategoryOf(label string) (segmentCategory, bool) {
	for _, r := range segmentRules {
		if r.Label == label {
			return r.Category, true
		}
	}
	return 0, false
}

// SegmentLabels lists the base segment labels in evaluation order.
func SegmentLabels() []string {
	out := make([]string, 0, len(segmentRules))
	for _, r := range segmentRules {
		out = append(out, r.Label)
	}
	return out
}
