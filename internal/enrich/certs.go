package enrich

import (
	"regexp"

	"github.com/david/tender-finder/internal/models"
)

type certPattern struct {
	Name     string
	Category models.CertCategory
	Pattern  *regexp.Regexp
}

var explicitCerts = []certPattern{
	{"ISO 27001", models.CertSecurity, regexp.MustCompile(`(?i)ISO[\s\-]?27001`)},
	{"ISO 9001", models.CertQuality, regexp.MustCompile(`(?i)ISO[\s\-]?9001`)},
	{"ISO 14001", models.CertOther, regexp.MustCompile(`(?i)ISO[\s\-]?14001`)},
	{"NEN 7510", models.CertSecurity, regexp.MustCompile(`(?i)NEN[\s\-]?7510`)},
	{"ISAE 3402", models.CertQuality, regexp.MustCompile(`(?i)ISAE[\s\-]?3402`)},
	{"SOC 2", models.CertSecurity, regexp.MustCompile(`(?i)\bSOC[\s\-]?2\b`)},
	{"BIO", models.CertSecurity, regexp.MustCompile(`(?i)\bBIO\b|Baseline\s+Informatiebeveiliging`)},
	{"DigiD", models.CertSecurity, regexp.MustCompile(`(?i)\bDigiD\b`)},
	{"Wpg", models.CertOther, regexp.MustCompile(`(?i)\bWpg\b|\bWet\s+politiegegeven`)},
	{"NIS2", models.CertSecurity, regexp.MustCompile(`(?i)\bNIS[\s\-]?2\b`)},
	{"DORA", models.CertSecurity, regexp.MustCompile(`(?i)\bDORA\b`)},
	{"PSO", models.CertSocial, regexp.MustCompile(`(?i)\bPSO\b|Prestatieladder\s+Social|socialer\s+ondernemen`)},
	{"CO2-prestatieladder", models.CertSocial, regexp.MustCompile(`(?i)CO2[\s\-]?prestatieladder`)},
	{"SROI", models.CertSocial, regexp.MustCompile(`(?i)\bSROI\b|Social\s+Return`)},
}

type impliedCert struct {
	Name     string
	Category models.CertCategory
	Pattern  *regexp.Regexp
	Excludes []string
}

var impliedCerts = []impliedCert{
	{"ISO 27001?", models.CertSecurity, regexp.MustCompile(`(?i)informatiebeveilig`), []string{"ISO 27001"}},
	{"NEN 7510?", models.CertSecurity, regexp.MustCompile(`(?i)zorg.*informatiebeveilig|informatiebeveilig.*zorg`), []string{"NEN 7510"}},
	{"BIO?", models.CertSecurity,
		regexp.MustCompile(`(?i)informatiebeveilig.*(overheid|gemeente|provincie|rijks|waterschap)|(overheid|gemeente|provincie|rijks|waterschap).*informatiebeveilig`),
		[]string{"BIO"}},
}

// DetectExplicitCerts finds certifications and regulations named in text.
func DetectExplicitCerts(text string) []models.Certification {
	found := []models.Certification{}
	for _, c := range explicitCerts {
		if c.Pattern.MatchString(text) {
			found = append(found, models.Certification{Name: c.Name, Category: c.Category})
		}
	}
	return found
}

// DetectImpliedCerts finds certifications suggested by context. A rule is
// skipped when one of its excluded names was already detected explicitly.
func DetectImpliedCerts(text string, explicit []models.Certification) []models.Certification {
	have := make(map[string]bool, len(explicit))
	for _, c := range explicit {
		have[c.Name] = true
	}
	found := []models.Certification{}
	for _, c := range impliedCerts {
		if excluded(c.Excludes, have) {
			continue
		}
		if c.Pattern.MatchString(text) {
			found = append(found, models.Certification{Name: c.Name, Category: c.Category, Implied: true})
		}
	}
	return found
}

func excluded(names []string, have map[string]bool) bool {
	for _, n := range names {
		if have[n] {
			return true
		}
	}
	return false
}

type requirement struct {
	Name  string
	Level models.RequirementLevel
}

var regionalRequirements = []requirement{
	{"BIO", models.LevelMandatory},
	{"ISO 27001", models.LevelLikely},
	{"SROI", models.LevelCommon},
}

var centralRequirements = []requirement{
	{"BIO", models.LevelMandatory},
	{"ISO 27001", models.LevelLikely},
	{"DigiD", models.LevelPossible},
	{"ISAE 3402", models.LevelPossible},
}

var expectedByClient = map[models.ClientType][]requirement{
	models.ClientMunicipality:         regionalRequirements,
	models.ClientProvince:             regionalRequirements,
	models.ClientWaterAuthority:       regionalRequirements,
	models.ClientJointAuthority:       regionalRequirements,
	models.ClientCentralGovernment:    centralRequirements,
	models.ClientIndependentAdminBody: centralRequirements,
	models.ClientCentralGovCritical: {
		{"BIO", models.LevelMandatory},
		{"ISO 27001", models.LevelLikely},
		{"ISAE 3402", models.LevelLikely},
		{"NIS2", models.LevelLikely},
	},
	models.ClientHealthcare: {
		{"NEN 7510", models.LevelMandatory},
		{"ISO 27001", models.LevelLikely},
		{"BIO", models.LevelPossible},
	},
	models.ClientEducation: {
		{"AVG/DPIA", models.LevelLikely},
	},
	models.ClientPublicSocialEmployer: {
		{"BIO", models.LevelLikely},
		{"PSO", models.LevelLikely},
		{"SROI", models.LevelCommon},
	},
}

// ExpectedRequirements returns the certifications a client type usually asks
// for, adjusted for the detected segments. Names are unique; the highest
// level wins.
func ExpectedRequirements(client models.ClientType, segments []string) map[string]models.RequirementLevel {
	out := make(map[string]models.RequirementLevel)
	for _, r := range expectedByClient[client] {
		raise(out, r.Name, r.Level)
	}
	if hasSegment(segments, SegmentSecurity) {
		if _, ok := out["ISO 27001"]; ok || client != models.ClientOther {
			raise(out, "ISO 27001", models.LevelLikely)
		}
	}
	return out
}

func raise(m map[string]models.RequirementLevel, name string, level models.RequirementLevel) {
	if cur, ok := m[name]; ok && cur.Rank() >= level.Rank() {
		return
	}
	m[name] = level
}

// strictRequirements counts expectations at mandatory or likely level.
func strictRequirements(m map[string]models.RequirementLevel) int {
	n := 0
	for _, l := range m {
		if l.Rank() >= models.LevelLikely.Rank() {
			n++
		}
	}
	return n
}
