package enrich

import (
	"regexp"
	"strings"

	"github.com/david/tender-finder/internal/models"
)

type clientRule struct {
	Type  models.ClientType
	Match func(name, lower string) bool
}

func keywordRule(t models.ClientType, words ...string) clientRule {
	ks := newKeywordSet(words...)
	return clientRule{Type: t, Match: func(_, lower string) bool { return ks.Any(lower) }}
}

func patternRule(t models.ClientType, re *regexp.Regexp, onLower bool) clientRule {
	return clientRule{Type: t, Match: func(name, lower string) bool {
		if onLower {
			return re.MatchString(lower)
		}
		return re.MatchString(name)
	}}
}

var (
	rwsPattern            = regexp.MustCompile(`\brws\b`)
	jointPrefixPattern    = regexp.MustCompile(`\bGR\s+[A-Z]`)
	foundationEduPattern  = regexp.MustCompile(`stichting.*onderwijs|onderwijs.*stichting`)
	foundationSchoolHints = []string{"school", "lyceum", "college"}
)

// clientRules are tried in order and the first match wins. Named special
// cases precede the generic category words they would otherwise hit.
var clientRules = []clientRule{
	patternRule(models.ClientCentralGovCritical, rwsPattern, true),
	patternRule(models.ClientJointAuthority, jointPrefixPattern, false),
	patternRule(models.ClientEducation, foundationEduPattern, true),

	keywordRule(models.ClientCentralGovCritical, "rijkswaterstaat", "prorail", "tennet", "gasunie"),
	keywordRule(models.ClientJointAuthority, "gemeenschappelijke regeling", "gemeenschappelijk regeling", "samenwerkingsverband"),
	keywordRule(models.ClientHealthcare,
		"ziekenhuis", "ggz", "ggd", "zorggroep", "huisartsen", "medisch centrum", "umc",
		"verpleeghuis", "thuiszorg", "gehandicaptenzorg"),
	keywordRule(models.ClientCentralGovernment,
		"ministerie", "politie", "raad van state", "hoge raad", "eerste kamer", "tweede kamer",
		"rekenkamer", "defensie", "justitie"),
	keywordRule(models.ClientIndependentAdminBody,
		"uwv", "svb", "duo", "belastingdienst", "rivm", "rvo", "rdw", "dienst wegverkeer", "kadaster",
		"knmi", "cbs", "autoriteit persoonsgegevens", "cbr", "ind", "kvk", "cjib", "nfi", "nvwa"),
	keywordRule(models.ClientWaterAuthority, "waterschap", "hoogheemraadschap", "wetterskip"),
	keywordRule(models.ClientMunicipality, "gemeente"),
	keywordRule(models.ClientProvince, "provincie"),
	keywordRule(models.ClientEducation, "universiteit", "hogeschool", "roc", "mbo", "lyceum", "scholengemeenschap", "surf"),
	keywordRule(models.ClientPublicSocialEmployer,
		"emco", "sociale werkvoorziening", "sw-bedrijf", "werkvoorzieningschap", "ergon", "patijnenburg"),
}

// ClassifyClient maps a contracting authority name to its client type.
func ClassifyClient(name string) models.ClientType {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.ClientOther
	}
	lower := strings.ToLower(name)
	for _, rule := range clientRules {
		if rule.Match(name, lower) {
			return rule.Type
		}
	}
	if strings.Contains(lower, "stichting") {
		for _, h := range foundationSchoolHints {
			if strings.Contains(lower, h) {
				return models.ClientEducation
			}
		}
	}
	return models.ClientOther
}

// primaryBuyers are the regional governments that buy managed services most.
var primaryBuyers = map[models.ClientType]bool{
	models.ClientMunicipality:   true,
	models.ClientProvince:       true,
	models.ClientWaterAuthority: true,
	models.ClientJointAuthority: true,
}

// governmentBuyers adds central government and independent bodies.
var governmentBuyers = map[models.ClientType]bool{
	models.ClientMunicipality:         true,
	models.ClientJointAuthority:       true,
	models.ClientProvince:             true,
	models.ClientWaterAuthority:       true,
	models.ClientCentralGovernment:    true,
	models.ClientIndependentAdminBody: true,
}
