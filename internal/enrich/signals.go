package enrich

import (
	"fmt"
	"strings"

	"github.com/david/tender-finder/internal/models"
)

const (
	iconWarning     = "⚠️"
	iconPuzzle      = "🧩"
	iconOpportunity = "✅"

	smallBudgetMax      int64 = 300_000
	sweetSpotMinValue   int64 = 200_000
	substantialMinValue int64 = 500_000
	broadScopeSegments        = 3
	broadScopeSystems         = 3
	strictCertsForSmall       = 3
	shortWindowDays           = 21
)

var serviceDeliveryHints = newKeywordSet("beheer", "onderhoud", "support", "service", "hosting", "managed")

var transitionHints = newKeywordSet("huidige leverancier", "transitie", "migratie van", "overgang van", "contract loopt af")

// systemCategories are named application families; several of them in one
// tender point at a broad scope.
var systemCategories = []struct {
	Name     string
	Keywords *keywordSet
}{
	{"ERP", newKeywordSet("erp")},
	{"CRM", newKeywordSet("crm")},
	{"HRM", newKeywordSet("hrm", "e-hrm", "salarisadministratie", "salarisverwerking")},
	{"DMS", newKeywordSet("dms", "document management", "documentmanagement")},
	{"Zaaksysteem", newKeywordSet("zaaksysteem", "zaakgericht")},
	{"ITSM", newKeywordSet("itsm", "servicemanagementsysteem")},
	{"Financieel", newKeywordSet("financieel pakket", "financieel systeem", "financiele applicatie")},
	{"BI", newKeywordSet("business intelligence", "power bi", "datawarehouse")},
	{"Burgerzaken", newKeywordSet("burgerzaken", "basisregistratie")},
	{"WOZ", newKeywordSet("woz")},
}

func namedSystems(lower string) []string {
	var out []string
	for _, c := range systemCategories {
		if c.Keywords.Any(lower) {
			out = append(out, c.Name)
		}
	}
	return out
}

// SignalInput is everything the signal rules look at.
type SignalInput struct {
	Raw         models.RawTender
	Client      models.ClientType
	Segments    []string
	Expected    map[string]models.RequirementLevel
	Value       models.ValueEstimate
	MSPFit      models.MSPFit
	Text        string
	AppSoftware bool
}

// DetectSignals evaluates every signal rule; all matches are emitted in a
// fixed order and none suppresses another.
func DetectSignals(in SignalInput) []models.Signal {
	signals := []models.Signal{}
	add := func(kind models.SignalKind, icon, label, detail string) {
		signals = append(signals, models.Signal{Kind: kind, Icon: icon, Label: label, Detail: detail})
	}

	realSegs := RealSegments(in.Segments)
	code := in.Raw.ContractTypeCode

	// Disproportionate requirements or scope.
	small := in.Client == models.ClientEducation || in.Client == models.ClientPublicSocialEmployer ||
		strings.HasPrefix(strings.ToLower(strings.TrimSpace(in.Raw.ClientName)), "stichting")
	if strict := strictRequirements(in.Expected); small && strict >= strictCertsForSmall {
		add(models.SignalDisproportionate, iconWarning, "Zware eisen",
			fmt.Sprintf("Zware eisen voor kleine opdrachtgever (%d certificeringen verwacht)", strict))
	}

	if in.Value.Max != nil && *in.Value.Max <= smallBudgetMax {
		budget := FormatAmount(*in.Value.Max)
		if len(realSegs) >= broadScopeSegments {
			add(models.SignalDisproportionate, iconWarning, "Brede scope, klein budget",
				fmt.Sprintf("Brede scope (%d segmenten) voor beperkt budget (%s)", len(realSegs), budget))
		} else if systems := namedSystems(in.Text); len(systems) >= broadScopeSystems {
			add(models.SignalDisproportionate, iconWarning, "Brede scope, klein budget",
				fmt.Sprintf("Brede scope (%d systemen: %s) voor beperkt budget (%s)", len(systems), strings.Join(systems, ", "), budget))
		}
	}

	if code == models.ContractSupplies && serviceDeliveryHints.Any(in.Text) {
		add(models.SignalDisproportionate, iconWarning, "Levering met dienstverlening",
			"Getypeerd als Levering, maar scope beschrijft dienstverlening")
	}

	// Notable combinations.
	workplace := hasSegment(in.Segments, SegmentWorkplace)
	if workplace && hasSegment(in.Segments, SegmentSecurity) {
		add(models.SignalNotable, iconPuzzle, "Werkplek met security",
			"Werkplek met security-focus: kijk naar verhouding scope vs. eisen")
	}

	if in.Client == models.ClientJointAuthority {
		add(models.SignalNotable, iconPuzzle, "Gemeenschappelijke regeling",
			"Meerdere organisaties, één contract: check governance en complexiteit")
	}

	if d := in.Raw.DaysToClose; d != nil && *d > 0 && *d < shortWindowDays && len(realSegs) >= broadScopeSegments {
		add(models.SignalNotable, iconPuzzle, "Korte inschrijftermijn",
			fmt.Sprintf("Complexe scope (%d segmenten) maar korte inschrijftermijn (%d dagen)", len(realSegs), *d))
	}

	if transitionHints.Any(in.Text) {
		add(models.SignalNotable, iconPuzzle, "Leverancierswissel",
			"Mogelijke leverancierswisseling: check transitierisico")
	}

	// Opportunities.
	minValue := int64(0)
	if in.Value.Min != nil {
		minValue = *in.Value.Min
	}
	if in.MSPFit.Score >= 0 && !in.AppSoftware {
		if primaryBuyers[in.Client] && workplace && code == models.ContractServices && minValue >= sweetSpotMinValue {
			add(models.SignalOpportunity, iconOpportunity, "Sweet spot",
				"Sweet spot MSP: overheid, werkplekbeheer, diensten en substantiële waarde")
		}
		if governmentBuyers[in.Client] && hasSegment(in.Segments, SegmentCloud) && code == models.ContractServices {
			add(models.SignalOpportunity, iconOpportunity, "Cloud bij overheid",
				"Cloud/hosting bij overheid: groeimarkt voor MSP's")
		}
	}

	if in.MSPFit.Tier == models.MSPRelevant && minValue >= substantialMinValue {
		add(models.SignalOpportunity, iconOpportunity, "Substantiële waarde",
			fmt.Sprintf("MSP-relevant met substantiële waarde (%s+)", FormatAmount(minValue)))
	}

	return signals
}
