package enrich

import (
	"github.com/david/tender-finder/internal/models"
)

const (
	mspServicesBonus     = 10
	mspInfraBonus        = 15
	mspManagedBonus      = 15
	mspPrimaryBuyerBonus = 10
	mspProductPenalty    = -25
	mspPhysicalPenalty   = -25
	mspNichePenalty      = -25

	mspRelevantAbove = 20
)

// appSoftwareIndicators mark the purchase of one specific application.
var appSoftwareIndicators = newKeywordSet(
	"salarisverwerking", "salarissoftware", "salaris applicatie", "salarissysteem",
	"e-hrm", "hrm-systeem", "hrm systeem", "personeelsinformatie",
	"woz-applicatie", "woz applicatie", "woz taxatie", "woz waardering",
	"financieel pakket", "financiele applicatie",
	"basisregistratie", "burgerzaken", "vergunningen",
	"klantvolgsysteem", "clientvolgsysteem", "cliëntvolgsysteem",
	"sociaal domein software", "jeugdhulp applicatie",
)

var physicalInfraIndicators = newKeywordSet(
	"meettrein", "civiel", "graafwerk", "aanleg glasvezel",
	"straatverlichting", "verkeersregelinstallatie",
	"fysieke toegangscontrole", "tourniquets", "slagboom",
	"camerabewaking", "cctv", "installatie gebouw",
	"elektrotechnisch", "werktuigbouwkundig",
	"laboratoriumapparatuur", "labapparatuur",
)

var infraOperationsKeywords = newKeywordSet(
	"werkplekbeheer", "werkplek", "compute", "storage", "backup",
	"hosting", "cloud", "datacenter", "infrastructuur", "connectiviteit",
	"servicedesk", "helpdesk", "endpoint", "digitale werkomgeving", "disaster recovery",
)

var managedServiceContext = newKeywordSet(
	"beheer en onderhoud", "as a service", "monitoring", "managed service",
)

// nicheVendorProducts are municipal software suites sold by their own vendors.
var nicheVendorProducts = newKeywordSet(
	"suite4", "key2", "gws4all", "iburgerzaken", "corsa", "decos", "djuma",
	"mozard", "join zaak", "civision", "powerbrowser", "squit",
)

// isAppSoftware reports a software-product purchase in lowercased text.
func isAppSoftware(lower string) bool {
	return appSoftwareIndicators.Any(lower)
}

// ScoreMSPFit rates how well a tender fits a managed-service portfolio. The
// score is not clamped and may be negative.
func ScoreMSPFit(title, description, contractCode string, client models.ClientType, _ []string) models.MSPFit {
	text := combinedText(title, description)
	appSoftware := isAppSoftware(text)

	score := 0
	if contractCode == models.ContractServices {
		score += mspServicesBonus
	}
	if !appSoftware && infraOperationsKeywords.Any(text) {
		score += mspInfraBonus
	}
	if managedServiceContext.Any(text) {
		score += mspManagedBonus
	}
	if primaryBuyers[client] {
		score += mspPrimaryBuyerBonus
	}

	if appSoftware {
		score += mspProductPenalty
	}
	if physicalInfraIndicators.Any(text) {
		score += mspPhysicalPenalty
	}
	if nicheVendorProducts.Any(text) {
		score += mspNichePenalty
	}

	return models.MSPFit{Score: score, Tier: mspTier(score)}
}

func mspTier(score int) models.MSPTier {
	switch {
	case score > mspRelevantAbove:
		return models.MSPRelevant
	case score >= 0:
		return models.MSPPossiblyRelevant
	}
	return models.MSPNot
}
