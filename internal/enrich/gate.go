package enrich

import (
	"strings"

	"github.com/david/tender-finder/internal/models"
)

// notITTitleKeywords veto a tender on its title alone.
var notITTitleKeywords = []string{
	"verhuisdiensten", "verhuizing", "schoonmaak", "catering",
	"pendeldiensten", "pendeldienst", "vervoerdiensten", "vervoerdienst",
	"reisorganisatiediensten", "reisorganisatie",
	"groenonderhoud", "groenvoorziening", "ruw gras", "bloemrijk gras", "watergangen",
	"openbare ruimte", "herinrichting", "bouwkundig onderhoud", "renovatie", "nieuwbouw",
	"sportpark", "sportaccommodatie", "kindcentrum", "kavel op", "bestek",
	"openbare verlichting", "straatverlichting", "objectbeveiliging",
	"deurdrangers", "schuifdeuren", "roldeuren", "slagbomen",
	"verpakkingsglas", "afvoer en verwerking", "persoonsgebonden was", "wasgoed",
	"woningaanpassingen", "speelgroepen", "samenspeelgroepen", "car verzekering",
	"foto- en video", "fotografie en video", "veiligheidsinspecties elektrische", "verkeersregeltechnische",
	"anpr-camera", "logistiek laadadvies", "laadadvies", "bedrijventerreinaanpak",
	"correctief bouwkundig", "raamovereenkomst onderhoud",
	"ingenieursdiensten", "natuurherstel", "wissels",
	"bio-coalitie", "coördinatie en realisatie",
	"vergunningverlening milieu", "meldingen en vergunningverlening",
}

// physicalMaintenanceTitles override an IT CPV code.
var physicalMaintenanceTitles = []string{
	"onderhoud gras", "onderhoud verlichting", "onderhoud deuren",
	"onderhoud gebouw",
}

var gateITKeywords = newKeywordSet(
	"ict", "it-dienst", "software", "hosting", "cloud", "saas", "iaas", "paas",
	"datacenter", "datacentrum", "cybersecurity", "informatiebeveiliging",
	"digitalisering", "applicatie", "licentie", "microsoft", "azure", "aws",
	"informatievoorziening", "erp", "crm", "dms", "zaaksysteem", "siem",
	"managed services", "servicedesk", "helpdesk", "werkplek",
	"server", "storage", "backup", "disaster recovery",
	"voip", "unified communications", "multifunctional",
	"informatiesysteem", "informatiesystemen", "netwerk", "firewall", "wifi", "wlan",
	"document management", "datawarehouse", "business intelligence",
	"informatiemanagement", "digitale werkplek", "end user",
)

// hostingContext must accompany "hosting": hosting a control room is not IT.
var hostingContext = []string{
	"ict", "it-", "software", "cloud", "server", "data", "digitaal",
	"web", "applicatie", "informatievoorziening", "cyber", "saas",
	"iaas", "paas", "azure", "microsoft",
}

// IsITRelevant decides whether a tender has anything to do with IT at all.
// Listings only show tenders that pass.
func IsITRelevant(raw models.RawTender) bool {
	title := strings.ToLower(raw.Title)
	text := combinedText(raw.Title, raw.Description)

	if containsAny(title, notITTitleKeywords) {
		return false
	}

	if hasITCPV(cleanCodes(raw.CpvCodes)) && !containsAny(title, physicalMaintenanceTitles) {
		return true
	}

	for _, kw := range gateITKeywords.Matches(text) {
		if kw == "hosting" && !containsAny(text, hostingContext) {
			continue
		}
		return true
	}

	for _, rule := range segmentRules {
		if rule.Strong.Any(text) {
			return true
		}
	}
	return false
}

// hasITCPV compares the first four digits with every reference code.
func hasITCPV(codes []string) bool {
	for _, code := range codes {
		for _, ref := range referenceCodes {
			if strings.HasPrefix(code, ref[:4]) {
				return true
			}
		}
	}
	return false
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
