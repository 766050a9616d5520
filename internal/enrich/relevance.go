package enrich

import (
	"strings"

	"github.com/david/tender-finder/internal/models"
)

const (
	highKeywordPoints     = 15
	mediumKeywordPoints   = 5
	negativeKeywordPoints = -10
	cpvBonusPoints        = 25

	relevanceHighFrom   = 50
	relevanceMediumFrom = 20
)

var highRelevanceKeywords = newKeywordSet(
	"MSP", "managed service", "inhuur", "detachering", "flexibele schil",
	"ICT-inhuur", "IT-inhuur", "raamovereenkomst ICT", "raamovereenkomst IT",
	"DAS ICT", "DAS IT", "dynamisch aankoopsysteem",
	"IT-personeel", "ICT-personeel", "IT-professionals",
	"softwareontwikkeling", "software development", "applicatiebeheer", "application management",
	"cloud", "SaaS", "IaaS", "PaaS", "cybersecurity", "informatiebeveiliging",
	"data center", "datacentrum", "hosting", "werkplekbeheer", "werkplekdiensten",
	"IT-beheer", "ICT-beheer", "IT-dienstverlening", "system integration", "systeemintegratie",
	"CRM", "HRM-systeem", "netwerk", "infrastructuur", "DevOps", "agile", "scrum",
	"toegangscontrolesysteem", "servicemanagementsysteem", "klantportaal", "datadistributie",
)

var mediumRelevanceKeywords = newKeywordSet(
	"digitalisering", "digitale transformatie", "informatievoorziening", "informatiesysteem",
	"licentie", "software", "applicatie", "server", "storage", "backup",
	"helpdesk", "servicedesk", "support", "migratie", "implementatie",
	"advies", "consultancy", "project management", "projectmanagement",
	"telefonie", "telecom", "telecommunicatie", "website", "webapplicatie", "portaal",
	"database", "databank", "training ICT", "opleiding IT",
)

var negativeRelevanceKeywords = newKeywordSet(
	"bouw", "wegenbouw", "groenvoorziening", "grondwerk", "schoonmaak", "catering",
	"beveiliging gebouw", "medisch", "medicijn", "zorg", "huisarts",
	"transport", "vervoer", "busvervoer", "meubilair", "kantoormeubel", "drukwerk", "print",
)

// itCPVPrefixes earn the flat CPV bonus.
var itCPVPrefixes = []string{"72", "48", "302", "642"}

// ScoreRelevance rates how IT-related a tender reads, 0 to 100.
func ScoreRelevance(title, description string, cpv []models.CpvEntry) models.Relevance {
	text := combinedText(title, description)

	high := highRelevanceKeywords.Matches(text)
	medium := mediumRelevanceKeywords.Matches(text)
	negative := negativeRelevanceKeywords.Matches(text)

	score := len(high)*highKeywordPoints + len(medium)*mediumKeywordPoints + len(negative)*negativeKeywordPoints

	bonus := 0
	for _, code := range cleanCodes(cpv) {
		if hasAnyPrefix(code, itCPVPrefixes) {
			bonus = cpvBonusPoints
			break
		}
	}
	score += bonus

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	matched := make([]string, 0, len(high)+len(medium))
	matched = append(matched, high...)
	matched = append(matched, medium...)
	if negative == nil {
		negative = []string{}
	}

	return models.Relevance{
		Score:            score,
		Tier:             relevanceTier(score),
		MatchedKeywords:  matched,
		NegativeKeywords: negative,
		CpvBonus:         bonus,
	}
}

func relevanceTier(score int) models.RelevanceTier {
	switch {
	case score >= relevanceHighFrom:
		return models.RelevanceHigh
	case score >= relevanceMediumFrom:
		return models.RelevanceMedium
	}
	return models.RelevanceLow
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
