package enrich

import (
	"regexp"
	"sort"
	"strings"

	"github.com/david/tender-finder/internal/models"
)

// ReferenceCPV lists the division-level codes monitored for IT and managed services.
var ReferenceCPV = map[string]string{
	"72000000": "IT-diensten: adviezen, softwareontwikkeling, internet en ondersteuning",
	"72100000": "Advies inzake hardware",
	"72200000": "Softwareprogrammering en -advies",
	"72210000": "Programmering van softwarepakketten",
	"72220000": "Advies inzake systemen en technisch advies",
	"72230000": "Ontwikkeling van gebruikerspecifieke software",
	"72240000": "Systeemanalyse en programmering",
	"72250000": "Systeem- en ondersteuningsdiensten",
	"72260000": "Diensten in verband met software",
	"72300000": "Uitwisseling van gegevens",
	"72310000": "Gegevensverwerking",
	"72320000": "Databanken",
	"72400000": "Internetdiensten",
	"72500000": "Informaticadiensten",
	"72600000": "Diensten voor computerondersteuning en -advies",
	"72700000": "Computernetwerkdiensten",
	"72800000": "Computeraudit- en computertestdiensten",
	"72900000": "Computerback-up en computercatalogisering",
	"48000000": "Software en informatiesystemen",
	"48100000": "Branchespecifiek softwarepakket",
	"48200000": "Software voor netwerken, internet en intranet",
	"48300000": "Software voor het aanmaken van documenten, tekeningen, beelden, dienstregelingen en productiviteit",
	"48400000": "Software voor zakelijke transacties en persoonlijke zaken",
	"48500000": "Communicatie- en multimediasoftware",
	"48600000": "Software voor databanken en -exploitatie",
	"48700000": "Hulpprogramma's voor softwarepakketten",
	"48800000": "Informatiesystemen en servers",
	"48900000": "Diverse software en computersystemen",
	"30200000": "Computeruitrusting en -benodigdheden",
	"30210000": "Machines voor gegevensverwerking (hardware)",
	"30230000": "Computerapparatuur",
	"64200000": "Telecommunicatiediensten",
	"64210000": "Telefoon- en datatransmissiediensten",
	"64216000": "Elektronische berichten- en informatiediensten",
	"64220000": "Telecommunicatiediensten, met uitzondering van telefoon- en datatransmissiediensten",
	"79500000": "Kantoorgerelateerde ondersteunende diensten",
	"50300000": "Reparatie, onderhoud en aanverwante diensten voor pc's, kantooruitrusting, telecommunicatie- en audiovisuele uitrusting",
	"51600000": "Installatie van computers en kantooruitrusting",
}

var referenceCodes = sortedReferenceCodes()

func sortedReferenceCodes() []string {
	codes := make([]string, 0, len(ReferenceCPV))
	for c := range ReferenceCPV {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	return codes
}

// CPVCatalogue returns the reference codes with descriptions, sorted by code.
func CPVCatalogue() []models.CpvEntry {
	out := make([]models.CpvEntry, 0, len(referenceCodes))
	for _, c := range referenceCodes {
		out = append(out, models.CpvEntry{Code: c, Description: ReferenceCPV[c]})
	}
	return out
}

// StripCPV drops the check digit ("72000000-5" -> "72000000") and surrounding space.
func StripCPV(code string) string {
	if i := strings.Index(code, "-"); i >= 0 {
		code = code[:i]
	}
	return strings.TrimSpace(code)
}

// MatchesReference reports whether code belongs to the reference set, either
// exactly or through the three-digit prefix of a division code. The prefix
// rule is broad on purpose and will accept some unrelated codes in a division.
func MatchesReference(code string, reference []string) bool {
	clean := StripCPV(code)
	if clean == "" {
		return false
	}
	for _, ref := range reference {
		if clean == ref {
			return true
		}
	}
	if len(clean) < 3 {
		return false
	}
	for _, ref := range reference {
		if len(ref) >= 3 && strings.HasSuffix(ref, "00000") && clean[:3] == ref[:3] {
			return true
		}
	}
	return false
}

// MatchesCPV checks code against the monitored reference codes.
func MatchesCPV(code string) bool {
	return MatchesReference(code, referenceCodes)
}

// significantPrefix trims the zero padding of a division code: 72400000 -> 724.
func significantPrefix(code string) string {
	p := strings.TrimRight(StripCPV(code), "0")
	if p == "" {
		return StripCPV(code)
	}
	return p
}

// prefixMatch compares a tender code with a segment prefix; either may be the
// prefix of the other.
func prefixMatch(tenderCode, segmentPrefix string) bool {
	if tenderCode == "" || segmentPrefix == "" {
		return false
	}
	return strings.HasPrefix(tenderCode, segmentPrefix) || strings.HasPrefix(segmentPrefix, tenderCode)
}

// cleanCodes strips every entry and drops the empty ones.
func cleanCodes(entries []models.CpvEntry) []string {
	var out []string
	for _, e := range entries {
		if c := StripCPV(e.Code); c != "" && isDigits(c) {
			out = append(out, c)
		}
	}
	return out
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

var cpvInText = regexp.MustCompile(`\b\d{8}(?:-\d)?\b`)

// ParseCPVList extracts CPV codes from free text such as "72000000-5, 48000000-8 (Software)".
func ParseCPVList(s string) []models.CpvEntry {
	found := cpvInText.FindAllString(s, -1)
	out := make([]models.CpvEntry, 0, len(found))
	seen := make(map[string]bool, len(found))
	for _, code := range found {
		if seen[code] {
			continue
		}
		seen[code] = true
		out = append(out, models.CpvEntry{Code: code})
	}
	return out
}
