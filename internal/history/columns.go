package history

import "strings"

// columnRule maps a workbook header to a dataset field. Rules are tried in
// order and the first match wins.
type columnRule struct {
	field string
	match func(h string) bool
}

func has(h string, parts ...string) bool {
	for _, p := range parts {
		if !strings.Contains(h, p) {
			return false
		}
	}
	return true
}

// Export headers vary between dataset years, so matching is by fragments.
var columnRules = []columnRule{
	{"publicatie_id", func(h string) bool { return has(h, "publicatie", "id") && !has(h, "perceel") }},
	{"tenderned_kenmerk", func(h string) bool { return has(h, "tenderned", "kenmerk") }},
	{"publicatiedatum", func(h string) bool { return has(h, "publicatiedatum") }},
	{"publicatie_soort", func(h string) bool { return has(h, "publicatie", "soort") }},
	{"officiele_naam", func(h string) bool { return has(h, "offici", "naam") }},
	{"aanbestedende_dienst", func(h string) bool { return has(h, "aanbestedende", "dienst") }},
	{"beschrijving", func(h string) bool { return has(h, "korte beschrijving") || has(h, "beschrijving", "kort") }},
	{"type_opdracht", func(h string) bool { return has(h, "type", "opdracht") }},
	{"procedure_type", func(h string) bool { return has(h, "procedure") && !has(h, "type") }},
	{"nationaal_europees", func(h string) bool { return has(h, "nationaal") || has(h, "europees") }},
	{"cpv_codes", func(h string) bool { return has(h, "cpv") }},
	{"perceel_id", func(h string) bool { return has(h, "id perceel") || has(h, "perceel", "id") }},
	{"naam_perceel", func(h string) bool { return has(h, "naam perceel") }},
	{"datum_winnaar_gekozen", func(h string) bool { return has(h, "winnaar", "datum") || has(h, "winnaar", "gunning") }},
	{"datum_gunning", func(h string) bool { return has(h, "datum gunning") || has(h, "gunningsdatum") }},
	{"aantal_elektronisch", func(h string) bool { return has(h, "aantal inschrijvingen", "elektronisch") || has(h, "elektronisch", "inschrijvingen") }},
	{"aantal_inschrijvingen", func(h string) bool { return has(h, "aantal inschrijvingen") }},
	{"gegunde_ondernemer", func(h string) bool {
		return has(h, "naam") && (has(h, "gegund") || has(h, "ondernemer") || has(h, "winnaar"))
	}},
	{"gegunde_adres", func(h string) bool { return has(h, "adres") && (has(h, "gegund") || has(h, "ondernemer")) }},
	{"gegunde_plaats", func(h string) bool { return has(h, "plaats") && (has(h, "gegund") || has(h, "ondernemer")) }},
	{"gegunde_postcode", func(h string) bool { return has(h, "postcode") && (has(h, "gegund") || has(h, "ondernemer")) }},
	{"gegunde_land", func(h string) bool { return has(h, "land") && (has(h, "gegund") || has(h, "ondernemer")) }},
	{"gegunde_website", func(h string) bool { return has(h, "website") }},
	{"geraamde_btw_percentage", func(h string) bool { return has(h, "geraamde", "btw") }},
	{"geraamde_waarde", func(h string) bool { return has(h, "geraamde", "waarde") }},
	{"definitieve_valuta", func(h string) bool { return has(h, "definitieve", "valuta") }},
	{"definitieve_waarde", func(h string) bool { return has(h, "definitieve", "waarde") }},
}

// mapColumns assigns header positions to dataset fields. A later header never
// overrides a field that an earlier header already claimed.
func mapColumns(headers []string) map[string]int {
	out := make(map[string]int)
	for i, raw := range headers {
		h := strings.ToLower(strings.TrimSpace(raw))
		if h == "" {
			continue
		}
		for _, rule := range columnRules {
			if rule.match(h) {
				if _, taken := out[rule.field]; !taken {
					out[rule.field] = i
				}
				break
			}
		}
	}
	return out
}
