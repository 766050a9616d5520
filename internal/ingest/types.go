package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strconv"
	"time"
)

// FetchedDocument represents the raw result of a fetch operation.
type FetchedDocument struct {
	URL         string
	StatusCode  int
	ContentType string
	Body        io.ReadCloser
	FetchedAt   time.Time
	Headers     map[string][]string
}

// Fetcher retrieves raw content from a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*FetchedDocument, error)
}

// tnsPage is one page of the TenderNed publication listing.
type tnsPage struct {
	Content    []tnsPublication `json:"content"`
	TotalPages int              `json:"totalPages"`
	Last       bool             `json:"last"`
}

type tnsLabel struct {
	Code         string `json:"code"`
	Omschrijving string `json:"omschrijving"`
}

type tnsCpv struct {
	Code         string `json:"code"`
	Omschrijving string `json:"omschrijving"`
}

type tnsLink struct {
	Href string `json:"href"`
}

// tnsPublication mirrors the fields of a TenderNed publication used by the pipeline.
// The detail endpoint returns the same shape plus cpvCodes.
type tnsPublication struct {
	PublicatieID                 tnsID           `json:"publicatieId"`
	AanbestedingNaam             string          `json:"aanbestedingNaam"`
	OpdrachtBeschrijving         string          `json:"opdrachtBeschrijving"`
	OpdrachtgeverNaam            string          `json:"opdrachtgeverNaam"`
	TypeOpdracht                 tnsLabel        `json:"typeOpdracht"`
	Procedure                    tnsLabel        `json:"procedure"`
	TypePublicatie               tnsLabel        `json:"typePublicatie"`
	Europees                     bool            `json:"europees"`
	Digitaal                     bool            `json:"digitaal"`
	SluitingsDatum               string          `json:"sluitingsDatum"`
	AantalDagenTotSluitingsDatum *int            `json:"aantalDagenTotSluitingsDatum"`
	PublicatieDatum              string          `json:"publicatieDatum"`
	GeraamdeWaarde               json.RawMessage `json:"geraamdeWaarde"`
	AanbestedingDetail           *tnsDetailValue `json:"aanbestedingDetail"`
	TsenderLink                  string          `json:"tsenderLink"`
	Link                         *tnsLink        `json:"link"`
	CpvCodes                     []tnsCpv        `json:"cpvCodes"`

	detailRead bool
}

type tnsDetailValue struct {
	GeraamdeWaarde json.RawMessage `json:"geraamdeWaarde"`
}

// tnsID accepts publication ids encoded either as JSON strings or numbers.
type tnsID string

func (id *tnsID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = tnsID(s)
		return nil
	}
	*id = tnsID(data)
	return nil
}

// officialValue returns the estimated value only when it is a positive JSON number.
func (p tnsPublication) officialValue() *float64 {
	candidates := []json.RawMessage{p.GeraamdeWaarde}
	if p.AanbestedingDetail != nil {
		candidates = append(candidates, p.AanbestedingDetail.GeraamdeWaarde)
	}
	for _, raw := range candidates {
		raw = bytes.TrimSpace(raw)
		if len(raw) == 0 || raw[0] == '"' || raw[0] == 'n' {
			continue
		}
		v, err := strconv.ParseFloat(string(raw), 64)
		if err != nil || v <= 0 {
			continue
		}
		return &v
	}
	return nil
}
