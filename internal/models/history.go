package models

import "time"

// Award is one gunning row from the historical dataset joined with its lot.
type Award struct {
	PublicationID   string   `json:"publication_id" db:"publicatie_id"`
	PublishedAt     string   `json:"published_at" db:"publicatiedatum"`
	PublicationType string   `json:"publication_type" db:"publicatie_soort"`
	Client          string   `json:"client" db:"aanbestedende_dienst"`
	Description     string   `json:"description" db:"beschrijving"`
	ContractType    string   `json:"contract_type" db:"type_opdracht"`
	CpvCodes        string   `json:"cpv_codes" db:"cpv_codes"`
	LotName         string   `json:"lot_name" db:"naam_perceel"`
	AwardedAt       string   `json:"awarded_at" db:"datum_gunning"`
	Winner          string   `json:"winner" db:"gegunde_ondernemer"`
	WinnerCity      string   `json:"winner_city" db:"gegunde_plaats"`
	EstimatedValue  *float64 `json:"estimated_value" db:"geraamde_waarde"`
	FinalValue      *float64 `json:"final_value" db:"definitieve_waarde"`
	Bids            *int     `json:"bids" db:"aantal_inschrijvingen"`
}

// RetenderCandidate is an ICT service award old enough to come back to market.
type RetenderCandidate struct {
	Award
	ExpectedWindow string     `json:"expected_window"`
	ClientType     ClientType `json:"client_type"`
}

type PreAnnouncement struct {
	PublicationID   string     `json:"publication_id" db:"publicatie_id"`
	PublishedAt     string     `json:"published_at" db:"publicatiedatum"`
	PublicationType string     `json:"publication_type" db:"publicatie_soort"`
	Client          string     `json:"client" db:"aanbestedende_dienst"`
	Description     string     `json:"description" db:"beschrijving"`
	ContractType    string     `json:"contract_type" db:"type_opdracht"`
	CpvCodes        string     `json:"cpv_codes" db:"cpv_codes"`
	ClientType      ClientType `json:"client_type" db:"-"`
	Segments        []string   `json:"segments" db:"-"`
}

// RefreshRun records one cache refresh attempt.
type RefreshRun struct {
	ID          int64      `json:"id"`
	JobID       string     `json:"job_id"`
	Trigger     string     `json:"trigger"`
	Status      string     `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	Fetched     int        `json:"fetched"`
	DetailsRead int        `json:"details_read"`
	Upserted    int        `json:"upserted"`
	Error       string     `json:"error,omitempty"`
}

type CacheStats struct {
	TotalTenders int        `json:"total_tenders"`
	LastRefresh  *time.Time `json:"last_refresh"`
	IsFresh      bool       `json:"is_fresh"`
	TTLMinutes   int        `json:"ttl_minutes"`
}
