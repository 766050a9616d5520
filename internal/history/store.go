// Package history reads and builds the local TenderNed award dataset
// (gunningen plus percelen) used for award history and re-tender forecasts.
package history

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/david/tender-finder/internal/enrich"
	"github.com/david/tender-finder/internal/models"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

const (
	DefaultPath = "data/tenderned_historie.db"

	DefaultAwardLimit           = 20
	DefaultRetenderLimit        = 50
	DefaultPreAnnouncementLimit = 50

	// Awards from this window are expected back on the market.
	retenderMinYears = 2
	retenderMaxYears = 5
	// Expected re-tender window relative to the award year.
	retenderFromYears = 3
	retenderToYears   = 5
	preAnnounceMonths = 6

	awardNotice = "Aankondiging van een gegunde opdracht"
)

var preAnnouncementTypes = []string{
	"Vooraankondiging",
	"Marktconsultatie",
	"Vrijwillige transparantie vooraf",
}

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// Store queries the dataset file. A missing file is not an error: every query
// returns an empty result until the importer has created it.
type Store struct {
	path string
	now  func() time.Time

	mu sync.Mutex
	db *sqlx.DB
}

func NewStore(path string) *Store {
	if path == "" {
		path = DefaultPath
	}
	return &Store{path: path, now: time.Now}
}

// Path returns the dataset file location.
func (s *Store) Path() string {
	return s.path
}

// Loaded reports whether the dataset file exists.
func (s *Store) Loaded() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

func (s *Store) conn() (*sqlx.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Loaded() {
		if s.db != nil {
			s.db.Close()
			s.db = nil
		}
		return nil, nil
	}
	if s.db != nil {
		return s.db, nil
	}

	db, err := sqlx.Open("sqlite", s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history dataset: %w", err)
	}
	db.SetMaxOpenConns(4)
	s.db = db
	log.Printf("[History] Opened dataset %s", s.path)
	return db, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

const awardCols = `
	g.publicatie_id AS publicatie_id,
	COALESCE(g.publicatiedatum, '') AS publicatiedatum,
	COALESCE(g.publicatie_soort, '') AS publicatie_soort,
	COALESCE(g.aanbestedende_dienst, '') AS aanbestedende_dienst,
	COALESCE(g.beschrijving, '') AS beschrijving,
	COALESCE(g.type_opdracht, '') AS type_opdracht,
	COALESCE(g.cpv_codes, '') AS cpv_codes,
	COALESCE(p.naam_perceel, '') AS naam_perceel,
	COALESCE(p.datum_gunning, '') AS datum_gunning,
	COALESCE(p.gegunde_ondernemer, '') AS gegunde_ondernemer,
	COALESCE(p.gegunde_plaats, '') AS gegunde_plaats,
	p.geraamde_waarde AS geraamde_waarde,
	p.definitieve_waarde AS definitieve_waarde,
	p.aantal_inschrijvingen AS aantal_inschrijvingen`

// AwardsForClient returns awards of contracting authorities whose name contains
// client (case-insensitive), newest publication first.
func (s *Store) AwardsForClient(ctx context.Context, client string, limit int) ([]models.Award, error) {
	client = strings.TrimSpace(client)
	if client == "" {
		return []models.Award{}, nil
	}
	if limit <= 0 {
		limit = DefaultAwardLimit
	}
	db, err := s.conn()
	if err != nil || db == nil {
		return []models.Award{}, err
	}

	awards := []models.Award{}
	err = db.SelectContext(ctx, &awards, `
		SELECT DISTINCT `+awardCols+`
		FROM gunningen g
		LEFT JOIN percelen p ON g.publicatie_id = p.publicatie_id
		WHERE LOWER(g.aanbestedende_dienst) LIKE ?
		ORDER BY g.publicatiedatum DESC
		LIMIT ?`,
		"%"+strings.ToLower(client)+"%", limit)
	if err != nil {
		return []models.Award{}, fmt.Errorf("failed to query awards for %q: %w", client, err)
	}
	return awards, nil
}

// RetenderCandidates returns ICT service awards made two to five years ago.
func (s *Store) RetenderCandidates(ctx context.Context, limit int) ([]models.RetenderCandidate, error) {
	if limit <= 0 {
		limit = DefaultRetenderLimit
	}
	db, err := s.conn()
	if err != nil || db == nil {
		return []models.RetenderCandidate{}, err
	}

	now := s.now()
	from := now.AddDate(-retenderMaxYears, 0, 0).Format("2006-01-02")
	to := now.AddDate(-retenderMinYears, 0, 0).Format("2006-01-02")

	var awards []models.Award
	err = db.SelectContext(ctx, &awards, `
		SELECT `+awardCols+`
		FROM gunningen g
		LEFT JOIN percelen p ON g.publicatie_id = p.publicatie_id
		WHERE g.publicatie_soort = ?
		AND g.is_ict = 1
		AND g.type_opdracht = 'Diensten'
		AND p.datum_gunning IS NOT NULL AND p.datum_gunning != ''
		AND p.datum_gunning BETWEEN ? AND ?
		ORDER BY p.datum_gunning DESC
		LIMIT ?`,
		awardNotice, from, to, limit)
	if err != nil {
		return []models.RetenderCandidate{}, fmt.Errorf("failed to query re-tender candidates: %w", err)
	}

	out := make([]models.RetenderCandidate, 0, len(awards))
	for _, a := range awards {
		out = append(out, models.RetenderCandidate{
			Award:          a,
			ExpectedWindow: ExpectedWindow(a.AwardedAt),
			ClientType:     enrich.ClassifyClient(a.Client),
		})
	}
	return out, nil
}

// ExpectedWindow is the award year plus three to five years, e.g. "2027-2029".
func ExpectedWindow(awardedAt string) string {
	if len(awardedAt) < 4 {
		return ""
	}
	year, err := strconv.Atoi(awardedAt[:4])
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%d-%d", year+retenderFromYears, year+retenderToYears)
}

// PreAnnouncements returns ICT prior information notices, market consultations
// and voluntary ex-ante transparency notices of the last six months.
func (s *Store) PreAnnouncements(ctx context.Context, limit int) ([]models.PreAnnouncement, error) {
	if limit <= 0 {
		limit = DefaultPreAnnouncementLimit
	}
	db, err := s.conn()
	if err != nil || db == nil {
		return []models.PreAnnouncement{}, err
	}

	since := s.now().AddDate(0, -preAnnounceMonths, 0).Format("2006-01-02")
	query, args, err := sqlx.In(`
		SELECT
			g.publicatie_id AS publicatie_id,
			COALESCE(g.publicatiedatum, '') AS publicatiedatum,
			COALESCE(g.publicatie_soort, '') AS publicatie_soort,
			COALESCE(g.aanbestedende_dienst, '') AS aanbestedende_dienst,
			COALESCE(g.beschrijving, '') AS beschrijving,
			COALESCE(g.type_opdracht, '') AS type_opdracht,
			COALESCE(g.cpv_codes, '') AS cpv_codes
		FROM gunningen g
		WHERE g.publicatie_soort IN (?)
		AND g.is_ict = 1
		AND g.publicatiedatum >= ?
		ORDER BY g.publicatiedatum DESC
		LIMIT ?`,
		preAnnouncementTypes, since, limit)
	if err != nil {
		return []models.PreAnnouncement{}, fmt.Errorf("failed to build pre-announcement query: %w", err)
	}

	notices := []models.PreAnnouncement{}
	if err := db.SelectContext(ctx, &notices, db.Rebind(query), args...); err != nil {
		return []models.PreAnnouncement{}, fmt.Errorf("failed to query pre-announcements: %w", err)
	}
	for i := range notices {
		n := &notices[i]
		n.ClientType = enrich.ClassifyClient(n.Client)
		n.Segments = enrich.DetectSegments(n.Description, "", enrich.ParseCPVList(n.CpvCodes))
	}
	return notices, nil
}

// Counts summarizes the dataset for operator tooling.
type Counts struct {
	Notices int `db:"notices" json:"notices"`
	ICT     int `db:"ict" json:"ict"`
	Lots    int `db:"lots" json:"lots"`
}

func (s *Store) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	db, err := s.conn()
	if err != nil || db == nil {
		return c, err
	}
	err = db.GetContext(ctx, &c, `
		SELECT
			(SELECT COUNT(*) FROM gunningen) AS notices,
			(SELECT COUNT(*) FROM gunningen WHERE is_ict = 1) AS ict,
			(SELECT COUNT(*) FROM percelen) AS lots`)
	if err != nil {
		return c, fmt.Errorf("failed to count dataset rows: %w", err)
	}
	return c, nil
}
