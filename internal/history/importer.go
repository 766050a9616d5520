package history

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/xuri/excelize/v2"
)

const importBatchSize = 5000

const datasetSchema = `
DROP TABLE IF EXISTS percelen;
DROP TABLE IF EXISTS gunningen;

CREATE TABLE gunningen (
	publicatie_id TEXT PRIMARY KEY,
	tenderned_kenmerk TEXT,
	publicatiedatum TEXT,
	publicatie_soort TEXT,
	aanbestedende_dienst TEXT,
	officiele_naam TEXT,
	beschrijving TEXT,
	type_opdracht TEXT,
	procedure_type TEXT,
	nationaal_europees TEXT,
	cpv_codes TEXT,
	is_ict INTEGER DEFAULT 0
);

CREATE TABLE percelen (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	publicatie_id TEXT,
	perceel_id TEXT,
	naam_perceel TEXT,
	datum_gunning TEXT,
	datum_winnaar_gekozen TEXT,
	aantal_inschrijvingen INTEGER,
	aantal_elektronisch INTEGER,
	gegunde_ondernemer TEXT,
	gegunde_adres TEXT,
	gegunde_plaats TEXT,
	gegunde_postcode TEXT,
	gegunde_land TEXT,
	gegunde_website TEXT,
	geraamde_waarde REAL,
	geraamde_btw_percentage REAL,
	definitieve_waarde REAL,
	definitieve_valuta TEXT,
	FOREIGN KEY (publicatie_id) REFERENCES gunningen(publicatie_id)
);

CREATE INDEX idx_gunningen_dienst ON gunningen(aanbestedende_dienst);
CREATE INDEX idx_gunningen_soort ON gunningen(publicatie_soort);
CREATE INDEX idx_gunningen_ict ON gunningen(is_ict);
CREATE INDEX idx_gunningen_datum ON gunningen(publicatiedatum);
CREATE INDEX idx_percelen_pubid ON percelen(publicatie_id);
CREATE INDEX idx_percelen_gunning ON percelen(datum_gunning);
CREATE INDEX idx_percelen_ondernemer ON percelen(gegunde_ondernemer);
`

const insertNotice = `INSERT OR IGNORE INTO gunningen (
	publicatie_id, tenderned_kenmerk, publicatiedatum, publicatie_soort, aanbestedende_dienst,
	officiele_naam, beschrijving, type_opdracht, procedure_type, nationaal_europees, cpv_codes, is_ict
) VALUES (
	:publicatie_id, :tenderned_kenmerk, :publicatiedatum, :publicatie_soort, :aanbestedende_dienst,
	:officiele_naam, :beschrijving, :type_opdracht, :procedure_type, :nationaal_europees, :cpv_codes, :is_ict
)`

const insertLot = `INSERT INTO percelen (
	publicatie_id, perceel_id, naam_perceel, datum_gunning, datum_winnaar_gekozen,
	aantal_inschrijvingen, aantal_elektronisch, gegunde_ondernemer, gegunde_adres, gegunde_plaats,
	gegunde_postcode, gegunde_land, gegunde_website, geraamde_waarde, geraamde_btw_percentage,
	definitieve_waarde, definitieve_valuta
) VALUES (
	:publicatie_id, :perceel_id, :naam_perceel, :datum_gunning, :datum_winnaar_gekozen,
	:aantal_inschrijvingen, :aantal_elektronisch, :gegunde_ondernemer, :gegunde_adres, :gegunde_plaats,
	:gegunde_postcode, :gegunde_land, :gegunde_website, :geraamde_waarde, :geraamde_btw_percentage,
	:definitieve_waarde, :definitieve_valuta
)`

type noticeRow struct {
	PublicatieID        string `db:"publicatie_id"`
	TenderNedKenmerk    string `db:"tenderned_kenmerk"`
	Publicatiedatum     string `db:"publicatiedatum"`
	PublicatieSoort     string `db:"publicatie_soort"`
	AanbestedendeDienst string `db:"aanbestedende_dienst"`
	OfficieleNaam       string `db:"officiele_naam"`
	Beschrijving        string `db:"beschrijving"`
	TypeOpdracht        string `db:"type_opdracht"`
	ProcedureType       string `db:"procedure_type"`
	NationaalEuropees   string `db:"nationaal_europees"`
	CpvCodes            string `db:"cpv_codes"`
	IsICT               int    `db:"is_ict"`
}

type lotRow struct {
	PublicatieID          string   `db:"publicatie_id"`
	PerceelID             string   `db:"perceel_id"`
	NaamPerceel           string   `db:"naam_perceel"`
	DatumGunning          string   `db:"datum_gunning"`
	DatumWinnaarGekozen   string   `db:"datum_winnaar_gekozen"`
	AantalInschrijvingen  *int     `db:"aantal_inschrijvingen"`
	AantalElektronisch    *int     `db:"aantal_elektronisch"`
	GegundeOndernemer     string   `db:"gegunde_ondernemer"`
	GegundeAdres          string   `db:"gegunde_adres"`
	GegundePlaats         string   `db:"gegunde_plaats"`
	GegundePostcode       string   `db:"gegunde_postcode"`
	GegundeLand           string   `db:"gegunde_land"`
	GegundeWebsite        string   `db:"gegunde_website"`
	GeraamdeWaarde        *float64 `db:"geraamde_waarde"`
	GeraamdeBTWPercentage *float64 `db:"geraamde_btw_percentage"`
	DefinitieveWaarde     *float64 `db:"definitieve_waarde"`
	DefinitieveValuta     string   `db:"definitieve_valuta"`
}

// ImportStats counts what one file contributed.
type ImportStats struct {
	Rows    int `json:"rows"`
	Notices int `json:"notices"`
	ICT     int `json:"ict"`
	Lots    int `json:"lots"`
}

// Importer recreates the dataset file and loads TenderNed open-data exports into it.
type Importer struct {
	db        *sqlx.DB
	path      string
	batchSize int
	seen      map[string]struct{}
}

// CreateDataset drops and recreates the gunningen and percelen tables at path.
func CreateDataset(ctx context.Context, path string) (*Importer, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create dataset directory: %w", err)
		}
	}
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if _, err := db.ExecContext(ctx, datasetSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create dataset schema: %w", err)
	}
	log.Printf("[Import] Created dataset %s", path)

	return &Importer{db: db, path: path, batchSize: importBatchSize, seen: make(map[string]struct{})}, nil
}

func (im *Importer) Close() error {
	return im.db.Close()
}

// ImportFile loads one .xlsx or .json export.
func (im *Importer) ImportFile(ctx context.Context, path string) (ImportStats, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return im.importExcel(ctx, path)
	case ".json":
		return im.importJSON(ctx, path)
	default:
		return ImportStats{}, fmt.Errorf("unsupported dataset format %q (use .xlsx or .json)", filepath.Ext(path))
	}
}

// batchWriter accumulates rows and flushes them in one transaction per batch.
type batchWriter struct {
	im      *Importer
	notices []noticeRow
	lots    []lotRow
	stats   ImportStats
}

func (w *batchWriter) add(ctx context.Context, rec record) error {
	w.stats.Rows++
	n, lot := rec.rows()
	if n.PublicatieID == "" {
		return nil
	}
	if _, dup := w.im.seen[n.PublicatieID]; !dup {
		w.im.seen[n.PublicatieID] = struct{}{}
		w.notices = append(w.notices, n)
		w.stats.Notices++
		if n.IsICT == 1 {
			w.stats.ICT++
		}
	}
	if lot != nil {
		w.lots = append(w.lots, *lot)
		w.stats.Lots++
	}
	if len(w.notices) >= w.im.batchSize || len(w.lots) >= w.im.batchSize {
		if err := w.flush(ctx); err != nil {
			return err
		}
		log.Printf("[Import] %d rows processed, %d ICT", w.stats.Rows, w.stats.ICT)
	}
	return nil
}

func (w *batchWriter) flush(ctx context.Context) error {
	if len(w.notices) == 0 && len(w.lots) == 0 {
		return nil
	}
	tx, err := w.im.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin import batch: %w", err)
	}
	defer tx.Rollback()

	if len(w.notices) > 0 {
		stmt, err := tx.PrepareNamedContext(ctx, insertNotice)
		if err != nil {
			return fmt.Errorf("failed to prepare notice insert: %w", err)
		}
		for _, n := range w.notices {
			if _, err := stmt.ExecContext(ctx, n); err != nil {
				stmt.Close()
				return fmt.Errorf("failed to insert notice %s: %w", n.PublicatieID, err)
			}
		}
		stmt.Close()
	}
	if len(w.lots) > 0 {
		stmt, err := tx.PrepareNamedContext(ctx, insertLot)
		if err != nil {
			return fmt.Errorf("failed to prepare lot insert: %w", err)
		}
		for _, l := range w.lots {
			if _, err := stmt.ExecContext(ctx, l); err != nil {
				stmt.Close()
				return fmt.Errorf("failed to insert lot of %s: %w", l.PublicatieID, err)
			}
		}
		stmt.Close()
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit import batch: %w", err)
	}
	w.notices = w.notices[:0]
	w.lots = w.lots[:0]
	return nil
}

func (im *Importer) importExcel(ctx context.Context, path string) (ImportStats, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return ImportStats{}, fmt.Errorf("failed to open workbook %s: %w", path, err)
	}
	defer f.Close()

	w := &batchWriter{im: im}
	for _, sheet := range f.GetSheetList() {
		rows, err := f.Rows(sheet)
		if err != nil {
			return w.stats, fmt.Errorf("failed to read sheet %s: %w", sheet, err)
		}

		var columns map[string]int
		for rows.Next() {
			cells, err := rows.Columns(excelize.Options{RawCellValue: true})
			if err != nil {
				rows.Close()
				return w.stats, fmt.Errorf("failed to read row in sheet %s: %w", sheet, err)
			}
			if columns == nil {
				columns = mapColumns(cells)
				log.Printf("[Import] Sheet %s: %d mapped columns", sheet, len(columns))
				continue
			}
			rec := record{}
			for field, idx := range columns {
				if idx < len(cells) {
					rec[field] = strings.TrimSpace(cells[idx])
				}
			}
			if err := w.add(ctx, rec); err != nil {
				rows.Close()
				return w.stats, err
			}
		}
		if err := rows.Close(); err != nil {
			return w.stats, fmt.Errorf("failed to close sheet %s: %w", sheet, err)
		}
	}
	return w.stats, w.flush(ctx)
}

// jsonKeys maps dataset fields to the keys used by the yearly JSON exports,
// most specific first.
var jsonKeys = map[string][]string{
	"publicatie_id":           {"ID publicatie", "publicatie_id"},
	"tenderned_kenmerk":       {"TenderNed kenmerk", "tenderned_kenmerk"},
	"publicatiedatum":         {"Publicatiedatum", "publicatiedatum"},
	"publicatie_soort":        {"Publicatie soort", "publicatie_soort"},
	"aanbestedende_dienst":    {"Naam aanbestedende dienst", "aanbestedende_dienst"},
	"officiele_naam":          {"Officiele naam", "officiele_naam"},
	"beschrijving":            {"Korte beschrijving aanbesteding", "beschrijving"},
	"type_opdracht":           {"Type opdracht", "type_opdracht"},
	"procedure_type":          {"Procedure", "procedure_type"},
	"nationaal_europees":      {"Nationaal/Europees", "nationaal_europees"},
	"cpv_codes":               {"CPV-codes", "cpv_codes"},
	"perceel_id":              {"ID perceel", "perceel_id"},
	"naam_perceel":            {"Naam perceel", "naam_perceel"},
	"datum_gunning":           {"Datum gunning", "datum_gunning"},
	"datum_winnaar_gekozen":   {"Datum wanneer winnaar is gekozen", "datum_winnaar_gekozen"},
	"aantal_inschrijvingen":   {"Aantal inschrijvingen", "aantal_inschrijvingen"},
	"aantal_elektronisch":     {"Aantal elektronisch ingediende inschrijvingen", "aantal_elektronisch"},
	"gegunde_ondernemer":      {"Naam gegunde ondernemer", "gegunde_ondernemer"},
	"gegunde_adres":           {"Adres gegunde ondernemer", "gegunde_adres"},
	"gegunde_plaats":          {"Plaats gegunde ondernemer", "gegunde_plaats"},
	"gegunde_postcode":        {"Postcode gegunde ondernemer", "gegunde_postcode"},
	"gegunde_land":            {"Land gegunde ondernemer", "gegunde_land"},
	"gegunde_website":         {"Website gegunde ondernemer", "gegunde_website"},
	"geraamde_waarde":         {"Geraamde waarde", "geraamde_waarde"},
	"geraamde_btw_percentage": {"BTW-percentage geraamde waarde", "geraamde_btw_percentage"},
	"definitieve_waarde":      {"Definitieve waarde", "definitieve_waarde"},
	"definitieve_valuta":      {"Valuta definitieve waarde", "definitieve_valuta"},
}

func (im *Importer) importJSON(ctx context.Context, path string) (ImportStats, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ImportStats{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	records, err := decodeJSONRecords(data)
	if err != nil {
		return ImportStats{}, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	w := &batchWriter{im: im}
	for _, obj := range records {
		rec := record{}
		for field, keys := range jsonKeys {
			for _, k := range keys {
				if v, ok := obj[k]; ok && v != nil {
					rec[field] = strings.TrimSpace(jsonString(v))
					break
				}
			}
		}
		if err := w.add(ctx, rec); err != nil {
			return w.stats, err
		}
	}
	return w.stats, w.flush(ctx)
}

// decodeJSONRecords accepts a top-level array or an object holding "records" or "data".
func decodeJSONRecords(data []byte) ([]map[string]any, error) {
	var list []map[string]any
	if err := json.Unmarshal(data, &list); err == nil {
		return list, nil
	}

	var wrapper struct {
		Records []map[string]any `json:"records"`
		Data    []map[string]any `json:"data"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return nil, err
	}
	if wrapper.Records != nil {
		return wrapper.Records, nil
	}
	if wrapper.Data != nil {
		return wrapper.Data, nil
	}

	var single map[string]any
	if err := json.Unmarshal(data, &single); err != nil {
		return nil, err
	}
	return []map[string]any{single}, nil
}

func jsonString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

// record is one dataset row keyed by dataset field name.
type record map[string]string

func (r record) rows() (noticeRow, *lotRow) {
	desc := r["beschrijving"]
	cpv := r["cpv_codes"]
	n := noticeRow{
		PublicatieID:        r["publicatie_id"],
		TenderNedKenmerk:    r["tenderned_kenmerk"],
		Publicatiedatum:     normalizeDate(r["publicatiedatum"]),
		PublicatieSoort:     r["publicatie_soort"],
		AanbestedendeDienst: r["aanbestedende_dienst"],
		OfficieleNaam:       r["officiele_naam"],
		Beschrijving:        desc,
		TypeOpdracht:        r["type_opdracht"],
		ProcedureType:       r["procedure_type"],
		NationaalEuropees:   r["nationaal_europees"],
		CpvCodes:            cpv,
	}
	if IsICT(cpv, desc) {
		n.IsICT = 1
	}

	winner := r["gegunde_ondernemer"]
	awarded := normalizeDate(r["datum_gunning"])
	if winner == "" && awarded == "" {
		return n, nil
	}
	return n, &lotRow{
		PublicatieID:          n.PublicatieID,
		PerceelID:             r["perceel_id"],
		NaamPerceel:           r["naam_perceel"],
		DatumGunning:          awarded,
		DatumWinnaarGekozen:   normalizeDate(r["datum_winnaar_gekozen"]),
		AantalInschrijvingen:  parseInt(r["aantal_inschrijvingen"]),
		AantalElektronisch:    parseInt(r["aantal_elektronisch"]),
		GegundeOndernemer:     winner,
		GegundeAdres:          r["gegunde_adres"],
		GegundePlaats:         r["gegunde_plaats"],
		GegundePostcode:       r["gegunde_postcode"],
		GegundeLand:           r["gegunde_land"],
		GegundeWebsite:        r["gegunde_website"],
		GeraamdeWaarde:        parseAmount(r["geraamde_waarde"]),
		GeraamdeBTWPercentage: parseAmount(r["geraamde_btw_percentage"]),
		DefinitieveWaarde:     parseAmount(r["definitieve_waarde"]),
		DefinitieveValuta:     r["definitieve_valuta"],
	}
}

func parseAmount(s string) *float64 {
	s = strings.NewReplacer(",", ".", "€", "", " ", "").Replace(s)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

func parseInt(s string) *int {
	v := parseAmount(s)
	if v == nil {
		return nil
	}
	n := int(*v)
	return &n
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"02-01-2006",
	"2-1-2006",
	"02/01/2006",
	"2/1/2006",
}

// normalizeDate rewrites dataset dates to YYYY-MM-DD so they sort and compare
// as text. Excel serial day numbers are converted too; anything else is kept.
func normalizeDate(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02")
		}
	}
	if serial, err := strconv.ParseFloat(s, 64); err == nil && serial > 20000 && serial < 80000 {
		if t, err := excelize.ExcelDateToTime(serial, false); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return s
}
