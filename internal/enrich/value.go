package enrich

import (
	"fmt"
	"math"

	"github.com/david/tender-finder/internal/models"
)

// EU publication thresholds for decentralised authorities, 2024-2025.
const (
	euThresholdServices int64 = 221_000
	euThresholdWorks    int64 = 5_538_000

	// euWidenFactor is applied to the floor when it exceeds the table maximum.
	euWidenFactor = 3
)

type valueRange struct{ Min, Max int64 }

type valueRow struct {
	Infrastructure valueRange
	Application    valueRange
	General        valueRange
}

func flatRow(lo, hi int64) valueRow {
	r := valueRange{lo, hi}
	return valueRow{r, r, r}
}

var valueTable = map[models.ClientType]valueRow{
	models.ClientMunicipality: {
		Infrastructure: valueRange{200_000, 1_000_000},
		Application:    valueRange{100_000, 500_000},
		General:        valueRange{100_000, 750_000},
	},
	models.ClientJointAuthority:       flatRow(300_000, 2_000_000),
	models.ClientCentralGovernment:    flatRow(500_000, 5_000_000),
	models.ClientCentralGovCritical:   flatRow(500_000, 5_000_000),
	models.ClientIndependentAdminBody: flatRow(500_000, 5_000_000),
	models.ClientHealthcare:           flatRow(100_000, 500_000),
	models.ClientEducation:            flatRow(50_000, 300_000),
	models.ClientPublicSocialEmployer: flatRow(100_000, 500_000),
	models.ClientProvince:             flatRow(200_000, 1_500_000),
	models.ClientWaterAuthority:       flatRow(200_000, 1_500_000),
}

// EstimateValue returns the official value when the registry states one and
// otherwise a range from client type and segment category.
func EstimateValue(raw models.RawTender, client models.ClientType, segments []string) models.ValueEstimate {
	// Values outside int64 are treated as unparseable.
	if raw.EstimatedValue != nil && *raw.EstimatedValue > 0 && *raw.EstimatedValue < math.MaxInt64 {
		v := int64(math.Round(*raw.EstimatedValue))
		return models.ValueEstimate{
			Min:        &v,
			Max:        &v,
			Confidence: models.ValueExact,
			Display:    FormatAmount(v),
		}
	}

	var cats []segmentCategory
	seen := map[segmentCategory]bool{}
	for _, s := range RealSegments(segments) {
		cat, ok := segmentCategoryOf(s)
		if !ok || seen[cat] {
			continue
		}
		seen[cat] = true
		cats = append(cats, cat)
	}
	segmentMatched := len(cats) > 0

	row, known := valueTable[client]
	if !known {
		return floorOnlyValue(raw, segmentMatched)
	}

	var ranges []valueRange
	for _, cat := range cats {
		if cat == categoryApplication {
			ranges = append(ranges, row.Application)
		} else {
			ranges = append(ranges, row.Infrastructure)
		}
	}
	if !segmentMatched {
		ranges = append(ranges, row.General)
	}

	r := ranges[0]
	for _, o := range ranges[1:] {
		if o.Min < r.Min {
			r.Min = o.Min
		}
		if o.Max > r.Max {
			r.Max = o.Max
		}
	}

	if raw.European {
		floor := euFloor(raw)
		if r.Min < floor {
			r.Min = floor
		}
		if r.Min > r.Max {
			r.Max = floor * euWidenFactor
		}
	}

	lo, hi := r.Min, r.Max
	return models.ValueEstimate{
		Min:        &lo,
		Max:        &hi,
		Confidence: valueConfidence(raw.European, segmentMatched),
		Display:    FormatAmount(lo) + "-" + FormatAmount(hi),
	}
}

// floorOnlyValue covers clients without a table row: EU tenders get the
// threshold as an open-ended minimum, everything else stays unbounded.
func floorOnlyValue(raw models.RawTender, segmentMatched bool) models.ValueEstimate {
	v := models.ValueEstimate{Confidence: valueConfidence(raw.European, segmentMatched), Display: "?"}
	if raw.European {
		floor := euFloor(raw)
		v.Min = &floor
		v.Display = "≥" + FormatAmount(floor)
	}
	return v
}

func euFloor(raw models.RawTender) int64 {
	if raw.ContractTypeCode == models.ContractWorks {
		return euThresholdWorks
	}
	return euThresholdServices
}

func valueConfidence(european, segmentMatched bool) models.ValueConfidence {
	switch {
	case european && segmentMatched:
		return models.ValueHigh
	case segmentMatched:
		return models.ValueMedium
	}
	return models.ValueLow
}

// FormatAmount renders euros compactly: €1.5M, €250K, €900.
func FormatAmount(v int64) string {
	switch {
	case v >= 1_000_000:
		return fmt.Sprintf("€%.1fM", float64(v)/1_000_000)
	case v >= 1_000:
		return fmt.Sprintf("€%dK", v/1_000)
	}
	return fmt.Sprintf("€%d", v)
}
