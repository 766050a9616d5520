package models

import (
	"time"
)

// Contract type codes as published by TenderNed.
const (
	ContractServices = "D"
	ContractSupplies = "L"
	ContractWorks    = "W"
)

type CpvEntry struct {
	Code        string `json:"code"`
	Description string `json:"description,omitempty"`
}

// RawTender is one registry record as supplied by the fetch layer.
type RawTender struct {
	PublicationID    string     `json:"publication_id"`
	Title            string     `json:"title"`
	Description      string     `json:"description"`
	ClientName       string     `json:"client_name"`
	ContractTypeCode string     `json:"contract_type_code"`
	ContractType     string     `json:"contract_type"`
	Procedure        string     `json:"procedure"`
	PublicationType  string     `json:"publication_type"`
	European         bool       `json:"european"`
	Digital          bool       `json:"digital"`
	ClosingAt        *time.Time `json:"closing_at"`
	DaysToClose      *int       `json:"days_to_close"`
	PublishedAt      *time.Time `json:"published_at"`
	CpvCodes         []CpvEntry `json:"cpv_codes"`
	EstimatedValue   *float64   `json:"estimated_value"`
	TSenderURL       string     `json:"tsender_url,omitempty"`
	DetailURL        string     `json:"detail_url,omitempty"`
	DescriptionHTML  string     `json:"description_html,omitempty"`
	DetailFetched    bool       `json:"detail_fetched"`
}

type RelevanceTier string

const (
	RelevanceHigh   RelevanceTier = "hoog"
	RelevanceMedium RelevanceTier = "midden"
	RelevanceLow    RelevanceTier = "laag"
)

type Relevance struct {
	Score            int           `json:"score"`
	Tier             RelevanceTier `json:"tier"`
	MatchedKeywords  []string      `json:"matched_keywords"`
	NegativeKeywords []string      `json:"negative_keywords"`
	CpvBonus         int           `json:"cpv_bonus"`
}

type ClientType string

const (
	ClientMunicipality         ClientType = "MUNICIPALITY"
	ClientProvince             ClientType = "PROVINCE"
	ClientWaterAuthority       ClientType = "WATER_AUTHORITY"
	ClientJointAuthority       ClientType = "JOINT_AUTHORITY"
	ClientCentralGovernment    ClientType = "CENTRAL_GOVERNMENT"
	ClientCentralGovCritical   ClientType = "CENTRAL_GOVERNMENT_CRITICAL"
	ClientIndependentAdminBody ClientType = "INDEPENDENT_ADMIN_BODY"
	ClientHealthcare           ClientType = "HEALTHCARE"
	ClientEducation            ClientType = "EDUCATION"
	ClientPublicSocialEmployer ClientType = "PUBLIC_SOCIAL_EMPLOYER"
	ClientOther                ClientType = "OTHER"
)

// RequirementLevel orders expected certifications: mandatory > likely > common > possible.
type RequirementLevel string

const (
	LevelMandatory RequirementLevel = "mandatory"
	LevelLikely    RequirementLevel = "likely"
	LevelCommon    RequirementLevel = "common"
	LevelPossible  RequirementLevel = "possible"
)

// Rank returns a comparable weight; unknown levels rank below possible.
func (l RequirementLevel) Rank() int {
	switch l {
	case LevelMandatory:
		return 4
	case LevelLikely:
		return 3
	case LevelCommon:
		return 2
	case LevelPossible:
		return 1
	}
	return 0
}

type CertCategory string

const (
	CertSecurity CertCategory = "security"
	CertQuality  CertCategory = "quality"
	CertSocial   CertCategory = "social"
	CertOther    CertCategory = "other"
)

type Certification struct {
	Name     string       `json:"name"`
	Category CertCategory `json:"category"`
	Implied  bool         `json:"implied"`
}

type ValueConfidence string

const (
	ValueExact  ValueConfidence = "exact"
	ValueHigh   ValueConfidence = "high"
	ValueMedium ValueConfidence = "medium"
	ValueLow    ValueConfidence = "low"
)

type ValueEstimate struct {
	Min        *int64          `json:"min"`
	Max        *int64          `json:"max"`
	Confidence ValueConfidence `json:"confidence"`
	Display    string          `json:"display"`
}

type MSPTier string

const (
	MSPRelevant         MSPTier = "relevant"
	MSPPossiblyRelevant MSPTier = "possibly_relevant"
	MSPNot              MSPTier = "not_msp"
)

type MSPFit struct {
	Score int     `json:"score"`
	Tier  MSPTier `json:"tier"`
}

type SignalKind string

const (
	SignalDisproportionate SignalKind = "disproportionate"
	SignalNotable          SignalKind = "notable"
	SignalOpportunity      SignalKind = "opportunity"
)

type Signal struct {
	Kind   SignalKind `json:"kind"`
	Icon   string     `json:"icon"`
	Label  string     `json:"label"`
	Detail string     `json:"detail"`
}

// Enrichment is the derived bundle for one tender.
type Enrichment struct {
	Relevance              Relevance                   `json:"relevance"`
	Segments               []string                    `json:"segments"`
	ClientType             ClientType                  `json:"client_type"`
	ExpectedCertifications map[string]RequirementLevel `json:"expected_certifications"`
	ExplicitCertifications []Certification             `json:"explicit_certifications"`
	ImpliedCertifications  []Certification             `json:"implied_certifications"`
	Value                  ValueEstimate               `json:"value_estimate"`
	MSPFit                 MSPFit                      `json:"msp_fit"`
	Signals                []Signal                    `json:"signals"`
}

// TenderSummary is the API-facing view: raw fields, enrichment and award history.
type TenderSummary struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	Client          string     `json:"client"`
	PublishedAt     *time.Time `json:"published_at"`
	PublicationType string     `json:"publication_type"`
	ContractType    string     `json:"contract_type"`
	ContractCode    string     `json:"contract_code"`
	Procedure       string     `json:"procedure"`
	ClosingAt       *time.Time `json:"closing_at"`
	DaysToClose     *int       `json:"days_to_close"`
	European        bool       `json:"european"`
	Digital         bool       `json:"digital"`
	Description     string     `json:"description"`
	TenderNedURL    string     `json:"tenderned_url"`
	TSenderURL      string     `json:"tsender_url,omitempty"`
	History         []Award    `json:"award_history"`
	Enrichment
}
