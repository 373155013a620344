// Package model defines the domain types shared across the ingest and
// enrichment pipelines.
package model

import "time"

// Source identifies the external notice API a contract was ingested from.
type Source string

const (
	SourceFindATender     Source = "FIND_A_TENDER"
	SourceContractsFinder Source = "CONTRACTS_FINDER"
)

// ContractStatus is the lifecycle status of a procurement notice.
type ContractStatus string

const (
	StatusOpen      ContractStatus = "OPEN"
	StatusClosed    ContractStatus = "CLOSED"
	StatusAwarded   ContractStatus = "AWARDED"
	StatusCancelled ContractStatus = "CANCELLED"
)

// ContractStage is the procurement stage a notice belongs to.
type ContractStage string

const (
	StagePlanning ContractStage = "PLANNING"
	StageTender   ContractStage = "TENDER"
	StageAward    ContractStage = "AWARD"
)

// Mechanism is the procurement vehicle governing a contract.
type Mechanism string

const (
	MechanismStandard         Mechanism = "standard"
	MechanismDPS              Mechanism = "dps"
	MechanismFramework        Mechanism = "framework"
	MechanismCallOffDPS       Mechanism = "call_off_dps"
	MechanismCallOffFramework Mechanism = "call_off_framework"
)

// ContractDocument is a tender document attached to a notice.
type ContractDocument struct {
	ID           string `json:"id,omitempty"`
	DocumentType string `json:"document_type,omitempty"`
	Title        string `json:"title,omitempty"`
	Description  string `json:"description,omitempty"`
	URL          string `json:"url,omitempty"`
	Format       string `json:"format,omitempty"`
}

// AwardCriterion is a single lot award criterion with an optional weight.
type AwardCriterion struct {
	Name   string   `json:"name"`
	Type   string   `json:"type"`
	Weight *float64 `json:"weight,omitempty"`
}

// ContractLot is a subdivision of a contract.
type ContractLot struct {
	LotID              string           `json:"lot_id"`
	Title              string           `json:"title,omitempty"`
	Description        string           `json:"description,omitempty"`
	Value              *float64         `json:"value,omitempty"`
	Currency           string           `json:"currency,omitempty"`
	ContractPeriodDays *int             `json:"contract_period_days,omitempty"`
	HasRenewal         bool             `json:"has_renewal"`
	RenewalDescription string           `json:"renewal_description,omitempty"`
	Status             string           `json:"status,omitempty"`
	AwardCriteria      []AwardCriterion `json:"award_criteria,omitempty"`
}

// BuyerContact is the buyer's contact point from the notice.
type BuyerContact struct {
	Name      string `json:"name,omitempty"`
	Email     string `json:"email,omitempty"`
	Telephone string `json:"telephone,omitempty"`
}

// AwardedSupplier is a supplier named on an award notice.
type AwardedSupplier struct {
	Name       string `json:"name"`
	SupplierID string `json:"supplier_id,omitempty"`
}

// Contract is a procurement notice mapped into the catalog.
// (Source, NoticeID) uniquely identifies a contract; re-ingestion upserts.
type Contract struct {
	ID                int64              `json:"id"`
	OCID              string             `json:"ocid,omitempty"`
	NoticeID          string             `json:"notice_id"`
	Source            Source             `json:"source"`
	SourceURL         string             `json:"source_url,omitempty"`
	Title             string             `json:"title"`
	Description       string             `json:"description,omitempty"`
	Status            ContractStatus     `json:"status"`
	Stage             ContractStage      `json:"stage"`
	BuyerName         string             `json:"buyer_name"`
	BuyerOrgRef       string             `json:"buyer_org_ref,omitempty"`
	BuyerRegion       string             `json:"buyer_region,omitempty"`
	CPVCodes          []string           `json:"cpv_codes,omitempty"`
	Sector            string             `json:"sector,omitempty"`
	ValueMin          *float64           `json:"value_min,omitempty"`
	ValueMax          *float64           `json:"value_max,omitempty"`
	Currency          string             `json:"currency"`
	PublishedDate     *time.Time         `json:"published_date,omitempty"`
	DeadlineDate      *time.Time         `json:"deadline_date,omitempty"`
	ContractStartDate *time.Time         `json:"contract_start_date,omitempty"`
	ContractEndDate   *time.Time         `json:"contract_end_date,omitempty"`
	Mechanism         Mechanism          `json:"mechanism"`
	Method            string             `json:"method,omitempty"`
	MethodDetails     string             `json:"method_details,omitempty"`
	ContractType      string             `json:"contract_type,omitempty"`
	SuitableForSME    *bool              `json:"suitable_for_sme,omitempty"`
	SuitableForVCSE   *bool              `json:"suitable_for_vcse,omitempty"`
	HasEUFunding      bool               `json:"has_eu_funding"`
	CanRenew          bool               `json:"can_renew"`
	RenewalDetails    string             `json:"renewal_details,omitempty"`
	BuyerContact      *BuyerContact      `json:"buyer_contact,omitempty"`
	TenderPeriodStart *time.Time         `json:"tender_period_start,omitempty"`
	EnquiryPeriodEnd  *time.Time         `json:"enquiry_period_end,omitempty"`
	Documents         []ContractDocument `json:"documents,omitempty"`
	Lots              []ContractLot      `json:"lots,omitempty"`
	AwardedSuppliers  []AwardedSupplier  `json:"awarded_suppliers,omitempty"`
	AwardDate         *time.Time         `json:"award_date,omitempty"`
	AwardValue        *float64           `json:"award_value,omitempty"`
	Raw               []byte             `json:"-"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`
}

// Awarded reports whether the contract represents an award.
func (c *Contract) Awarded() bool {
	return c.Status == StatusAwarded || c.Stage == StageAward
}
