package model

import (
	"strings"
	"time"
)

// Buyer is an organisation derived from contract buyer fields and
// progressively enriched. NameLower is the dedup key: unique, deterministic,
// independent of any fuzzy heuristic.
type Buyer struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	NameLower     string `json:"name_lower"`
	OrgRef        string `json:"org_ref,omitempty"`
	Sector        string `json:"sector,omitempty"`
	Region        string `json:"region,omitempty"`
	ContractCount int64  `json:"contract_count"`

	// Enrichment fields. Additive only: stages conditionally set them and
	// never destroy values written by an earlier pass.
	OrgType            string     `json:"org_type,omitempty"`
	DataSourceID       *int64     `json:"data_source_id,omitempty"`
	Website            string     `json:"website,omitempty"`
	LogoURL            string     `json:"logo_url,omitempty"`
	LinkedInURL        string     `json:"linkedin_url,omitempty"`
	Description        string     `json:"description,omitempty"`
	GovernanceURL      string     `json:"governance_url,omitempty"`
	GovernancePlatform string     `json:"governance_platform,omitempty"`
	BoardPapersURL     string     `json:"board_papers_url,omitempty"`
	StaffCount         *int       `json:"staff_count,omitempty"`
	AnnualBudget       *float64   `json:"annual_budget,omitempty"`
	EnrichmentScore    int        `json:"enrichment_score"`
	EnrichmentVersion  int        `json:"enrichment_version"`
	EnrichmentSources  []string   `json:"enrichment_sources,omitempty"`
	EnrichmentPriority int        `json:"enrichment_priority"`
	LastEnrichedAt     *time.Time `json:"last_enriched_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BuyerStats carries the per-buyer counts feeding the graduated part of the
// completeness score.
type BuyerStats struct {
	Personnel int
	Documents int
}

// NormalizeBuyerName produces the canonical dedup key for a buyer name.
func NormalizeBuyerName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// DataSource is a curated registry entry for a known public-sector
// organisation. Read-only input to buyer classification.
type DataSource struct {
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	OrgType        string `json:"org_type"`
	GovernanceURL  string `json:"governance_url,omitempty"`
	Platform       string `json:"platform,omitempty"`
	BoardPapersURL string `json:"board_papers_url,omitempty"`
	Website        string `json:"website,omitempty"`
}
