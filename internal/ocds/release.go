// Package ocds maps Open Contracting Data Standard releases from the UK
// notice APIs into catalog contracts.
package ocds

import (
	"strings"
	"time"
)

// Date is a lenient OCDS timestamp. Both APIs mostly emit RFC 3339, but
// bare dates and fractional-second variants appear in older notices.
type Date struct {
	time.Time
}

var dateLayouts = []string{
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// UnmarshalJSON parses the timestamp, leaving the zero value for anything
// unparseable rather than failing the whole release.
func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			d.Time = t
			return nil
		}
	}
	return nil
}

// Ptr returns the parsed time, or nil when absent or unparseable.
func (d *Date) Ptr() *time.Time {
	if d == nil || d.IsZero() {
		return nil
	}
	t := d.Time
	return &t
}

// Money is an OCDS value object.
type Money struct {
	Amount   *float64 `json:"amount"`
	Currency string   `json:"currency"`
}

// Period is an OCDS period with optional bounds.
type Period struct {
	StartDate      *Date `json:"startDate"`
	EndDate        *Date `json:"endDate"`
	DurationInDays *int  `json:"durationInDays"`
}

// Classification carries a scheme-qualified code, typically CPV.
type Classification struct {
	Scheme      string `json:"scheme"`
	ID          string `json:"id"`
	Description string `json:"description"`
}

// Item is a tender line item.
type Item struct {
	ID             string          `json:"id"`
	Classification *Classification `json:"classification"`
}

// Document is a tender document reference.
type Document struct {
	ID            string `json:"id"`
	DocumentType  string `json:"documentType"`
	Title         string `json:"title"`
	Description   string `json:"description"`
	URL           string `json:"url"`
	Format        string `json:"format"`
	DatePublished *Date  `json:"datePublished"`
}

// CriterionNumber is a numeric figure attached to an award criterion.
type CriterionNumber struct {
	Number *float64 `json:"number"`
}

// Criterion is a single lot award criterion. Find a Tender stores weights in
// the description field ("30", "80%"), not in numbers.
type Criterion struct {
	Name        string            `json:"name"`
	Type        string            `json:"type"`
	Description string            `json:"description"`
	Numbers     []CriterionNumber `json:"numbers"`
}

// AwardCriteria wraps a lot's criteria list.
type AwardCriteria struct {
	Criteria []Criterion `json:"criteria"`
}

// Renewal describes a lot renewal option.
type Renewal struct {
	Description string `json:"description"`
}

// Lot is a tender lot.
type Lot struct {
	ID             string         `json:"id"`
	Title          string         `json:"title"`
	Description    string         `json:"description"`
	Status         string         `json:"status"`
	Value          *Money         `json:"value"`
	ContractPeriod *Period        `json:"contractPeriod"`
	Renewal        *Renewal       `json:"renewal"`
	AwardCriteria  *AwardCriteria `json:"awardCriteria"`
}

// Tender is the tender section of a release.
type Tender struct {
	ID                       string          `json:"id"`
	Title                    string          `json:"title"`
	Description              string          `json:"description"`
	Status                   string          `json:"status"`
	Value                    *Money          `json:"value"`
	MinValue                 *Money          `json:"minValue"`
	ProcurementMethod        string          `json:"procurementMethod"`
	ProcurementMethodDetails string          `json:"procurementMethodDetails"`
	MainProcurementCategory  string          `json:"mainProcurementCategory"`
	EligibilityCriteria      string          `json:"eligibilityCriteria"`
	TenderPeriod             *Period         `json:"tenderPeriod"`
	EnquiryPeriod            *Period         `json:"enquiryPeriod"`
	ContractPeriod           *Period         `json:"contractPeriod"`
	Classification           *Classification `json:"classification"`
	Items                    []Item          `json:"items"`
	Documents                []Document      `json:"documents"`
	Lots                     []Lot           `json:"lots"`
}

// Address is a party address.
type Address struct {
	Region      string `json:"region"`
	Locality    string `json:"locality"`
	CountryName string `json:"countryName"`
}

// ContactPoint is a party contact point.
type ContactPoint struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Telephone string `json:"telephone"`
}

// Party is an organisation referenced by the release.
type Party struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Roles        []string      `json:"roles"`
	Address      *Address      `json:"address"`
	ContactPoint *ContactPoint `json:"contactPoint"`
}

// OrgRef is a shorthand organisation reference.
type OrgRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Award is an award section entry.
type Award struct {
	ID             string   `json:"id"`
	Date           *Date    `json:"date"`
	Value          *Money   `json:"value"`
	Suppliers      []OrgRef `json:"suppliers"`
	ContractPeriod *Period  `json:"contractPeriod"`
}

// Release is a single OCDS release.
type Release struct {
	OCID    string   `json:"ocid"`
	ID      string   `json:"id"`
	Date    *Date    `json:"date"`
	Tag     []string `json:"tag"`
	Buyer   *OrgRef  `json:"buyer"`
	Parties []Party  `json:"parties"`
	Tender  *Tender  `json:"tender"`
	Awards  []Award  `json:"awards"`
}

// BuyerParty returns the first party holding the buyer role, matched
// case-insensitively.
func (r *Release) BuyerParty() *Party {
	for i := range r.Parties {
		for _, role := range r.Parties[i].Roles {
			if strings.EqualFold(role, "buyer") {
				return &r.Parties[i]
			}
		}
	}
	return nil
}
