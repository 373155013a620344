package ocds

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/tenderscope/intel-cli/internal/model"
)

// CPV 2-digit division -> sector mapping (EU standard vocabulary).
var cpvSectorMap = map[string]string{
	"03": "Agriculture & Forestry",
	"09": "Energy",
	"14": "Mining",
	"15": "Food & Beverages",
	"18": "Clothing & Textiles",
	"22": "Publishing & Printing",
	"24": "Chemicals",
	"30": "IT Equipment",
	"31": "Electrical Equipment",
	"32": "Telecoms",
	"33": "Medical Equipment",
	"34": "Transport Equipment",
	"35": "Security & Defence",
	"37": "Musical & Sports Equipment",
	"38": "Laboratory Equipment",
	"39": "Furniture",
	"41": "Water",
	"42": "Industrial Machinery",
	"43": "Mining Machinery",
	"44": "Construction Materials",
	"45": "Construction",
	"48": "Software",
	"50": "Repair & Maintenance",
	"51": "Installation",
	"55": "Hospitality",
	"60": "Transport",
	"63": "Transport Support",
	"64": "Postal & Telecom",
	"65": "Utilities",
	"66": "Financial Services",
	"70": "Real Estate",
	"71": "Architecture & Engineering",
	"72": "IT Services",
	"73": "R&D",
	"75": "Public Administration",
	"76": "Oil & Gas",
	"77": "Agriculture Services",
	"79": "Business Services",
	"80": "Education",
	"85": "Health & Social",
	"90": "Environmental Services",
	"92": "Recreation & Culture",
	"98": "Other Services",
}

// SectorFromCPV derives a human-readable sector name from the first two
// digits of a CPV code. Empty when the division is unknown.
func SectorFromCPV(cpvCode string) string {
	if len(cpvCode) < 2 {
		return ""
	}
	return cpvSectorMap[cpvCode[:2]]
}

func mapStatus(tenderStatus string) model.ContractStatus {
	switch strings.ToLower(tenderStatus) {
	case "active", "open":
		return model.StatusOpen
	case "closed", "complete":
		return model.StatusClosed
	case "cancelled":
		return model.StatusCancelled
	case "awarded":
		return model.StatusAwarded
	}
	return model.StatusOpen
}

func mapStage(tags []string) model.ContractStage {
	if len(tags) == 0 {
		return model.StageTender
	}
	joined := strings.ToLower(strings.Join(tags, ","))
	if strings.Contains(joined, "planning") {
		return model.StagePlanning
	}
	if strings.Contains(joined, "award") {
		return model.StageAward
	}
	return model.StageTender
}

func mapContractType(category string) string {
	switch strings.ToLower(category) {
	case "goods", "services", "works":
		return strings.ToLower(category)
	}
	return ""
}

var (
	reSMENegative = regexp.MustCompile(`(?i)\bnot\s+(suitable|eligible)\s+(for\s+)?sme`)
	reSMEPositive = regexp.MustCompile(`(?i)\bsme\b|small\s*(and|&)?\s*medium|small\s+business`)
	reVCSE        = regexp.MustCompile(`(?i)\bvcse\b|\bvco\b|voluntary|community\s+organisation|social\s+enterprise|charit(y|ies|able)`)
	reEUFunding   = regexp.MustCompile(`(?i)\beu\s+fund|\beuropean\s+fund|\bhorizon\b|\berasmus\b|\blife\s+programme\b|\besf\b|\berdf\b|\beu\s+grant`)
)

// detectSME returns tri-state SME suitability from eligibility criteria and
// description text. Negative phrasing wins over the bare acronym.
func detectSME(eligibility, description string) *bool {
	text := eligibility + " " + description
	if reSMENegative.MatchString(text) {
		f := false
		return &f
	}
	if reSMEPositive.MatchString(text) {
		t := true
		return &t
	}
	return nil
}

func detectVCSE(eligibility, description string) *bool {
	text := eligibility + " " + description
	if reVCSE.MatchString(text) {
		t := true
		return &t
	}
	return nil
}

// criterionWeight resolves a criterion weight. Find a Tender stores weights
// in the description field ("30", "80%"), not in numbers.
func criterionWeight(c Criterion) *float64 {
	if len(c.Numbers) > 0 && c.Numbers[0].Number != nil {
		return c.Numbers[0].Number
	}
	if c.Description != "" {
		raw := strings.TrimSuffix(strings.TrimSpace(c.Description), "%")
		if w, err := strconv.ParseFloat(raw, 64); err == nil && !math.IsInf(w, 0) && !math.IsNaN(w) {
			return &w
		}
	}
	return nil
}

func mapDocuments(t *Tender) []model.ContractDocument {
	if t == nil || len(t.Documents) == 0 {
		return nil
	}
	docs := make([]model.ContractDocument, 0, len(t.Documents))
	for _, d := range t.Documents {
		docs = append(docs, model.ContractDocument{
			ID:           d.ID,
			DocumentType: d.DocumentType,
			Title:        d.Title,
			Description:  d.Description,
			URL:          d.URL,
			Format:       d.Format,
		})
	}
	return docs
}

func mapLots(t *Tender) []model.ContractLot {
	if t == nil || len(t.Lots) == 0 {
		return nil
	}
	lots := make([]model.ContractLot, 0, len(t.Lots))
	for _, lot := range t.Lots {
		mapped := model.ContractLot{
			LotID:       lot.ID,
			Title:       lot.Title,
			Description: lot.Description,
			Status:      lot.Status,
			Currency:    "GBP",
		}
		if lot.Value != nil {
			mapped.Value = lot.Value.Amount
			if lot.Value.Currency != "" {
				mapped.Currency = lot.Value.Currency
			}
		}
		if lot.ContractPeriod != nil {
			mapped.ContractPeriodDays = lot.ContractPeriod.DurationInDays
		}
		if lot.Renewal != nil && lot.Renewal.Description != "" {
			mapped.HasRenewal = true
			mapped.RenewalDescription = lot.Renewal.Description
		}
		if lot.AwardCriteria != nil {
			for _, c := range lot.AwardCriteria.Criteria {
				name := c.Name
				if name == "" {
					name = c.Type
				}
				if name == "" {
					name = "Unknown"
				}
				ctype := c.Type
				if ctype == "" {
					ctype = "unknown"
				}
				mapped.AwardCriteria = append(mapped.AwardCriteria, model.AwardCriterion{
					Name:   name,
					Type:   ctype,
					Weight: criterionWeight(c),
				})
			}
		}
		lots = append(lots, mapped)
	}
	return lots
}

func mapAwardedSuppliers(awards []Award) []model.AwardedSupplier {
	var suppliers []model.AwardedSupplier
	for _, award := range awards {
		for _, s := range award.Suppliers {
			if s.Name != "" {
				suppliers = append(suppliers, model.AwardedSupplier{
					Name:       s.Name,
					SupplierID: s.ID,
				})
			}
		}
	}
	return suppliers
}

// collectCPVCodes gathers CPV codes from line items plus the top-level
// tender classification, top-level first, without duplicates.
func collectCPVCodes(t *Tender) []string {
	if t == nil {
		return nil
	}
	var codes []string
	for _, item := range t.Items {
		if item.Classification != nil && item.Classification.ID != "" {
			codes = append(codes, item.Classification.ID)
		}
	}
	if t.Classification != nil && t.Classification.ID != "" {
		top := t.Classification.ID
		found := false
		for _, c := range codes {
			if c == top {
				found = true
				break
			}
		}
		if !found {
			codes = append([]string{top}, codes...)
		}
	}
	return codes
}

func noticeURL(source model.Source, noticeID string) string {
	if source == model.SourceFindATender {
		return fmt.Sprintf("https://www.find-tender.service.gov.uk/Notice/%s", noticeID)
	}
	return fmt.Sprintf("https://www.contractsfinder.service.gov.uk/Notice/%s", noticeID)
}

// MapRelease maps an OCDS release into a catalog contract. Every field falls
// back safely when absent; the function never fails on missing sections.
func MapRelease(release *Release, source model.Source) model.Contract {
	tender := release.Tender
	buyerParty := release.BuyerParty()

	title := "Untitled"
	description := ""
	methodDetails := ""
	method := ""
	status := ""
	eligibility := ""
	currency := "GBP"
	var valueMin, valueMax *float64
	var deadline, tenderStart, enquiryEnd *Date
	if tender != nil {
		if tender.Title != "" {
			title = tender.Title
		}
		description = tender.Description
		methodDetails = tender.ProcurementMethodDetails
		method = tender.ProcurementMethod
		status = tender.Status
		eligibility = tender.EligibilityCriteria
		if tender.Value != nil {
			valueMax = tender.Value.Amount
			valueMin = tender.Value.Amount
			if tender.Value.Currency != "" {
				currency = tender.Value.Currency
			}
		}
		if tender.MinValue != nil && tender.MinValue.Amount != nil {
			valueMin = tender.MinValue.Amount
		}
		if tender.TenderPeriod != nil {
			deadline = tender.TenderPeriod.EndDate
			tenderStart = tender.TenderPeriod.StartDate
		}
		if tender.EnquiryPeriod != nil {
			enquiryEnd = tender.EnquiryPeriod.EndDate
		}
	}

	buyerName := "Unknown"
	buyerOrgRef := ""
	buyerRegion := ""
	var buyerContact *model.BuyerContact
	if buyerParty != nil {
		if buyerParty.Name != "" {
			buyerName = buyerParty.Name
		}
		buyerOrgRef = buyerParty.ID
		if buyerParty.Address != nil {
			buyerRegion = buyerParty.Address.Region
		}
		if cp := buyerParty.ContactPoint; cp != nil && (cp.Name != "" || cp.Email != "" || cp.Telephone != "") {
			buyerContact = &model.BuyerContact{
				Name:      cp.Name,
				Email:     cp.Email,
				Telephone: cp.Telephone,
			}
		}
	}
	if buyerName == "Unknown" && release.Buyer != nil && release.Buyer.Name != "" {
		buyerName = release.Buyer.Name
	}
	if buyerOrgRef == "" && release.Buyer != nil {
		buyerOrgRef = release.Buyer.ID
	}

	cpvCodes := collectCPVCodes(tender)
	sector := ""
	if len(cpvCodes) > 0 {
		sector = SectorFromCPV(cpvCodes[0])
	}

	lots := mapLots(tender)
	canRenew := false
	renewalDetails := ""
	for _, lot := range lots {
		if lot.HasRenewal {
			canRenew = true
			renewalDetails = lot.RenewalDescription
			break
		}
	}

	// Contract period: award over tender priority.
	var startDate, endDate *Date
	if len(release.Awards) > 0 && release.Awards[0].ContractPeriod != nil {
		startDate = release.Awards[0].ContractPeriod.StartDate
		endDate = release.Awards[0].ContractPeriod.EndDate
	}
	if tender != nil && tender.ContractPeriod != nil {
		if startDate == nil {
			startDate = tender.ContractPeriod.StartDate
		}
		if endDate == nil {
			endDate = tender.ContractPeriod.EndDate
		}
	}

	var awardDate *Date
	var awardValue *float64
	if len(release.Awards) > 0 {
		awardDate = release.Awards[0].Date
		if release.Awards[0].Value != nil {
			awardValue = release.Awards[0].Value.Amount
		}
	}

	raw, _ := json.Marshal(release)

	contractType := ""
	if tender != nil {
		contractType = mapContractType(tender.MainProcurementCategory)
	}

	return model.Contract{
		OCID:              release.OCID,
		NoticeID:          release.ID,
		Source:            source,
		SourceURL:         noticeURL(source, release.ID),
		Title:             title,
		Description:       description,
		Status:            mapStatus(status),
		Stage:             mapStage(release.Tag),
		BuyerName:         buyerName,
		BuyerOrgRef:       buyerOrgRef,
		BuyerRegion:       buyerRegion,
		CPVCodes:          cpvCodes,
		Sector:            sector,
		ValueMin:          valueMin,
		ValueMax:          valueMax,
		Currency:          currency,
		PublishedDate:     release.Date.Ptr(),
		DeadlineDate:      deadline.Ptr(),
		ContractStartDate: startDate.Ptr(),
		ContractEndDate:   endDate.Ptr(),
		Mechanism:         ClassifyMechanism(methodDetails, title),
		Method:            method,
		MethodDetails:     methodDetails,
		ContractType:      contractType,
		SuitableForSME:    detectSME(eligibility, description),
		SuitableForVCSE:   detectVCSE(eligibility, description),
		HasEUFunding:      reEUFunding.MatchString(description),
		CanRenew:          canRenew,
		RenewalDetails:    renewalDetails,
		BuyerContact:      buyerContact,
		TenderPeriodStart: tenderStart.Ptr(),
		EnquiryPeriodEnd:  enquiryEnd.Ptr(),
		Documents:         mapDocuments(tender),
		Lots:              lots,
		AwardedSuppliers:  mapAwardedSuppliers(release.Awards),
		AwardDate:         awardDate.Ptr(),
		AwardValue:        awardValue,
		Raw:               raw,
	}
}
