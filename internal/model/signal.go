package model

import "time"

// ExtractionStatus tracks text extraction / signal extraction progress on a
// board document.
type ExtractionStatus string

const (
	ExtractionPending   ExtractionStatus = "pending"
	ExtractionExtracted ExtractionStatus = "extracted"
	ExtractionProcessed ExtractionStatus = "processed"
	ExtractionFailed    ExtractionStatus = "failed"
)

// BoardDocument is a discovered governance document (minutes, agenda,
// report) for a buyer. Created by governance discovery; consumed and
// status-flipped by signal extraction.
type BoardDocument struct {
	ID               int64            `json:"id"`
	BuyerID          int64            `json:"buyer_id"`
	Title            string           `json:"title"`
	Committee        string           `json:"committee,omitempty"`
	MeetingDate      *time.Time       `json:"meeting_date,omitempty"`
	SourceURL        string           `json:"source_url"`
	TextContent      string           `json:"text_content,omitempty"`
	ExtractionStatus ExtractionStatus `json:"extraction_status"`
	SignalStatus     ExtractionStatus `json:"signal_status"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// SignalType is the closed taxonomy of buying-intelligence signals.
type SignalType string

const (
	SignalProcurement SignalType = "PROCUREMENT"
	SignalStaffing    SignalType = "STAFFING"
	SignalStrategy    SignalType = "STRATEGY"
	SignalFinancial   SignalType = "FINANCIAL"
	SignalProjects    SignalType = "PROJECTS"
	SignalRegulatory  SignalType = "REGULATORY"
)

// SignalEntities holds named entities mentioned by a signal.
type SignalEntities struct {
	Companies []string `json:"companies"`
	Amounts   []string `json:"amounts"`
	Dates     []string `json:"dates"`
	People    []string `json:"people"`
}

// Signal is an extracted buying-intelligence item. Uniqueness is enforced on
// (BuyerID, BoardDocumentID, SignalType, Title); cross-document duplicates
// within a buyer are resolved by the dedup stage.
type Signal struct {
	ID              int64          `json:"id"`
	BuyerID         int64          `json:"buyer_id"`
	BoardDocumentID int64          `json:"board_document_id"`
	SignalType      SignalType     `json:"signal_type"`
	Title           string         `json:"title"`
	Insight         string         `json:"insight"`
	Confidence      float64        `json:"confidence"`
	Quote           string         `json:"quote,omitempty"`
	Entities        SignalEntities `json:"entities"`
	SourceURL       string         `json:"source_url,omitempty"`
	SourceDate      *time.Time     `json:"source_date,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}
