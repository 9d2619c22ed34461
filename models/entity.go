package models

import "time"

// Source identifies one upstream registry.
type Source string

// Supported registry sources.
const (
	SourceOpenCorporates Source = "opencorporates"
	SourceNYOpenData     Source = "ny_opendata"
	SourceCOOpenData     Source = "co_opendata"
	SourceFLSunbiz       Source = "fl_sunbiz"
	SourceCABizfile      Source = "ca_bizfile"
	SourceDEICIS         Source = "de_icis"
)

// EntityStatus is the normalized lifecycle state of a registered entity.
type EntityStatus string

// The fixed status vocabulary. Every raw registry status maps to exactly one.
const (
	StatusActive    EntityStatus = "Active"
	StatusInactive  EntityStatus = "Inactive"
	StatusDissolved EntityStatus = "Dissolved"
	StatusSuspended EntityStatus = "Suspended"
	StatusForfeited EntityStatus = "Forfeited"
	StatusCancelled EntityStatus = "Cancelled"
	StatusConverted EntityStatus = "Converted"
	StatusMerged    EntityStatus = "Merged"
	StatusRevoked   EntityStatus = "Revoked"
	StatusPending   EntityStatus = "Pending"
)

// AllStatuses lists the vocabulary in display order.
var AllStatuses = []EntityStatus{
	StatusActive, StatusInactive, StatusDissolved, StatusSuspended, StatusForfeited,
	StatusCancelled, StatusConverted, StatusMerged, StatusRevoked, StatusPending,
}

// Live reports whether an entity with this status is still operating.
// Pending counts as live: the status is unverified, not known to be dead.
func (s EntityStatus) Live() bool {
	return s == StatusActive || s == StatusPending
}

// Valid reports whether s belongs to the fixed vocabulary.
func (s EntityStatus) Valid() bool {
	for _, v := range AllStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// ScrapedBusinessEntity is a company record normalized from any source.
type ScrapedBusinessEntity struct {
	Name              string           `json:"name"`
	EntityNumber      string           `json:"entity_number,omitempty"`
	Jurisdiction      string           `json:"jurisdiction"`
	Status            EntityStatus     `json:"status"`
	IncorporationDate *string          `json:"incorporation_date,omitempty"`
	EntityType        string           `json:"entity_type,omitempty"`
	RegisteredAddress string           `json:"registered_address,omitempty"`
	RegisteredAgent   string           `json:"registered_agent,omitempty"`
	Officers          []ScrapedOfficer `json:"officers,omitempty"`
	SourceURL         string           `json:"source_url"`
	Source            Source           `json:"source"`
	ScrapedAt         time.Time        `json:"scraped_at"`
}

// ScrapedOfficer is a person holding a position in a company.
type ScrapedOfficer struct {
	Name          string    `json:"name"`
	Position      string    `json:"position"`
	CompanyName   string    `json:"company_name"`
	CompanyNumber string    `json:"company_number,omitempty"`
	Jurisdiction  string    `json:"jurisdiction"`
	StartDate     *string   `json:"start_date,omitempty"`
	EndDate       *string   `json:"end_date,omitempty"`
	Current       bool      `json:"current"`
	SourceURL     string    `json:"source_url"`
	Source        Source    `json:"source"`
	ScrapedAt     time.Time `json:"scraped_at"`
}

// Record is the set of types a source pipeline can produce.
type Record interface {
	ScrapedBusinessEntity | ScrapedOfficer
	DisplayName() string
	Key() string
	Keep(q Query) bool
}

// DisplayName returns the name used for ranking against a query.
func (e ScrapedBusinessEntity) DisplayName() string { return e.Name }

// DisplayName returns the name used for ranking against a query.
func (o ScrapedOfficer) DisplayName() string { return o.Name }

// Key identifies an entity for de-duplication across result pages.
func (e ScrapedBusinessEntity) Key() string {
	if e.EntityNumber != "" {
		return e.Jurisdiction + "/" + e.EntityNumber
	}
	return e.Jurisdiction + "/" + e.Name
}

// Key identifies an officer appointment for de-duplication across result pages.
func (o ScrapedOfficer) Key() string {
	return o.Jurisdiction + "/" + o.CompanyNumber + "/" + o.CompanyName + "/" + o.Name + "/" + o.Position
}

// Keep applies the inactive-entity filter.
func (e ScrapedBusinessEntity) Keep(q Query) bool {
	return q.IncludeInactive || e.Status.Live()
}

// Keep applies the current-officer filter.
func (o ScrapedOfficer) Keep(q Query) bool {
	return !q.CurrentOnly || o.Current
}

// FinalizeCurrent enforces that an officer without an end date is current.
func (o *ScrapedOfficer) FinalizeCurrent() {
	if o.EndDate == nil || *o.EndDate == "" {
		o.EndDate = nil
		o.Current = true
	}
}
