package chambermaster

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/GarretWalker/marketplace-management/internal/db/models"
	"github.com/GarretWalker/marketplace-management/internal/telemetry"
)

// Status is a ChamberMaster membership status code.
type Status int

const (
	StatusProspective Status = 1
	StatusActive      Status = 2
	StatusCourtesy    Status = 4
	StatusNonMember   Status = 8
	StatusInactive    Status = 16
	StatusDeleted     Status = 32
)

// Known reports whether s is one of the six documented codes.
func (s Status) Known() bool {
	switch s {
	case StatusProspective, StatusActive, StatusCourtesy, StatusNonMember, StatusInactive, StatusDeleted:
		return true
	}
	return false
}

// Membership maps a directory status code to the local tri-state status.
// Inactive and Deleted are inactive, Prospective is prospective, anything else is active.
func (s Status) Membership() models.MembershipStatus {
	switch s {
	case StatusInactive, StatusDeleted:
		return models.MembershipInactive
	case StatusProspective:
		return models.MembershipProspective
	default:
		return models.MembershipActive
	}
}

// MemberID is the directory identifier. The API has served it both as a JSON
// number and as a string, so both decode.
type MemberID string

// UnmarshalJSON accepts "123" and 123. null decodes to the empty id.
func (id *MemberID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = MemberID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("member id: %w", err)
	}
	if _, err := strconv.ParseInt(n.String(), 10, 64); err != nil {
		return fmt.Errorf("member id %q is not an integer", n.String())
	}
	*id = MemberID(n.String())
	return nil
}

// Member is one directory record in either of its two wire shapes.
// The only implementations are ListMember and DetailedMember.
type Member interface {
	listFields() ListMember
}

// ListMember is the shape returned by the members list endpoint.
type ListMember struct {
	ID          MemberID `json:"Id"`
	Name        string   `json:"Name"`
	DisplayName string   `json:"DisplayName,omitempty"`
	Email       string   `json:"Email,omitempty"`
	Status      Status   `json:"Status"`
	StatusText  string   `json:"StatusText,omitempty"`
}

func (m ListMember) listFields() ListMember { return m }

// Category is one directory business category.
type Category struct {
	ID   int    `json:"Id"`
	Name string `json:"Name"`
}

// DetailedMember is the shape returned by the members details endpoint.
type DetailedMember struct {
	ListMember
	Phone               string     `json:"Phone,omitempty"`
	Address1            string     `json:"Address1,omitempty"`
	Address2            string     `json:"Address2,omitempty"`
	City                string     `json:"City,omitempty"`
	State               string     `json:"State,omitempty"`
	Zip                 string     `json:"Zip,omitempty"`
	Country             string     `json:"Country,omitempty"`
	Website             string     `json:"Website,omitempty"`
	Description         string     `json:"Description,omitempty"`
	Categories          []Category `json:"Categories,omitempty"`
	PrimaryContact      string     `json:"PrimaryContact,omitempty"`
	PrimaryContactEmail string     `json:"PrimaryContactEmail,omitempty"`
	PrimaryContactPhone string     `json:"PrimaryContactPhone,omitempty"`
}

// MappedMember is the normalized projection of a directory record.
type MappedMember struct {
	ExternalID   string
	BusinessName string
	ContactName  *string
	Email        *string
	Phone        *string
	AddressLine1 *string
	AddressLine2 *string
	City         *string
	State        *string
	Zip          *string
	WebsiteURL   *string
	Description  *string
	Category     *string
	StatusCode   Status
	Status       models.MembershipStatus
}

func optional(values ...string) *string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return &v
		}
	}
	return nil
}

// Normalize maps either member shape onto MappedMember.
func Normalize(m Member) MappedMember {
	base := m.listFields()

	name := strings.TrimSpace(base.DisplayName)
	if name == "" {
		name = strings.TrimSpace(base.Name)
	}

	if !base.Status.Known() {
		code := strconv.Itoa(int(base.Status))
		slog.Warn("unknown directory status code, treating as active",
			"cm_member_id", string(base.ID), "status_code", code)
		telemetry.DirectoryUnknownStatusTotal.WithLabelValues(code).Inc()
	}

	mapped := MappedMember{
		ExternalID:   string(base.ID),
		BusinessName: name,
		Email:        optional(base.Email),
		StatusCode:   base.Status,
		Status:       base.Status.Membership(),
	}

	if d, ok := m.(DetailedMember); ok {
		mapped.ContactName = optional(d.PrimaryContact)
		mapped.Email = optional(d.Email, d.PrimaryContactEmail)
		mapped.Phone = optional(d.Phone, d.PrimaryContactPhone)
		mapped.AddressLine1 = optional(d.Address1)
		mapped.AddressLine2 = optional(d.Address2)
		mapped.City = optional(d.City)
		mapped.State = optional(d.State)
		mapped.Zip = optional(d.Zip)
		mapped.WebsiteURL = optional(d.Website)
		mapped.Description = optional(d.Description)
		if len(d.Categories) > 0 {
			mapped.Category = optional(d.Categories[0].Name)
		}
	}

	return mapped
}
