package session

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Kind tags which shape a CurrentUser has.
type Kind string

const (
	KindPatient  Kind = "user"
	KindPharmacy Kind = "pharmacy"
)

// CurrentUser is the logged in identity: either a *Patient or a *PharmacyStaff.
type CurrentUser interface {
	Kind() Kind
	GetID() int64
	GetEmail() string
	GetRole() string
	FullName() string
}

var _ CurrentUser = &Patient{}
var _ CurrentUser = &PharmacyStaff{}

// Patient is the base user of the portal.
type Patient struct {
	ID        int64    `json:"id"`
	Email     string   `json:"email"`
	FirstName string   `json:"firstName"`
	LastName  string   `json:"lastName"`
	Roles     []string `json:"roles,omitempty"`
	Role      string   `json:"role,omitempty"`
	ImageURL  string   `json:"imageUrl,omitempty"`
	CreatedAt string   `json:"createdAt,omitempty"`
	UserType  Kind     `json:"userType,omitempty"`
}

func (p *Patient) Kind() Kind { return KindPatient }
func (p *Patient) GetID() int64 { return p.ID }
func (p *Patient) GetEmail() string { return p.Email }
func (p *Patient) FullName() string { return joinName(p.FirstName, p.LastName) }
func (p *Patient) GetRole() string {
	if p.Role != "" {
		return p.Role
	}
	if len(p.Roles) > 0 {
		return p.Roles[0]
	}
	return ""
}

// PharmacySummary is the pharmacy embedded in some staff payloads.
type PharmacySummary struct {
	ID                 int64  `json:"id"`
	Name               string `json:"name,omitempty"`
	RegistrationNumber string `json:"registrationNumber,omitempty"`
	Address            string `json:"address,omitempty"`
	Phone              string `json:"phone,omitempty"`
	Email              string `json:"email,omitempty"`
	Website            string `json:"website,omitempty"`
	Active             bool   `json:"active,omitempty"`
}

// PharmacyStaff is a user associated with a pharmacy through a staff record.
type PharmacyStaff struct {
	ID         int64            `json:"id"`
	PharmacyID int64            `json:"pharmacyId,omitempty"`
	UserID     int64            `json:"userId,omitempty"`
	Role       string           `json:"role,omitempty"`
	Active     bool             `json:"active"`
	CreatedAt  string           `json:"createdAt,omitempty"`
	UpdatedAt  string           `json:"updatedAt,omitempty"`
	FirstName  string           `json:"firstName"`
	LastName   string           `json:"lastName"`
	Email      string           `json:"email"`
	Roles      []string         `json:"roles,omitempty"`
	Pharmacy   *PharmacySummary `json:"pharmacy,omitempty"`
	UserType   Kind             `json:"userType,omitempty"`
}

func (s *PharmacyStaff) Kind() Kind { return KindPharmacy }
func (s *PharmacyStaff) GetID() int64 { return s.ID }
func (s *PharmacyStaff) GetEmail() string { return s.Email }
func (s *PharmacyStaff) GetRole() string { return s.Role }
func (s *PharmacyStaff) FullName() string { return joinName(s.FirstName, s.LastName) }

// EnsurePharmacyID fills a missing PharmacyID from the embedded pharmacy
// or from fallback. It fails when neither carries an id.
func (s *PharmacyStaff) EnsurePharmacyID(fallback int64) error {
	if s.PharmacyID != 0 {
		return nil
	}
	if s.Pharmacy != nil && s.Pharmacy.ID != 0 {
		s.PharmacyID = s.Pharmacy.ID
		return nil
	}
	if fallback != 0 {
		s.PharmacyID = fallback
		return nil
	}
	return withDetails(ErrMissingPharmacyID, nil, map[string]any{"staff_id": s.ID})
}

// IsPharmacyStaff reports whether user is a pharmacy staff member.
func IsPharmacyStaff(user CurrentUser) bool {
	if isNilUser(user) {
		return false
	}
	return user.Kind() == KindPharmacy
}

// KindOf returns the kind of user, or "" for no user.
func KindOf(user CurrentUser) Kind {
	if isNilUser(user) {
		return ""
	}
	return user.Kind()
}

// DecodeUser decodes a JSON user object, classifying it once.
func DecodeUser(data []byte) (CurrentUser, error) {
	shape, err := decodeShape(data)
	if err != nil {
		return nil, err
	}
	return UserFromShape(shape, "")
}

// UserFromShape builds a typed user from a decoded object. A non empty hint
// comes from an explicit discriminant and wins over field sniffing.
func UserFromShape(shape map[string]any, hint Kind) (CurrentUser, error) {
	if shape == nil {
		return nil, withDetails(ErrUnparseableResponse, nil, map[string]any{"reason": "user is null"})
	}

	kind := hint
	if kind != KindPharmacy && kind != KindPatient {
		kind = Classify(shape)
	}

	raw, err := json.Marshal(shape)
	if err != nil {
		return nil, withDetails(ErrUnparseableResponse, err, nil)
	}

	switch kind {
	case KindPharmacy:
		staff := &PharmacyStaff{}
		if err := json.Unmarshal(raw, staff); err != nil {
			return nil, withDetails(ErrUnparseableResponse, err, map[string]any{"kind": kind})
		}
		staff.UserType = KindPharmacy
		return staff, nil
	default:
		patient := &Patient{}
		if err := json.Unmarshal(raw, patient); err != nil {
			return nil, withDetails(ErrUnparseableResponse, err, map[string]any{"kind": kind})
		}
		patient.UserType = KindPatient
		return patient, nil
	}
}

// EncodeUser serializes a user with its explicit userType marker.
func EncodeUser(user CurrentUser) ([]byte, error) {
	switch u := user.(type) {
	case *PharmacyStaff:
		if u == nil {
			return []byte("null"), nil
		}
		clone := *u
		clone.UserType = KindPharmacy
		return json.Marshal(&clone)
	case *Patient:
		if u == nil {
			return []byte("null"), nil
		}
		clone := *u
		clone.UserType = KindPatient
		return json.Marshal(&clone)
	case nil:
		return []byte("null"), nil
	default:
		return json.Marshal(user)
	}
}

func decodeShape(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var shape map[string]any
	if err := dec.Decode(&shape); err != nil {
		return nil, withDetails(ErrUnparseableResponse, err, nil)
	}
	if shape == nil {
		return nil, withDetails(ErrUnparseableResponse, nil, map[string]any{"reason": "user is null"})
	}
	return shape, nil
}

func isNilUser(user CurrentUser) bool {
	switch u := user.(type) {
	case nil:
		return true
	case *Patient:
		return u == nil
	case *PharmacyStaff:
		return u == nil
	}
	return false
}

func joinName(first, last string) string {
	return strings.TrimSpace(first + " " + last)
}
