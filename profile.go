package session

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/nyaruka/phonenumbers"
)

const defaultPhoneRegion = "US"

var bloodTypes = []any{"A+", "A-", "B+", "B-", "AB+", "AB-", "O+", "O-"}

// EmergencyContact is who to call on behalf of a patient.
type EmergencyContact struct {
	Name         string `json:"name"`
	Relationship string `json:"relationship"`
	Phone        string `json:"phone"`
}

// Profile is the extended patient profile kept under the userProfile key.
type Profile struct {
	ID               int64            `json:"id"`
	FirstName        string           `json:"firstName"`
	LastName         string           `json:"lastName"`
	Email            string           `json:"email"`
	Role             string           `json:"role,omitempty"`
	ImageURL         string           `json:"imageUrl,omitempty"`
	Phone            string           `json:"phone,omitempty"`
	DateOfBirth      string           `json:"dateOfBirth,omitempty"`
	Address          string           `json:"address,omitempty"`
	BloodType        string           `json:"bloodType,omitempty"`
	Allergies        []string         `json:"allergies"`
	EmergencyContact EmergencyContact `json:"emergencyContact"`
}

// ProfileFromUser seeds a profile with the identity fields of user.
func ProfileFromUser(user CurrentUser) *Profile {
	p := &Profile{Allergies: []string{}}
	if isNilUser(user) {
		return p
	}
	p.ID = user.GetID()
	p.Email = user.GetEmail()
	p.Role = user.GetRole()
	switch u := user.(type) {
	case *Patient:
		p.FirstName, p.LastName, p.ImageURL = u.FirstName, u.LastName, u.ImageURL
	case *PharmacyStaff:
		p.FirstName, p.LastName = u.FirstName, u.LastName
	}
	return p
}

// Validate checks the profile fields that have values.
func (p Profile) Validate() error {
	return p.ValidateIn(defaultPhoneRegion)
}

// ValidateIn is Validate with local phone numbers parsed in region.
func (p Profile) ValidateIn(region string) error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.FirstName, validation.Length(0, 200)),
		validation.Field(&p.LastName, validation.Length(0, 200)),
		validation.Field(&p.Email, is.Email),
		validation.Field(&p.Phone, validation.By(phoneRule(region))),
		validation.Field(&p.DateOfBirth, validation.Date("2006-01-02")),
		validation.Field(&p.BloodType, validation.In(bloodTypes...)),
		validation.Field(&p.EmergencyContact, validation.By(func(value any) error {
			c, _ := value.(EmergencyContact)
			return c.validateIn(region)
		})),
	)
}

func (c EmergencyContact) validateIn(region string) error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Name, validation.Length(0, 200)),
		validation.Field(&c.Phone, validation.By(phoneRule(region))),
	)
}

func phoneRule(region string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if strings.TrimSpace(s) == "" {
			return nil
		}
		if _, err := NormalizePhone(s, region); err != nil {
			return errors.New("must be a valid phone number")
		}
		return nil
	}
}

// NormalizePhone parses raw in region and formats it as E.164.
func NormalizePhone(raw, region string) (string, error) {
	if region == "" {
		region = defaultPhoneRegion
	}
	num, err := phonenumbers.Parse(raw, region)
	if err != nil {
		return "", err
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", errors.New("invalid phone number")
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

// ProfileCache persists the extended profile. It is independent of the
// session and only read by the profile page.
type ProfileCache struct {
	store  Store
	region string
}

// NewProfileCache wraps store.
func NewProfileCache(store Store) *ProfileCache {
	return &ProfileCache{store: store, region: defaultPhoneRegion}
}

// WithRegion sets the default region used to parse local phone numbers.
func (c *ProfileCache) WithRegion(region string) *ProfileCache {
	if region != "" {
		c.region = strings.ToUpper(region)
	}
	return c
}

func (c *ProfileCache) Load(ctx context.Context) (*Profile, bool, error) {
	v, ok, err := c.store.Get(ctx, KeyUserProfile)
	if err != nil {
		return nil, false, storageError("get", KeyUserProfile, err)
	}
	if !ok || v == "" {
		return nil, false, nil
	}

	p := &Profile{}
	if err := json.Unmarshal([]byte(v), p); err != nil {
		return nil, false, withDetails(ErrCorruptedCache, err, map[string]any{"key": KeyUserProfile})
	}
	return p, true, nil
}

// Save validates p, normalizes its phone numbers and persists it.
func (c *ProfileCache) Save(ctx context.Context, p *Profile) error {
	if p == nil {
		return c.Clear(ctx)
	}

	if err := p.ValidateIn(c.region); err != nil {
		return withDetails(ErrInvalidProfile, err, map[string]any{"errors": err.Error()})
	}

	clone := *p
	if clone.Allergies == nil {
		clone.Allergies = []string{}
	}
	if clone.Phone != "" {
		clone.Phone, _ = NormalizePhone(clone.Phone, c.region)
	}
	if clone.EmergencyContact.Phone != "" {
		clone.EmergencyContact.Phone, _ = NormalizePhone(clone.EmergencyContact.Phone, c.region)
	}

	raw, err := json.Marshal(&clone)
	if err != nil {
		return withDetails(ErrInvalidProfile, err, nil)
	}
	if err := c.store.Set(ctx, KeyUserProfile, string(raw)); err != nil {
		return storageError("set", KeyUserProfile, err)
	}
	*p = clone
	return nil
}

// LoadOrSeed returns the cached profile or one seeded from user.
func (c *ProfileCache) LoadOrSeed(ctx context.Context, user CurrentUser) (*Profile, error) {
	p, ok, err := c.Load(ctx)
	if err != nil && !IsCorruptedCache(err) {
		return nil, err
	}
	if ok {
		return p, nil
	}
	return ProfileFromUser(user), nil
}

func (c *ProfileCache) Clear(ctx context.Context) error {
	if err := c.store.Delete(ctx, KeyUserProfile); err != nil {
		return storageError("delete", KeyUserProfile, err)
	}
	return nil
}
