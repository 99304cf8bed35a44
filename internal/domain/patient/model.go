// Package patient holds the portal's patient records. Names and birth date
// are stored as pointers because records arrive from intake forms and
// referral uploads with varying completeness; the billing resolver treats a
// missing first name, last name, or birth date as unresolvable.
package patient

import (
	"time"

	"github.com/google/uuid"
)

type Patient struct {
	ID                uuid.UUID  `db:"id" json:"id"`
	FirstName         *string    `db:"first_name" json:"first_name,omitempty"`
	LastName          *string    `db:"last_name" json:"last_name,omitempty"`
	BirthDate         *time.Time `db:"birth_date" json:"birth_date,omitempty"`
	ExternalPersonID  *string    `db:"external_person_id" json:"external_person_id,omitempty"`
	Email             *string    `db:"email" json:"email,omitempty"`
	Phone             *string    `db:"phone" json:"phone,omitempty"`
	AddressLine       *string    `db:"address_line" json:"address_line,omitempty"`
	AddressCity       *string    `db:"address_city" json:"address_city,omitempty"`
	AddressState      *string    `db:"address_state" json:"address_state,omitempty"`
	AddressPostalCode *string    `db:"address_postal_code" json:"address_postal_code,omitempty"`
	Active            bool       `db:"active" json:"active"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}

// DisplayName returns "First Last" using whichever parts are present.
func (p *Patient) DisplayName() string {
	switch {
	case p.FirstName != nil && p.LastName != nil:
		return *p.FirstName + " " + *p.LastName
	case p.FirstName != nil:
		return *p.FirstName
	case p.LastName != nil:
		return *p.LastName
	default:
		return ""
	}
}

// HasResolverIdentity reports whether the record carries the three fields
// the external registry requires for a person lookup.
func (p *Patient) HasResolverIdentity() bool {
	return p.FirstName != nil && *p.FirstName != "" &&
		p.LastName != nil && *p.LastName != "" &&
		p.BirthDate != nil
}
