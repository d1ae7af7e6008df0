// Package account defines the owners of credit balances.
//
// An account is either a user or an organization, identified by an opaque
// id issued by the host application. Every Credits operation takes a Ref.
package account

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xraph/credits/types"
)

// Kind discriminates the account union.
type Kind string

const (
	KindUser         Kind = "user"
	KindOrganization Kind = "organization"
)

// Valid reports whether k is a known account kind.
func (k Kind) Valid() bool {
	return k == KindUser || k == KindOrganization
}

// Ref identifies an account.
type Ref struct {
	Kind Kind   `json:"kind"`
	ID   string `json:"id"`
}

// User returns a Ref for a user account.
func User(id string) Ref { return Ref{Kind: KindUser, ID: id} }

// Organization returns a Ref for an organization account.
func Organization(id string) Ref { return Ref{Kind: KindOrganization, ID: id} }

// Key returns the canonical "kind:id" form used as a storage and lock key.
func (r Ref) Key() string {
	return string(r.Kind) + ":" + r.ID
}

// String implements fmt.Stringer.
func (r Ref) String() string { return r.Key() }

// IsZero reports whether r is the zero Ref.
func (r Ref) IsZero() bool { return r.Kind == "" && r.ID == "" }

// Validate checks that r names a well-formed account.
func (r Ref) Validate() error {
	if !r.Kind.Valid() {
		return fmt.Errorf("account: unknown kind %q", r.Kind)
	}
	if strings.TrimSpace(r.ID) == "" {
		return errors.New("account: empty id")
	}
	return nil
}

// ParseKey parses the "kind:id" form produced by Key.
func ParseKey(s string) (Ref, error) {
	kind, rest, ok := strings.Cut(s, ":")
	if !ok {
		return Ref{}, fmt.Errorf("account: malformed key %q", s)
	}
	r := Ref{Kind: Kind(kind), ID: rest}
	if err := r.Validate(); err != nil {
		return Ref{}, err
	}
	return r, nil
}

// Account is a registered owner of credit balances.
type Account struct {
	types.Entity
	Ref
	DisplayName string            `json:"display_name,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}
