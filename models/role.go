package models

import (
	"encoding/json"
	"fmt"
)

type Role string

const (
	RoleClient     Role = "client"
	RoleContractor Role = "contractor"
)

// AllRoles lists every grantable role in display order.
var AllRoles = []Role{RoleClient, RoleContractor}

func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleClient, RoleContractor:
		return Role(s), nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// RoleSet is the set of roles granted to an account. Roles are not mutually
// exclusive: a hybrid account holds both.
type RoleSet uint8

func roleBit(r Role) RoleSet {
	switch r {
	case RoleClient:
		return 1 << 0
	case RoleContractor:
		return 1 << 1
	default:
		return 0
	}
}

func NewRoleSet(roles ...Role) RoleSet {
	var s RoleSet
	for _, r := range roles {
		s = s.With(r)
	}
	return s
}

func (s RoleSet) Has(r Role) bool {
	bit := roleBit(r)
	return bit != 0 && s&bit == bit
}

func (s RoleSet) With(r Role) RoleSet {
	return s | roleBit(r)
}

func (s RoleSet) IsEmpty() bool {
	return s == 0
}

func (s RoleSet) Roles() []Role {
	roles := make([]Role, 0, len(AllRoles))
	for _, r := range AllRoles {
		if s.Has(r) {
			roles = append(roles, r)
		}
	}
	return roles
}

func (s RoleSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Roles())
}

func (s *RoleSet) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return err
	}
	var set RoleSet
	for _, name := range names {
		r, err := ParseRole(name)
		if err != nil {
			return err
		}
		set = set.With(r)
	}
	*s = set
	return nil
}

// RoleMask returns the bit used to store r, for queries such as
// "roles & ? <> 0".
func RoleMask(r Role) uint8 {
	return uint8(roleBit(r))
}
