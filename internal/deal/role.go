package deal

import (
	"fmt"
	"strings"
)

// #region role

// Role is one of the two parties in a bilateral negotiation.
type Role int

const (
	Buyer Role = iota
	Seller
)

// Roles lists both roles in turn order.
var Roles = [2]Role{Buyer, Seller}

// Opposite returns the counterpart role.
func (r Role) Opposite() Role {
	if r == Buyer {
		return Seller
	}
	return Buyer
}

func (r Role) String() string {
	switch r {
	case Buyer:
		return "BUYER"
	case Seller:
		return "SELLER"
	default:
		return fmt.Sprintf("Role(%d)", int(r))
	}
}

// ParseRole accepts "buyer" or "seller" in any case.
func ParseRole(s string) (Role, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BUYER":
		return Buyer, nil
	case "SELLER":
		return Seller, nil
	}
	return Buyer, fmt.Errorf("unknown role %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Role) UnmarshalText(b []byte) error {
	parsed, err := ParseRole(string(b))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// #endregion role
