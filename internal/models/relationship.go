package models

import "fmt"

// Relationship is derived per (viewer, subject) pair and never stored.
type Relationship int

const (
	RelationshipNone Relationship = iota
	RelationshipPending
	RelationshipReceived
	RelationshipFriends
)

func (r Relationship) String() string {
	switch r {
	case RelationshipNone:
		return "none"
	case RelationshipPending:
		return "pending"
	case RelationshipReceived:
		return "received"
	case RelationshipFriends:
		return "friends"
	default:
		return fmt.Sprintf("Relationship(%d)", int(r))
	}
}

func ParseRelationship(s string) (Relationship, error) {
	switch s {
	case "none", "":
		return RelationshipNone, nil
	case "pending":
		return RelationshipPending, nil
	case "received":
		return RelationshipReceived, nil
	case "friends":
		return RelationshipFriends, nil
	default:
		return RelationshipNone, fmt.Errorf("unknown relationship %q", s)
	}
}

// RelationshipFromStatus maps a stored request status to the viewer's relationship.
func RelationshipFromStatus(s RequestStatus) Relationship {
	switch s {
	case RequestStatusPending:
		return RelationshipPending
	case RequestStatusReceived:
		return RelationshipReceived
	default:
		return RelationshipNone
	}
}

func (r Relationship) MarshalText() ([]byte, error) {
	switch r {
	case RelationshipNone, RelationshipPending, RelationshipReceived, RelationshipFriends:
		return []byte(r.String()), nil
	default:
		return nil, fmt.Errorf("invalid relationship %d", int(r))
	}
}

func (r *Relationship) UnmarshalText(b []byte) error {
	v, err := ParseRelationship(string(b))
	if err != nil {
		return err
	}
	*r = v
	return nil
}
