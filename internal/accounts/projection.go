package accounts

import (
	"fmt"
	"strings"

	"github.com/dvloznov/bank-sync/internal/domain"
)

// Projection selects a single field out of each cached account.
type Projection int

const (
	ProjectionID Projection = iota
	ProjectionName
	ProjectionType
)

var extractors = map[Projection]func(domain.Account) string{
	ProjectionID:   func(a domain.Account) string { return a.AccountID },
	ProjectionName: func(a domain.Account) string { return a.DisplayName },
	ProjectionType: func(a domain.Account) string { return a.AccountType },
}

func (p Projection) String() string {
	switch p {
	case ProjectionID:
		return "id"
	case ProjectionName:
		return "name"
	case ProjectionType:
		return "type"
	default:
		return fmt.Sprintf("Projection(%d)", int(p))
	}
}

// ParseProjection maps a CLI field name to a Projection.
func ParseProjection(s string) (Projection, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "id", "account_id":
		return ProjectionID, nil
	case "name", "display_name":
		return ProjectionName, nil
	case "type", "account_type":
		return ProjectionType, nil
	default:
		return 0, fmt.Errorf("unknown account field %q (want id, name or type)", s)
	}
}

// Apply extracts the projected field from every account, in order.
func (p Projection) Apply(accounts []domain.Account) ([]string, error) {
	extract, ok := extractors[p]
	if !ok {
		return nil, fmt.Errorf("Projection.Apply: unsupported projection %v", p)
	}
	out := make([]string, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, extract(a))
	}
	return out, nil
}
