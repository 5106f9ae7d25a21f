package spapi

import (
	"fmt"
	"strings"
)

// Marketplace binds a country code to its marketplace id and the regional
// API endpoint serving it.
type Marketplace struct {
	Code     string
	ID       string
	Endpoint string
}

const (
	endpointEU  = "https://sellingpartnerapi-eu.amazon.com"
	endpointNA  = "https://sellingpartnerapi-na.amazon.com"
	endpointFE  = "https://sellingpartnerapi-fe.amazon.com"
	lwaTokenURL = "https://api.amazon.com/auth/o2/token"
)

var marketplaces = map[string]Marketplace{
	"IT": {Code: "IT", ID: "APJ6JRA9NG5V4", Endpoint: endpointEU},
	"DE": {Code: "DE", ID: "A1PA6795UKMFR9", Endpoint: endpointEU},
	"FR": {Code: "FR", ID: "A13V1IB3VIYZZH", Endpoint: endpointEU},
	"ES": {Code: "ES", ID: "A1RKKUPIHCS9HS", Endpoint: endpointEU},
	"UK": {Code: "UK", ID: "A1F83G8C2ARO7P", Endpoint: endpointEU},
	"NL": {Code: "NL", ID: "A1805IZSGTT6HS", Endpoint: endpointEU},
	"SE": {Code: "SE", ID: "A2NODRKZP88ZB9", Endpoint: endpointEU},
	"PL": {Code: "PL", ID: "A1C3SOZRARQ6R3", Endpoint: endpointEU},
	"BE": {Code: "BE", ID: "AMEN7PMS3EDWL", Endpoint: endpointEU},
	"US": {Code: "US", ID: "ATVPDKIKX0DER", Endpoint: endpointNA},
	"CA": {Code: "CA", ID: "A2EUQ1WTGCTBG2", Endpoint: endpointNA},
	"MX": {Code: "MX", ID: "A1AM78C64UM0Y8", Endpoint: endpointNA},
	"JP": {Code: "JP", ID: "A1VC38T7YXB528", Endpoint: endpointFE},
	"AU": {Code: "AU", ID: "A39IBJ37TRP1C6", Endpoint: endpointFE},
}

// PickMarketplace resolves a country code (case-insensitive, GB accepted as
// an alias of UK) to its marketplace descriptor.
func PickMarketplace(code string) (Marketplace, error) {
	c := strings.ToUpper(strings.TrimSpace(code))
	if c == "GB" {
		c = "UK"
	}
	m, ok := marketplaces[c]
	if !ok {
		return Marketplace{}, fmt.Errorf("unknown marketplace %q", code)
	}
	return m, nil
}
