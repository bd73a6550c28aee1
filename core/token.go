package core

import (
	"fmt"
	"math/big"

	"gopkg.in/yaml.v3"
)

// subunitFactor is the fixed conversion between a token's smallest
// denomination and one whole unit: 1 token = 10^18 subunits.
var subunitFactor = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// TokenDefinition describes a token class's decimal presentation. Balances
// and particle amounts themselves are always carried in subunits; whether a
// TokenDefinition is registered decides only whether GetTokenUnitsBalance
// includes that token class, and its fields do not affect the conversion.
type TokenDefinition struct {
	Reference   TokenClassReference
	Name        string
	Granularity *big.Int
}

// TokenRegistry resolves a TokenClassReference to its TokenDefinition.
// Tokens unknown to the registry are omitted from decimal-unit balance
// queries rather than erroring, matching the "not resolvable ... are
// omitted" behavior for getTokenUnitsBalance.
type TokenRegistry struct {
	defs map[TokenClassReference]TokenDefinition
}

// NewTokenRegistry creates an empty registry.
func NewTokenRegistry() *TokenRegistry {
	return &TokenRegistry{defs: make(map[TokenClassReference]TokenDefinition)}
}

// Register records a token definition, overwriting any prior entry for the
// same reference.
func (r *TokenRegistry) Register(def TokenDefinition) {
	r.defs[def.Reference] = def
}

// Lookup returns the definition for ref, if known.
func (r *TokenRegistry) Lookup(ref TokenClassReference) (TokenDefinition, bool) {
	def, ok := r.defs[ref]
	return def, ok
}

// ToDecimal splits an amount in subunits into whole units and the leftover
// subunits using the fixed subunit factor, truncating toward zero. big.Rat is
// avoided deliberately: truncation, not rounding, is what a quotient/
// remainder split gives for free.
func ToDecimal(subunits *big.Int) (whole *big.Int, remainder *big.Int) {
	whole = new(big.Int)
	remainder = new(big.Int)
	whole.QuoRem(subunits, subunitFactor, remainder)
	return whole, remainder
}

// tokenSeed is the YAML-decoded shape of one token-registry fixture entry:
// issuer and symbol compose the TokenClassReference, granularity is decimal
// subunits.
type tokenSeed struct {
	Issuer      string `yaml:"issuer"`
	Symbol      string `yaml:"symbol"`
	Name        string `yaml:"name"`
	Granularity string `yaml:"granularity"`
}

// LoadTokenRegistryYAML decodes a list of token-registry seed entries and
// registers each as a TokenDefinition, returning the populated registry.
// This is how test fixtures and any future static seed file populate a
// TokenRegistry without hand-building TokenDefinition values.
func LoadTokenRegistryYAML(data []byte) (*TokenRegistry, error) {
	var seeds []tokenSeed
	if err := yaml.Unmarshal(data, &seeds); err != nil {
		return nil, fmt.Errorf("core: decode token registry fixture: %w", err)
	}
	reg := NewTokenRegistry()
	for _, s := range seeds {
		issuer, err := ParseAddress(s.Issuer)
		if err != nil {
			return nil, fmt.Errorf("core: token seed %q: %w", s.Symbol, err)
		}
		granularity, ok := new(big.Int).SetString(s.Granularity, 10)
		if !ok {
			return nil, fmt.Errorf("core: token seed %q: invalid granularity %q", s.Symbol, s.Granularity)
		}
		reg.Register(TokenDefinition{
			Reference:   TokenClassReference{Issuer: issuer, Symbol: s.Symbol},
			Name:        s.Name,
			Granularity: granularity,
		})
	}
	return reg, nil
}
