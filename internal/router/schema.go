package router

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/shopspring/decimal"

	"github.com/roach88/haggle/internal/market"
)

//go:embed ruleset.cue
var ruleSetSchema string

// ruleSchema checks rule_set parameters against the CUE definitions.
// cue values are not safe for concurrent use, hence the mutex.
type ruleSchema struct {
	mu  sync.Mutex
	ctx *cue.Context
	def cue.Value
}

func newRuleSchema() (*ruleSchema, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(ruleSetSchema, cue.Filename("ruleset.cue"))
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("compile rule schema: %w", err)
	}
	def := v.LookupPath(cue.ParsePath("#RuleSet"))
	if err := def.Err(); err != nil {
		return nil, fmt.Errorf("lookup #RuleSet: %w", err)
	}
	return &ruleSchema{ctx: ctx, def: def}, nil
}

// ruleParams is a validated rule_set command.
type ruleParams struct {
	Type      market.RuleType
	Category  string
	ListingID string
	Threshold decimal.Decimal
}

func (s *ruleSchema) check(c RuleSet) (ruleParams, error) {
	data := map[string]any{}
	var p ruleParams

	// Each supplied number must parse before the shape is checked.
	numbers := []struct {
		field string
		n     Number
		typ   market.RuleType
	}{
		{"auto_buy_below", c.AutoBuyBelow, market.RuleAutoBuy},
		{"auto_accept_above", c.AutoAcceptAbove, market.RuleAutoAccept},
		{"auto_counter_ratio", c.AutoCounterRatio, market.RuleAutoCounter},
	}
	for _, num := range numbers {
		if !num.n.Present() {
			continue
		}
		d, err := num.n.decimal(num.field)
		if err != nil {
			return p, err
		}
		data[num.field] = json.Number(d.String())
		p.Type = num.typ
		p.Threshold = d
	}
	if c.Category != "" {
		data["category"] = c.Category
	}
	if c.ListingID != "" {
		data["listing_id"] = c.ListingID
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return p, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.def.Unify(s.ctx.CompileBytes(raw))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return p, invalid(ErrRuleShape, "", "expected exactly one of {category?, auto_buy_below}, "+
			"{listing_id, auto_accept_above} or {listing_id, auto_counter_ratio} (ratio in (0,1])")
	}

	p.Category = c.Category
	p.ListingID = c.ListingID
	return p, nil
}
