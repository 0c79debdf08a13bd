package engine

import (
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"clienttabs/internal/apperr"
)

// Filter is a compiled boolean expression over a client, e.g.
// `vehicle_info.make == "Toyota" && billing.paid`.
type Filter struct {
	prog *vm.Program
}

var (
	filterMu    sync.Mutex
	filterCache = map[string]*vm.Program{}
)

// maxCachedFilters bounds the compiled program cache; it is reset when full.
const maxCachedFilters = 256

// CompileFilter compiles code once per distinct expression.
func CompileFilter(code string) (*Filter, error) {
	filterMu.Lock()
	defer filterMu.Unlock()

	if prog, ok := filterCache[code]; ok {
		return &Filter{prog: prog}, nil
	}
	prog, err := expr.Compile(code, expr.AsBool(), expr.AllowUndefinedVariables())
	if err != nil {
		return nil, apperr.Validation("filter", "expression", "invalid filter: "+err.Error())
	}
	if len(filterCache) >= maxCachedFilters {
		filterCache = map[string]*vm.Program{}
	}
	filterCache[code] = prog
	return &Filter{prog: prog}, nil
}

// Env exposes a client to filter expressions: id, created_at and one map per tab
// keyed by field name.
func (d *ClientDetails) Env() map[string]any {
	env := map[string]any{"id": d.ID}
	if d.CreatedAt != nil {
		env["created_at"] = *d.CreatedAt
	}
	for _, tab := range d.Tabs {
		values := make(map[string]any, len(tab.Fields))
		for _, f := range tab.Fields {
			values[f.Name] = f.Value
		}
		env[tab.Name] = values
	}
	return env
}

func (f *Filter) Match(d *ClientDetails) (bool, error) {
	out, err := expr.Run(f.prog, d.Env())
	if err != nil {
		return false, apperr.Validation("filter", "expression", "filter failed: "+err.Error())
	}
	ok, _ := out.(bool)
	return ok, nil
}
