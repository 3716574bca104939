package template

// Param is a unique parameter name and its canonical description.
type Param struct {
	Name        string
	Description string
}

// ParameterSet holds the distinct parameters of a template in order of first
// occurrence. The first non-empty description seen for a name wins.
type ParameterSet struct {
	params []Param
	index  map[string]int
}

// NewParameterSet folds tokens into a ParameterSet.
func NewParameterSet(tokens []Token) *ParameterSet {
	ps := &ParameterSet{index: make(map[string]int)}
	for _, t := range tokens {
		i, ok := ps.index[t.Name]
		if !ok {
			ps.index[t.Name] = len(ps.params)
			ps.params = append(ps.params, Param{Name: t.Name, Description: t.Description})
			continue
		}
		if ps.params[i].Description == "" {
			ps.params[i].Description = t.Description
		}
	}
	return ps
}

// Len returns the number of distinct parameters.
func (ps *ParameterSet) Len() int {
	return len(ps.params)
}

// Params returns a copy of the parameters in order.
func (ps *ParameterSet) Params() []Param {
	out := make([]Param, len(ps.params))
	copy(out, ps.params)
	return out
}

// Names returns the parameter names in order.
func (ps *ParameterSet) Names() []string {
	names := make([]string, len(ps.params))
	for i, p := range ps.params {
		names[i] = p.Name
	}
	return names
}

// Has reports whether name is a parameter of the set.
func (ps *ParameterSet) Has(name string) bool {
	_, ok := ps.index[name]
	return ok
}

// Description returns the canonical description for name.
func (ps *ParameterSet) Description(name string) string {
	if i, ok := ps.index[name]; ok {
		return ps.params[i].Description
	}
	return ""
}

// Without returns the parameters of ps that have no value in b, in order.
func (ps *ParameterSet) Without(b Binding) *ParameterSet {
	rest := &ParameterSet{index: make(map[string]int)}
	for _, p := range ps.params {
		if _, ok := b[p.Name]; ok {
			continue
		}
		rest.index[p.Name] = len(rest.params)
		rest.params = append(rest.params, p)
	}
	return rest
}

// Binding maps parameter names to literal values.
type Binding map[string]string

// Missing returns the first parameter of ps without a value in b.
func (b Binding) Missing(ps *ParameterSet) (string, bool) {
	for _, p := range ps.params {
		if _, ok := b[p.Name]; !ok {
			return p.Name, true
		}
	}
	return "", false
}
