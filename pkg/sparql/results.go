package sparql

// BindingValue is one bound value of a result row
type BindingValue struct {
	Type     string `json:"type"`
	Value    string `json:"value"`
	Datatype string `json:"datatype,omitempty"`
	Lang     string `json:"xml:lang,omitempty"`
}

// Binding is one result row, keyed by variable name
type Binding map[string]BindingValue

// Results is the application/sparql-results+json document of a SELECT or
// ASK query
type Results struct {
	Head struct {
		Vars []string `json:"vars"`
	} `json:"head"`
	Results struct {
		Bindings []Binding `json:"bindings"`
	} `json:"results"`
	// Boolean is the answer of an ASK query
	Boolean bool `json:"boolean"`
}

// Len returns the number of rows
func (r *Results) Len() int {
	return len(r.Results.Bindings)
}

// Column returns the values bound to variable in row order. Rows that leave
// the variable unbound are skipped.
func (r *Results) Column(variable string) []string {
	out := make([]string, 0, len(r.Results.Bindings))
	for _, b := range r.Results.Bindings {
		if v, ok := b[variable]; ok {
			out = append(out, v.Value)
		}
	}
	return out
}
