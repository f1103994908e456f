package constants

// Entity labels as stored in correction and training logs.
// Stable values (store these exact strings on disk).
const (
	LabelAbsender  = "ABSENDER"
	LabelEmpfänger = "EMPFÄNGER"
	LabelBetreff   = "BETREFF"
)

// Labels lists the built-in entity labels in display order.
var Labels = []string{LabelAbsender, LabelEmpfänger, LabelBetreff}

// Locate methods recorded on entity spans.
const (
	MethodExact    = "exact"
	MethodFuzzy    = "fuzzy"
	MethodSemantic = "semantic"
)
