package dossier

import (
	"github.com/invopop/jsonschema"
)

var (
	planSchema   = reflectSchema(&WebSearchPlan{})
	reportSchema = reflectSchema(&ReportData{})
)

// reflectSchema builds an inline (reference-free) JSON schema for v. The
// $schema and $id keys are dropped because several providers reject them.
func reflectSchema(v any) *jsonschema.Schema {
	r := &jsonschema.Reflector{ExpandedStruct: true, DoNotReference: true}
	s := r.Reflect(v)
	s.Version = ""
	s.ID = ""
	return s
}

// PlanSchema returns the JSON schema the planner asks models to follow.
func PlanSchema() *jsonschema.Schema { return planSchema }

// ReportSchema returns the JSON schema the writer asks models to follow.
func ReportSchema() *jsonschema.Schema { return reportSchema }
