package models

// Stage keys for the fixed lead-processing sequence. The order is static:
// validate -> check_salesforce -> enrich -> sync.
const (
	StageValidate        = "validate"
	StageCheckSalesforce = "check_salesforce"
	StageEnrich          = "enrich"
	StageSync            = "sync"
)

// StageDefinition describes one named step in the pipeline. Fixed at build
// time, never persisted. Predecessor is empty for the first stage; a stage's
// trigger is gated on its predecessor having a completed run.
type StageDefinition struct {
	Key         string `json:"key"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Predecessor string `json:"predecessor,omitempty"`
}

var stageDefinitions = []StageDefinition{
	{
		Key:         StageValidate,
		Title:       "Validate Emails",
		Description: "Verify deliverability of every lead email address",
	},
	{
		Key:         StageCheckSalesforce,
		Title:       "Check Salesforce",
		Description: "Match leads against existing Salesforce contacts",
		Predecessor: StageValidate,
	},
	{
		Key:         StageEnrich,
		Title:       "Enrich Contacts",
		Description: "Append company and role data from the enrichment provider",
		Predecessor: StageCheckSalesforce,
	},
	{
		Key:         StageSync,
		Title:       "Sync to CRM",
		Description: "Push processed leads into Salesforce",
		Predecessor: StageEnrich,
	},
}

// Stages returns the ordered stage definitions. The returned slice is a copy.
func Stages() []StageDefinition {
	out := make([]StageDefinition, len(stageDefinitions))
	copy(out, stageDefinitions)
	return out
}

// StageByKey looks up a stage definition by key.
func StageByKey(key string) (StageDefinition, bool) {
	for _, def := range stageDefinitions {
		if def.Key == key {
			return def, true
		}
	}
	return StageDefinition{}, false
}

// StageKeys returns the ordered stage keys.
func StageKeys() []string {
	keys := make([]string, len(stageDefinitions))
	for i, def := range stageDefinitions {
		keys[i] = def.Key
	}
	return keys
}
