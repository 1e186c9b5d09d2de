package importer

import "github.com/3leaps/engineshift/pkg/appsearch"

// settingsKeys are the search settings accepted on update. Everything else
// returned by the service is read-only.
var settingsKeys = map[string]bool{
	"search_fields":     true,
	"result_fields":     true,
	"boosts":            true,
	"precision":         true,
	"precision_enabled": true,
}

// fieldKeyed settings map field names to per-field options.
var fieldKeyed = map[string]bool{
	"search_fields": true,
	"result_fields": true,
	"boosts":        true,
}

// FilterSearchSettings keeps the updatable keys of settings and drops
// field-keyed entries for fields absent from schema. "id" is always kept.
func FilterSearchSettings(settings map[string]any, schema map[string]string) appsearch.SearchSettings {
	out := appsearch.SearchSettings{}
	for key, val := range settings {
		if !settingsKeys[key] {
			continue
		}
		if !fieldKeyed[key] {
			out[key] = val
			continue
		}
		fields, ok := val.(map[string]any)
		if !ok {
			continue
		}
		kept := make(map[string]any, len(fields))
		for field, opts := range fields {
			if _, known := schema[field]; known || field == "id" {
				kept[field] = opts
			}
		}
		out[key] = kept
	}
	return out
}
