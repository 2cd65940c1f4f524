package ingest

import "strings"

// TablePrefix keeps derived names clear of reserved words and leading digits.
const TablePrefix = "dataset_"

// SanitizeTableName derives the engine table name for a dataset id. Every character
// outside [A-Za-z0-9] becomes '_'. Distinct ids can map to the same name
// ("a-b" and "a.b"); ids come from the catalog, which does not produce such pairs.
func SanitizeTableName(datasetID string) string {
	var b strings.Builder
	b.Grow(len(TablePrefix) + len(datasetID))
	b.WriteString(TablePrefix)
	for _, r := range datasetID {
		if r < 0x80 && (r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}
