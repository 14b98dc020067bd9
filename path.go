package pack

import "strings"

// NormalizePath converts a user-provided entry path to the container's
// canonical form: forward slashes, no leading/trailing slashes, no empty
// segments. Case is preserved; comparison elsewhere is case-insensitive.
func NormalizePath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	p = strings.Trim(p, "/")
	if p == "" {
		return ""
	}
	parts := strings.Split(p, "/")
	result := parts[:0]
	for _, part := range parts {
		if part != "" {
			result = append(result, part)
		}
	}
	return strings.Join(result, "/")
}

// foldPath is the case-insensitive comparison key for a normalized path.
func foldPath(p string) string {
	return strings.ToLower(p)
}

// TableName extracts the schema table name from a db entry path following
// the db/<table>/<file> layout. It returns false for any other path.
func TableName(p string) (string, bool) {
	lower := foldPath(NormalizePath(p))
	if !isDBPath(lower) {
		return "", false
	}
	return tableNameOf(lower), true
}
