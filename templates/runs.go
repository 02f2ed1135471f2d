package templates

import "chatview-server/templates/runs"

// GetRunTemplates returns all run templates concatenated.
// Templates are organized in the runs/ subdirectory with one file per run kind.
func GetRunTemplates() string {
	return runs.GetAllTemplates()
}
