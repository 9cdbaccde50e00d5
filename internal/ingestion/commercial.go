package ingestion

import "strings"

// noCollaborationLabel is the label clients send for "no collaboration".
const noCollaborationLabel = "İş Birliği İçermiyor"

// isCommercial maps the commercial-type label to the commercial flag.
func isCommercial(label string) bool {
	label = strings.TrimSpace(label)
	return label != "" && label != noCollaborationLabel
}
