package ingest

import (
	"strings"

	"github.com/david/anansi/internal/models"
)

var (
	closedHints = []string{"closed", "clôtur", "fermé", "cerrad", "finaliz", "cancel", "expired", "inactive", "awarded", "archived", "no longer accepting"}
	openHints   = []string{"open", "ouvert", "posted", "active", "abierta", "vigente", "rolling", "forthcoming", "upcoming", "soon", "à venir", "próxim"}
)

// mapStatusHint maps a connector status string to open or closed. Unknown
// hints map to "".
func mapStatusHint(raw string) string {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return ""
	}
	for _, hint := range closedHints {
		if strings.Contains(raw, hint) {
			return models.StatusClosed
		}
	}
	for _, hint := range openHints {
		if strings.Contains(raw, hint) {
			return models.StatusOpen
		}
	}
	return ""
}

// deriveStatus prefers a recognised connector hint, otherwise compares the ISO
// deadline with today. No hint and no deadline leaves the status unknown.
func deriveStatus(hint, deadline, today string) string {
	if s := mapStatusHint(hint); s != "" {
		return s
	}
	if deadline == "" {
		return ""
	}
	if deadline < today {
		return models.StatusClosed
	}
	return models.StatusOpen
}
