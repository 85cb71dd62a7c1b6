package nwis

import (
	"strings"

	"github.com/rotisserie/eris"
)

// SiteStatus selects sites by whether they are currently active.
type SiteStatus int

// Site statuses accepted by the site service.
const (
	StatusAll SiteStatus = iota
	StatusActive
	StatusInactive
)

// String returns the siteStatus query value.
func (s SiteStatus) String() string {
	switch s {
	case StatusAll:
		return "all"
	case StatusActive:
		return "active"
	case StatusInactive:
		return "inactive"
	}
	return "unknown"
}

// SiteStatuses lists the valid statuses in flag-help order.
func SiteStatuses() []SiteStatus {
	return []SiteStatus{StatusAll, StatusActive, StatusInactive}
}

// ParseSiteStatus parses all, active or inactive (case-insensitive).
func ParseSiteStatus(s string) (SiteStatus, error) {
	want := strings.ToLower(strings.TrimSpace(s))
	for _, st := range SiteStatuses() {
		if st.String() == want {
			return st, nil
		}
	}
	return StatusAll, eris.Errorf("nwis: invalid site status %q (want all, active or inactive)", s)
}
