package compliance

import (
	"fmt"
	"sync"
	"time"
	_ "time/tzdata"

	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/config"
	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/model"
	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/pkg/logger"
)

var locations sync.Map // name -> *time.Location

// loadLocation caches time.LoadLocation. Unknown names return nil.
func loadLocation(name string) *time.Location {
	if name == "" {
		return nil
	}
	if loc, ok := locations.Load(name); ok {
		return loc.(*time.Location)
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		logger.Warn("unknown time zone", "tz", name, "error", err)
		return nil
	}
	locations.Store(name, loc)
	return loc
}

// LocationFor resolves the lead's local zone: lead, then organization, then
// the policy default, then UTC.
func LocationFor(p config.CompliancePolicy, lead *model.Lead, org *model.Organization) *time.Location {
	candidates := []string{}
	if lead != nil {
		candidates = append(candidates, lead.Timezone)
	}
	if org != nil {
		candidates = append(candidates, org.Timezone)
	}
	candidates = append(candidates, p.DefaultTimezone)
	for _, name := range candidates {
		if loc := loadLocation(name); loc != nil {
			return loc
		}
	}
	return time.UTC
}

// withinWindow reports whether now falls inside the channel's contact window.
// Channels without a window are always reachable.
func withinWindow(p config.CompliancePolicy, ch model.Channel, now time.Time, loc *time.Location) (bool, config.ContactWindow) {
	w, ok := p.ContactHours[string(ch)]
	if !ok {
		return true, w
	}
	h := now.In(loc).Hour()
	return h >= w.StartHour && h < w.EndHour, w
}

func isExempt(p config.CompliancePolicy, purpose string) bool {
	for _, e := range p.ExemptPurposes {
		if e == purpose {
			return true
		}
	}
	return false
}

func windowReason(w config.ContactWindow, loc *time.Location) string {
	return fmt.Sprintf("outside contact hours (%02d:00-%02d:00 %s)", w.StartHour, w.EndHour, loc.String())
}
