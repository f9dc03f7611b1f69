package poi

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Address is a best-effort breakdown of a free-text address. Components the
// parser does not recognize are left empty.
type Address struct {
	StreetNumber string `json:"street_number,omitempty"`
	StreetName   string `json:"street_name,omitempty"`
	Unit         string `json:"unit,omitempty"`
	Building     string `json:"building,omitempty"`
	PostalCode   string `json:"postal_code,omitempty"`
}

var (
	// "Singapore 529510", "S(529510)", "529510"
	postalRe = regexp.MustCompile(`^(?:[A-Za-z][A-Za-z .]*?\s*\(?)?(\d{5,6})\)?$`)
	// "#01-23", "# 01-23A"
	unitRe = regexp.MustCompile(`#\s?([0-9A-Za-z]+-[0-9A-Za-z]+)`)
	// "Blk 201 Tampines Street 21", "10 Tampines Central 1"
	streetRe = regexp.MustCompile(`^(?:(?i:blk|block)\.?\s+)?(\d+[A-Za-z]?)\s+(.*[A-Za-z].*)$`)
	spaceRe  = regexp.MustCompile(`\s+`)
)

// SegmentAddress splits a comma separated address into its components. It
// returns nil when nothing was recognized.
func SegmentAddress(raw string) *Address {
	s := spaceRe.ReplaceAllString(norm.NFKC.String(raw), " ")

	var a Address
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		if m := postalRe.FindStringSubmatch(part); m != nil {
			if a.PostalCode == "" {
				a.PostalCode = m[1]
			}
			continue
		}

		if loc := unitRe.FindStringSubmatchIndex(part); loc != nil {
			if a.Unit == "" {
				a.Unit = "#" + part[loc[2]:loc[3]]
				building := strings.TrimSpace(part[:loc[0]] + " " + part[loc[1]:])
				if building != "" && a.Building == "" {
					a.Building = building
				}
			}
			continue
		}

		if a.StreetName == "" {
			if m := streetRe.FindStringSubmatch(part); m != nil {
				a.StreetNumber = m[1]
				a.StreetName = strings.TrimSpace(m[2])
			}
		}
	}

	if a == (Address{}) {
		return nil
	}
	return &a
}
