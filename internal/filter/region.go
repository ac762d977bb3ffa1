package filter

import (
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// Region codes.
const (
	RegionUK  = "UK"
	RegionUSA = "USA"
	RegionEU  = "EU"
)

// knownDomains maps registrable domains of well-known outlets to regions.
var knownDomains = map[string]string{
	"bbc.co.uk":          RegionUK,
	"bbc.com":            RegionUK,
	"theguardian.com":    RegionUK,
	"telegraph.co.uk":    RegionUK,
	"independent.co.uk":  RegionUK,
	"thetimes.co.uk":     RegionUK,
	"sky.com":            RegionUK,
	"ft.com":             RegionUK,
	"rya.org.uk":         RegionUK,
	"ybw.com":            RegionUK,
	"cnn.com":            RegionUSA,
	"nytimes.com":        RegionUSA,
	"washingtonpost.com": RegionUSA,
	"foxnews.com":        RegionUSA,
	"nbcnews.com":        RegionUSA,
	"npr.org":            RegionUSA,
	"usatoday.com":       RegionUSA,
	"wsj.com":            RegionUSA,
	"apnews.com":         RegionUSA,
	"euronews.com":       RegionEU,
	"politico.eu":        RegionEU,
	"euractiv.com":       RegionEU,
	"dw.com":             RegionEU,
	"france24.com":       RegionEU,
	"lemonde.fr":         RegionEU,
	"spiegel.de":         RegionEU,
	"elpais.com":         RegionEU,
}

// knownSuffixes maps public suffixes to regions for hosts not in knownDomains.
var knownSuffixes = map[string]string{
	"uk":     RegionUK,
	"co.uk":  RegionUK,
	"org.uk": RegionUK,
	"gov.uk": RegionUK,
	"ac.uk":  RegionUK,
	"us":     RegionUSA,
	"gov":    RegionUSA,
	"eu":     RegionEU,
	"de":     RegionEU,
	"fr":     RegionEU,
	"es":     RegionEU,
	"it":     RegionEU,
	"nl":     RegionEU,
	"ie":     RegionEU,
	"be":     RegionEU,
}

// DetectRegion returns the region of the outlet behind sourceURL, or ""
// when the host matches no known domain.
func DetectRegion(sourceURL string) string {
	u, err := url.Parse(strings.TrimSpace(sourceURL))
	if err != nil {
		return ""
	}
	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	if host == "" {
		return ""
	}

	if domain, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
		if region, ok := knownDomains[domain]; ok {
			return region
		}
	}
	suffix, _ := publicsuffix.PublicSuffix(host)
	return knownSuffixes[suffix]
}
