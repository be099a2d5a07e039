package sessions

import "strings"

// sourceAliases maps the raw acquisition vocabulary emitted by producers
// onto the closed traffic source set.
var sourceAliases = map[string]string{
	"organic":        SourceOrganic,
	"organic_search": SourceOrganic,
	"paid":           SourcePaid,
	"paid_search":    SourcePaid,
	"cpc":            SourcePaid,
	"social":         SourceSocial,
	"social_media":   SourceSocial,
	"direct":         SourceDirect,
	"referral":       SourceReferral,
	"email":          SourceEmail,
}

// NormalizeDevice maps a raw device value onto the closed device set,
// falling back to UnknownDevice.
func NormalizeDevice(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case DeviceDesktop:
		return DeviceDesktop
	case DeviceMobile, "phone", "smartphone":
		return DeviceMobile
	case DeviceTablet:
		return DeviceTablet
	default:
		return UnknownDevice
	}
}

// NormalizeSource maps a raw traffic source value onto the closed source
// set, falling back to UnknownSource.
func NormalizeSource(raw string) string {
	if normalized, ok := sourceAliases[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return normalized
	}
	return UnknownSource
}

// IsKnownDevice reports whether v is a member of the closed device set.
func IsKnownDevice(v string) bool {
	return v == DeviceDesktop || v == DeviceMobile || v == DeviceTablet
}

// IsKnownSource reports whether v is a member of the closed source set.
func IsKnownSource(v string) bool {
	switch v {
	case SourceOrganic, SourcePaid, SourceSocial, SourceDirect, SourceReferral, SourceEmail:
		return true
	}
	return false
}
