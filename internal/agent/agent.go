// Package agent classifies an inbound probe's user agent into an
// AgentProfile and exposes the policy predicates that key off it.
//
// Classification is pure and side-effect-free: given the same request
// headers it always returns the same profile. Version components are
// treated as opaque strings everywhere except the OK-press predicate,
// which is the one place an integer parse is allowed — and even there a
// parse failure must yield a conservative "false", never a panic.
package agent

import (
	"net/http"
	"strconv"
	"strings"
)

// Family identifies the platform family of a probing agent.
type Family string

const (
	FamilyIOS            Family = "iOS"
	FamilyMacOSX         Family = "MacOSX"
	FamilyAndroidDalvik  Family = "AndroidDalvik"
	FamilyAndroidWebView Family = "AndroidWebView"
	FamilyAndroidX11     Family = "AndroidX11"
	FamilyWindows        Family = "Windows"
	FamilyKindle         Family = "Kindle"
	FamilyOther          Family = "Other"
)

// LinkType is the rendering hint passed to the landing template: whether
// the local-content link can be a clickable <a href> or must be plain text.
type LinkType string

const (
	LinkHREF LinkType = "href"
	LinkText LinkType = "text"
)

// Profile is the classification of one probe request.
type Profile struct {
	Family Family
	Major  string // opaque; may be empty or non-numeric (e.g. "10.3b")
	Minor  string
	RawUA  string
}

// IsApple reports whether the profile is an Apple CPA/CPB agent.
func (p Profile) IsApple() bool {
	return p.Family == FamilyIOS || p.Family == FamilyMacOSX
}

// IsAndroidAny reports whether the profile is any Android-family agent,
// including the X11 CPA that carries no "Android" token in its UA.
func (p Profile) IsAndroidAny() bool {
	switch p.Family {
	case FamilyAndroidDalvik, FamilyAndroidWebView, FamilyAndroidX11:
		return true
	default:
		return false
	}
}

// IsAndroidCPA reports whether the profile is one of the two Android
// captive-portal-agent roles (pre-7.1 Dalvik, or the 7.1+ X11 probe).
func (p Profile) IsAndroidCPA() bool {
	return p.Family == FamilyAndroidDalvik || p.Family == FamilyAndroidX11
}

// IsAndroidCPB reports whether the profile is the Android captive portal
// browser itself (the WebView that renders the landing page).
func (p Profile) IsAndroidCPB() bool {
	return p.Family == FamilyAndroidWebView
}

// Parser is the external user-agent parsing collaborator. Classify calls it
// for every user agent: its family is used only when no substring rule in
// Classify matches, while its major/minor are always used. Everything
// coming out of it is treated as opaque, unparsed version text.
type Parser interface {
	Parse(rawUA string) (family Family, major, minor string)
}

// Classify derives an AgentProfile from request headers. Rules are applied
// in order; the first match wins. This mirrors the order mandated by
// SPEC_FULL.md §4.1 exactly: CaptiveNetworkSupport, Dalvik, Android, X11,
// and only then the external parser fallback.
func Classify(header http.Header, parser Parser) Profile {
	raw := header.Get("User-Agent")

	// The OS version is always worth extracting, even when the family itself
	// is pinned by a substring rule below: the Android major version still
	// drives RequiresOKPress for both the Dalvik CPA and the WebView CPB.
	parsedFamily, major, minor := parser.Parse(raw)

	family := parsedFamily
	switch {
	case strings.Contains(raw, "CaptiveNetworkSupport"):
		// The Apple wispr CPA. Family is irrelevant to the Policy Engine for
		// this agent (it's keyed off the CaptiveNetworkSupport substring
		// directly), but iOS is the closer fit of the two Apple families.
		family = FamilyIOS
	case strings.Contains(raw, "Dalvik"):
		family = FamilyAndroidDalvik
	case strings.Contains(raw, "Android"):
		family = FamilyAndroidWebView
	case strings.Contains(raw, "X11"):
		family = FamilyAndroidX11
	}

	return Profile{Family: family, Major: major, Minor: minor, RawUA: raw}
}

// RequiresOKPress reports whether this device needs the user to press OK on
// the landing page before any of its CPAs can be released with a 204.
// Only Android >= 6 requires this. The check is against the raw user-agent
// string, not the classified family: the Android 7.1+ "X11" CPA never
// carries an "Android" token in its own UA (that's the whole reason it's
// distinguishable), so it must never be asked to show an OK button even
// though it's grouped with the Android family for session bookkeeping. Any
// parse failure on the major version conservatively returns false rather
// than propagating an error.
func RequiresOKPress(p Profile) bool {
	if !strings.Contains(p.RawUA, "Android") {
		return false
	}
	major, err := strconv.Atoi(p.Major)
	if err != nil {
		return false
	}
	return major >= 6
}

// LinkType reports whether the landing page can show a clickable link for
// this device, or must fall back to plain text because the captive portal
// browser traps link taps instead of handing them to the system browser.
func (p Profile) LinkType() LinkType {
	if p.Family == FamilyIOS && (p.Major == "9" || p.Major == "11") {
		return LinkHREF
	}
	if p.Family == FamilyMacOSX && p.Major == "10" && (p.Minor == "12" || p.Minor == "13") {
		return LinkHREF
	}
	return LinkText
}

// IconVariant reports which browser-chrome icon the landing page should
// show: Apple platforms get the Safari animation, everything else Chrome.
func (p Profile) IconVariant() string {
	if p.IsApple() {
		return "safari"
	}
	return "chrome"
}
