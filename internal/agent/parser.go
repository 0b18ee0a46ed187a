package agent

import (
	"strings"

	"github.com/mileusna/useragent"
)

// LibraryParser is the default Parser, backed by a real ecosystem
// user-agent database rather than a hand-rolled regex table. Classify
// calls it for every user agent to obtain the OS version; its family is
// used only for user agents the substring rules in Classify don't already
// resolve — plain browser UAs presenting as iOS Safari, macOS Safari,
// Windows, or anything else not carrying one of the recognized tokens.
type LibraryParser struct{}

// Parse implements Parser.
func (LibraryParser) Parse(rawUA string) (family Family, major, minor string) {
	if rawUA == "" {
		return FamilyOther, "", ""
	}

	ua := useragent.Parse(rawUA)
	major, minor = splitVersion(ua.OSVersion)

	switch {
	case strings.Contains(ua.OS, "iOS"):
		return FamilyIOS, major, minor
	case strings.Contains(ua.OS, "Mac OS") || strings.Contains(ua.OS, "macOS"):
		return FamilyMacOSX, major, minor
	case strings.Contains(ua.OS, "Windows"):
		return FamilyWindows, major, minor
	case strings.Contains(rawUA, "Silk") || strings.Contains(rawUA, "Kindle"):
		return FamilyKindle, major, minor
	case strings.Contains(ua.OS, "Android"):
		// Classify replaces this family for any UA carrying an "Android"
		// token; only the version extracted here is kept for those.
		return FamilyAndroidWebView, major, minor
	default:
		return FamilyOther, major, minor
	}
}

// splitVersion splits a dotted version string ("10.12.6") into its major
// and minor components ("10", "12"). Anything that doesn't look like a
// dotted version is returned verbatim as major with an empty minor — never
// integer-parsed here, per the "only parse ints in RequiresOKPress" rule.
func splitVersion(v string) (major, minor string) {
	if v == "" {
		return "", ""
	}
	parts := strings.SplitN(v, ".", 3)
	major = parts[0]
	if len(parts) > 1 {
		minor = parts[1]
	}
	return major, minor
}
