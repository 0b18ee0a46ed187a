package agent

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeParser lets tests pin the external-parser fallback result without
// depending on the real useragent library's exact field mapping.
type fakeParser struct {
	family Family
	major  string
	minor  string
}

func (f fakeParser) Parse(string) (Family, string, string) {
	return f.family, f.major, f.minor
}

func header(ua string) http.Header {
	h := http.Header{}
	h.Set("User-Agent", ua)
	return h
}

func TestClassify_SubstringRulesWinOverParser(t *testing.T) {
	cases := []struct {
		name   string
		ua     string
		parser Parser
		want   Family
	}{
		{
			name:   "apple wispr CPA",
			ua:     "CaptiveNetworkSupport/1.0 wispr",
			parser: fakeParser{family: FamilyOther},
			want:   FamilyIOS,
		},
		{
			name:   "dalvik beats android substring",
			ua:     "Dalvik/2.1.0 (Linux; U; Android 5.1.1)",
			parser: fakeParser{family: FamilyOther},
			want:   FamilyAndroidDalvik,
		},
		{
			name:   "webview android",
			ua:     "Mozilla/5.0 (Linux; Android 7.0; Build) AppleWebKit Chrome Mobile Safari CaptivePortalLogin",
			parser: fakeParser{family: FamilyOther},
			want:   FamilyAndroidWebView,
		},
		{
			name:   "x11 captive portal checker",
			ua:     "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko)",
			parser: fakeParser{family: FamilyOther},
			want:   FamilyAndroidX11,
		},
		{
			name:   "falls through to parser for plain safari",
			ua:     "Mozilla/5.0 (iPhone; CPU iPhone OS 9_0 like Mac OS X) AppleWebKit/601.1",
			parser: fakeParser{family: FamilyIOS, major: "9", minor: "0"},
			want:   FamilyIOS,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := Classify(header(tc.ua), tc.parser)
			assert.Equal(t, tc.want, p.Family)
		})
	}
}

func TestClassify_VersionAlwaysPopulatedFromParser(t *testing.T) {
	// Even though "Dalvik" pins the family via a substring rule, the major
	// version must still come from the parser call so RequiresOKPress can
	// distinguish Android 5 from Android 6+.
	p := Classify(header("Dalvik/2.1.0 (Linux; U; Android 6.0.1)"), fakeParser{family: FamilyOther, major: "6", minor: "0"})
	require.Equal(t, FamilyAndroidDalvik, p.Family)
	assert.Equal(t, "6", p.Major)
	assert.Equal(t, "0", p.Minor)
}

func TestRequiresOKPress(t *testing.T) {
	cases := []struct {
		name  string
		ua    string
		major string
		want  bool
	}{
		{"android 5 no OK press", "Android 5.1.1 Dalvik", "5", false},
		{"android 6 requires OK press", "Android 6.0 Dalvik", "6", true},
		{"android 7 requires OK press", "Android 7.0 Dalvik", "7", true},
		{"android 8 requires OK press", "Android 8.0 Dalvik", "8", true},
		{"android 9 requires OK press", "Android 9 Dalvik", "9", true},
		{"x11 cpa never shows OK despite Android family", "Mozilla/5.0 (X11; Linux x86_64)", "7", false},
		{"non-android UA", "Mozilla/5.0 (iPhone; CPU iPhone OS 9_0)", "9", false},
		{"unparsable major is conservative false", "Android Dalvik", "not-a-number", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := Profile{RawUA: tc.ua, Major: tc.major}
			assert.Equal(t, tc.want, RequiresOKPress(p))
		})
	}
}

func TestLinkType(t *testing.T) {
	cases := []struct {
		name string
		p    Profile
		want LinkType
	}{
		{"ios 9", Profile{Family: FamilyIOS, Major: "9"}, LinkHREF},
		{"ios 11", Profile{Family: FamilyIOS, Major: "11"}, LinkHREF},
		{"ios 10", Profile{Family: FamilyIOS, Major: "10"}, LinkText},
		{"macos sierra", Profile{Family: FamilyMacOSX, Major: "10", Minor: "12"}, LinkHREF},
		{"macos high sierra", Profile{Family: FamilyMacOSX, Major: "10", Minor: "13"}, LinkHREF},
		{"macos mojave", Profile{Family: FamilyMacOSX, Major: "10", Minor: "14"}, LinkText},
		{"android always text", Profile{Family: FamilyAndroidDalvik, Major: "9"}, LinkText},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.p.LinkType())
		})
	}
}

func TestIconVariant(t *testing.T) {
	assert.Equal(t, "safari", Profile{Family: FamilyIOS}.IconVariant())
	assert.Equal(t, "safari", Profile{Family: FamilyMacOSX}.IconVariant())
	assert.Equal(t, "chrome", Profile{Family: FamilyAndroidDalvik}.IconVariant())
	assert.Equal(t, "chrome", Profile{Family: FamilyWindows}.IconVariant())
}
