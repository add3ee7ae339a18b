package types //nolint:revive // types is a valid package name

import (
	"regexp"
	"testing"
)

func TestVersion_Format(t *testing.T) {
	semverRegex := regexp.MustCompile(`^\d+\.\d+\.\d+(-[a-zA-Z0-9.]+)?$`)
	if !semverRegex.MatchString(Version) {
		t.Errorf("Version %q is not a valid semver", Version)
	}
}

func TestFrameTapVersion_MatchesVersion(t *testing.T) {
	// Lockstep versioning: the frame tap wire format follows the bridge version.
	if FrameTapVersion != Version {
		t.Errorf("FrameTapVersion %q != Version %q", FrameTapVersion, Version)
	}
}
