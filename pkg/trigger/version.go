package trigger

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/Promptonauts/flowline/pkg/models"
)

// Version tags follow vMAJOR.MINOR.PATCH. Anything else is a moving label.
var versionTagRE = regexp.MustCompile(`^v(\d+)\.(\d+)\.(\d+)$`)

// Version is a parsed semantic version tag.
type Version struct {
	Major int
	Minor int
	Patch int
	Raw   string
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// ParseVersion parses a vX.Y.Z tag. Malformed tags are a fatal condition for
// release pipelines, so the error wraps ErrMalformedVersion.
func ParseVersion(tag string) (Version, error) {
	m := versionTagRE.FindStringSubmatch(tag)
	if m == nil {
		return Version{}, fmt.Errorf("%w: %q", models.ErrMalformedVersion, tag)
	}
	major, _ := strconv.Atoi(m[1])
	minor, _ := strconv.Atoi(m[2])
	patch, _ := strconv.Atoi(m[3])
	return Version{Major: major, Minor: minor, Patch: patch, Raw: tag}, nil
}

// IsVersionTag reports whether a ref is an immutable version tag rather than
// a moving label such as "main".
func IsVersionTag(ref string) bool {
	return versionTagRE.MatchString(ref)
}
