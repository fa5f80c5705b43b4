package zabbix

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/zabbix-problems/zabbix-problems/internal/monitor"
)

// Version is the API version reported by apiinfo.version. The login
// parameters and the way the session token travels depend on it.
type Version struct {
	Major, Minor int
}

func (v Version) String() string { return fmt.Sprintf("%d.%d", v.Major, v.Minor) }

func (v Version) atLeast(major, minor int) bool {
	return v.Major > major || (v.Major == major && v.Minor >= minor)
}

// loginUserField is "user" before 5.4 and "username" since.
func (v Version) loginUserField() string {
	if v.atLeast(5, 4) {
		return "username"
	}
	return "user"
}

// bearerAuth reports whether the token goes in the Authorization header
// instead of the auth member. 6.4 added the header and 7.2 dropped the member.
func (v Version) bearerAuth() bool { return v.atLeast(6, 4) }

// ParseVersion reads "major.minor[.patch...]" as returned by the API.
func ParseVersion(s string) (Version, error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) < 2 {
		return Version{}, fmt.Errorf("zabbix: api version %q: %w", s, monitor.ErrMalformedResponse)
	}
	major, err := strconv.Atoi(parts[0])
	if err != nil {
		return Version{}, fmt.Errorf("zabbix: api version %q: %w", s, monitor.ErrMalformedResponse)
	}
	minor, err := strconv.Atoi(parts[1])
	if err != nil {
		return Version{}, fmt.Errorf("zabbix: api version %q: %w", s, monitor.ErrMalformedResponse)
	}
	return Version{Major: major, Minor: minor}, nil
}
