package methods

import (
	"strings"

	"github.com/HerbHall/opsconductor/pkg/models"
)

type osFamily string

const (
	familyLinux   osFamily = "linux"
	familyUnix    osFamily = "unix"
	familyWindows osFamily = "windows"
	familyOther   osFamily = "other"
)

var osFamilies = map[string]osFamily{
	"linux":          familyLinux,
	"ubuntu":         familyLinux,
	"debian":         familyLinux,
	"centos":         familyLinux,
	"rhel":           familyLinux,
	"redhat":         familyLinux,
	"fedora":         familyLinux,
	"suse":           familyLinux,
	"alpine":         familyLinux,
	"rocky":          familyLinux,
	"alma":           familyLinux,
	"unix":           familyUnix,
	"freebsd":        familyUnix,
	"openbsd":        familyUnix,
	"netbsd":         familyUnix,
	"aix":            familyUnix,
	"solaris":        familyUnix,
	"macos":          familyUnix,
	"darwin":         familyUnix,
	"windows":        familyWindows,
	"windows_server": familyWindows,
}

// classifyOS returns the family of osType, or "" for an empty value.
func classifyOS(osType string) osFamily {
	key := strings.ToLower(strings.TrimSpace(osType))
	if key == "" {
		return ""
	}
	if f, ok := osFamilies[key]; ok {
		return f
	}
	return familyOther
}

func unixLike(f osFamily) bool    { return f == familyLinux || f == familyUnix }
func windowsOnly(f osFamily) bool { return f == familyWindows }
func anyOS(f osFamily) bool       { return f != "" }

// IsValidForOS reports whether methodType may be used on a target running
// osType. ssh requires a linux or unix family OS, winrm requires windows,
// and every other protocol is accepted for any non-empty OS. Unknown method
// types are never valid.
func IsValidForOS(mt models.MethodType, osType string) bool {
	s, ok := protocols[mt]
	if !ok {
		return false
	}
	return s.validOS(classifyOS(osType))
}
