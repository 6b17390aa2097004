package platform

import (
	"fmt"
	"strings"
)

// Architecture labels used in targets, matrix rows and the download type table.
const (
	ArchI686Unused = "i686-UNUSED"
	ArchX86_64     = "x86_64"
	ArchAArch64    = "aarch64"
)

// Architectures is the vendor's download type table: the connector API
// reports an integer DownloadType and its position in this list names the
// architecture. Order is significant.
type Architectures []string

// DefaultArchitectures returns the table the vendor currently uses.
// Index 0 is a 32-bit build no published product page offers.
func DefaultArchitectures() Architectures {
	return Architectures{ArchI686Unused, ArchX86_64, ArchAArch64}
}

// ForDownloadType maps a download type index to its architecture label.
// Indices outside the table report false.
func (a Architectures) ForDownloadType(index int) (string, bool) {
	if index < 0 || index >= len(a) {
		return "", false
	}
	return a[index], true
}

// Contains reports whether arch is a label in the table.
func (a Architectures) Contains(arch string) bool {
	for _, label := range a {
		if label == arch {
			return true
		}
	}
	return false
}

// aliases maps common spellings to table labels.
var aliases = map[string]string{
	"x64":   ArchX86_64,
	"amd64": ArchX86_64,
	"arm64": ArchAArch64,
}

// FindArch resolves a label or a common alias (x64, amd64, arm64) to a label
// present in the table.
func (a Architectures) FindArch(name string) (string, error) {
	if a.Contains(name) {
		return name, nil
	}
	if label, ok := aliases[strings.ToLower(name)]; ok && a.Contains(label) {
		return label, nil
	}
	return "", fmt.Errorf("unknown architecture: %s", name)
}

// ResolveArchs converts architecture flags to table labels. An empty list or
// "all" selects nothing in particular and returns nil, meaning no filtering.
func (a Architectures) ResolveArchs(flags []string) ([]string, error) {
	for _, flag := range flags {
		if strings.ToLower(flag) == "all" {
			return nil, nil
		}
	}

	var result []string
	for _, flag := range flags {
		label, err := a.FindArch(flag)
		if err != nil {
			return nil, err
		}
		result = append(result, label)
	}
	return result, nil
}
