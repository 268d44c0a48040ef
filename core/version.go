package core

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// ProtocolVersion is the Starknet version stamped on every locally produced block.
const ProtocolVersion = "0.13.2"

var Ver0_13_2 = semver.MustParse(ProtocolVersion)

// ParseBlockVersion reads a Starknet version such as "0.13" or "0.13.1.1" as major.minor.patch.
// Missing parts are zero, an empty version is 0.0.0.
func ParseBlockVersion(protocolVersion string) (*semver.Version, error) {
	if protocolVersion == "" {
		return semver.NewVersion("0.0.0")
	}
	parts := strings.SplitN(protocolVersion, ".", 4)
	for len(parts) < 3 {
		parts = append(parts, "0")
	}
	return semver.NewVersion(strings.Join(parts[:3], "."))
}

// CheckProtocolVersion rejects versions older than the one block hashes are computed for.
// Forked chains may report older versions for their head but locally produced blocks must not.
func CheckProtocolVersion(protocolVersion string) error {
	v, err := ParseBlockVersion(protocolVersion)
	if err != nil {
		return err
	}
	if v.LessThan(Ver0_13_2) {
		return fmt.Errorf("unsupported protocol version %s, need at least %s", v, Ver0_13_2)
	}
	return nil
}
