//nolint:revive // types is a common Go package naming convention
package types

// FrameTapVersion is the version of the length-prefixed msgpack frame stream
// served to local consumers. Lockstep with Version.
const FrameTapVersion = "0.3.0"

// BridgeMeta identifies a running bridge process.
// Every log line carries these fields.
type BridgeMeta struct {
	// BridgeID is a per-process identifier (uuid), regenerated on each start.
	BridgeID string
	// Version is the bridge version.
	Version string
	// Hostname is the kiosk machine name, if known.
	Hostname string
}
