package types

// Frame tap type discriminants.
const (
	TapHelloType = "hello"
	TapFrameType = "frame"
)

// TapHello is the first frame on a frame tap stream.
type TapHello struct {
	// Type is always "hello".
	Type string `msgpack:"type"`
	// Version is the frame tap wire version.
	Version  string `msgpack:"version"`
	BridgeID string `msgpack:"bridge_id"`
}

// TapFrame carries one live-view JPEG on a frame tap stream.
type TapFrame struct {
	// Type is always "frame".
	Type string `msgpack:"type"`
	// Seq increases by at least one per published frame; gaps mean the
	// reader skipped frames.
	Seq int64 `msgpack:"seq"`
	// CapturedAtMs is the capture time in Unix milliseconds.
	CapturedAtMs int64 `msgpack:"captured_at_ms"`
	// Review is true for injected review images.
	Review bool   `msgpack:"review"`
	Data   []byte `msgpack:"data"`
}
