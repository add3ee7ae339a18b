package types

// Version is the canonical bridge version.
// The CLI, the local API status payload and the frame tap wire format all
// report this version.
const Version = "0.3.0"
