// # Remote assistance sessions for FixDesk
//
// This package implements the peer-to-peer remote-control session used by the FixDesk support desk.
// A controlled machine shares its screen over WebRTC and receives input commands on an ordered data
// channel; the controlling operator sends pointer and keyboard commands that may be recorded and saved
// as a reusable solution. Signaling is manual: the offer and answer blobs are copied between operators.
package remotedesk
