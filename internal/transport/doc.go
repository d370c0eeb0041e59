// Package transport carries treeline frames over TCP.
//
// Ownership boundary:
// - the listener: one request frame per accepted connection, answered with
//   a small reply before the connection closes
// - the client: one connection per outbound buffer, write the frame, read
//   one reply, close
//
// Both sides run under finite configurable deadlines. The packets inside
// the frames are opaque here.
package transport
