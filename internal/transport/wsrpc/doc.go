// Package wsrpc implements transport.Dialer over the TV's JSON-over-WebSocket
// control protocol.
//
// Each request carries a uuid id and the reader goroutine routes responses
// back to the waiting caller by that id. Dial performs the register
// handshake, which may wait for the user to accept a pairing prompt on the
// TV, and reports a freshly issued client key on IssuedKeys.
package wsrpc
