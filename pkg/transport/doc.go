// Package transport defines the capabilities a connection-oriented
// transport provides so framed channels can be built on it.
//
// Key concepts:
//   - ConnOpener / ConnAcceptor: establish or accept a Conn
//   - Conn: one session (QUIC connection, multiplexed TCP connection) that
//     hosts many Streams without repeating its handshake
//   - StreamOpener / StreamAcceptor: open or accept a Stream on a Conn
//   - Stream: a duplex byte stream with independently closable halves
//
// Providers live in subpackages: quic, tcp, mem and winpipe. Package mux
// adapts any net.Conn into a multi-stream Conn.
package transport
