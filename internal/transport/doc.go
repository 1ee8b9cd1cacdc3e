// Package transport carries the data plane between workers over socket.io.
//
// Every worker runs one Server on a loopback address derived from its alias
// (see AddressBook) and holds one Client per dependency. Clients identify
// themselves with the `source` query parameter. Three kinds of traffic flow
// over a connection:
//
//   - RPC: the event name is the bare action name, the single argument is a
//     JSON-encoded Envelope and the acknowledgement carries a JSON-encoded
//     Response. Calls flow in both directions so a dependency can reach a
//     connected dependent's public actions.
//   - Subscriptions: `#subscribe` and `#unsubscribe` join and leave a room
//     named after the channel.
//   - Publications: the server emits `#publish` with a JSON-encoded
//     Publication to the channel's room.
package transport
