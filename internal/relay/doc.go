// Package relay serves interactive clients over WebSocket.
//
// Clients on the local network should not need broker credentials or a
// durable broker session of their own. Instead they connect here, send
// {"action":"subscribe","deviceId":...} to watch one device, and from
// then on receive that device's broker payloads verbatim. A
// {"action":"publish",...} frame is re-published to the device's
// command topic by the bridge.
//
// Each connection tracks a single device (last subscribe wins) and its
// forwarding registration is torn down on disconnect. When require_auth
// is set, subscribe frames must carry an identity token whose account
// holds a registry link to the device.
package relay
