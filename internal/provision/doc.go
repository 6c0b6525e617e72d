// Package provision onboards factory-fresh devices over Bluetooth.
//
// An unconfigured device advertises under a known name prefix and
// exposes one GATT service with three characteristics: SSID (write),
// password (write), and status (notify). A Session scans for the
// device, connects, writes the credentials strictly in sequence, then
// waits for the status characteristic to push SUCCESS:{deviceID} once
// the device joins the network.
//
// Sessions are transient and single-use. Close is safe from any state,
// including terminal ones, and always releases the radio connection.
package provision
