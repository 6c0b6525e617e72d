// Package discovery implements the UDP presence probe used to confirm a
// freshly provisioned device actually joined the local network. Devices
// listen on a fixed port and answer DISCOVER:<id> datagrams with
// HERE:<id>.
package discovery
