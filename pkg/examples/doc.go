// Package examples provides reference objects demonstrating how to publish
// native Go types with webchannel-go.
//
// The example implementations show:
//   - Descriptor tables built with meta.NewType (properties, signals, methods, enums)
//   - Change signals driving property updates
//   - Overloaded methods and deferred results through meta.Future
//   - Objects returned from methods, which clients receive as wrapped objects
//
// Available examples:
//   - Thermostat: a simulated room thermostat with a target temperature and modes
//   - Schedule: a list of timed setpoints created on demand by a Thermostat
//
// cmd/webchannel-demo publishes a Thermostat over WebSocket.
package examples
