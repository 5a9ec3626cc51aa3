// Package publisher exposes native objects to remote clients.
//
// Objects are published explicitly under a caller-chosen id with
// RegisterObject, or implicitly when they appear in a method result,
// property value or signal argument. Implicitly published ("wrapped")
// objects get a uuid id and are only visible to the transports that received
// a reference to them; they are evicted when the last of those transports
// goes away or the object is destroyed.
//
// # Requests
//
// HandleMessage serves the client side of the protocol: Init returns the
// description of every registered object, InvokeMethod dispatches to the best
// matching overload, ConnectToSignal and DisconnectFromSignal manage
// reference-counted signal hooks, and SetProperty writes a property.
// Failures are logged and, for requests carrying an id, answered with null.
//
// # Updates
//
// Change signals of published properties mark the property dirty. Dirty
// properties and replayed signals are coalesced for Config.PropertyUpdateInterval
// and sent as PropertyUpdate messages. A client only receives the next batch
// after it reported Idle; until then its messages queue.
package publisher
