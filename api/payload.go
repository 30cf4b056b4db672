// Package api defines the contract between the reactor core and the
// application it is embedded in: the Payload/Serializer codec boundary,
// the callback interface delivering events into user code, and the
// structured errors and configuration the core exposes.
package api

// Payload is an application-level message. Its concrete shape is defined
// entirely by the Serializer the embedding application supplies; the core
// never inspects it, only moves it between the wire and user callbacks.
type Payload any
