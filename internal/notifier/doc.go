// Package notifier delivers short operator messages: shout reports and the
// start/finish notices sent back to whoever issued a command.
//
// # Transport
//
// Delivery is delegated to a transport.Adapter (the Telegram adapter in
// practice). Messages without an explicit target are broadcasts and go to the
// configured default chat.
//
// # History
//
// For debugging and operator visibility, the service keeps a small in-memory
// history of recently delivered messages.
package notifier
