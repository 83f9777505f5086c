// Package app wires the engine's collaborators — stores, download and
// ingestion managers, the watchdog, the scheduler, and the notifier's
// WebSocket upgrade endpoint — into a single running process.
package app
