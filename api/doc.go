// Package api defines the request and response types for the VoxFlow HTTP API.
//
// # API Overview
//
// VoxFlow provides a small REST surface plus a voice WebSocket:
//   - Session lifecycle (create / inspect / delete)
//   - Real-time voice conversation over WebSocket
//   - Semantic cache statistics and cost reporting
//   - Health monitoring and metrics
//
// # Authentication
//
// All /v1 endpoints require a JWT bearer token:
//
//	Authorization: Bearer <token>
//
// The token carries user_id, role and organization claims; the same
// identity gates the WebSocket upgrade.
//
// # Base URL
//
// The default base URL for the API is:
//
//	http://localhost:8080
package api
