// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package messaging is the HTTP client for the marketplace backend
// endpoints that the real-time layer depends on but does not own.
//
// [Client] holds the backend base URL, the long-lived session token and
// the HTTP transport. It exposes four operations:
//
//   - AccessToken issues the short-lived realtime token presented on
//     every websocket connection attempt. Client satisfies
//     transport.CredentialSource directly.
//   - History fetches the ordered messages of a conversation.
//   - UploadFile posts a file to a conversation as multipart form data.
//   - RecoverFile asks the backend for a fresh location for a message's
//     attached file after the old one stopped loading.
//
// Every non-2xx response is returned as [*APIError] carrying the HTTP
// status and, when the backend sent a JSON error body, its code and
// detail. [IsAPIError] tests for a specific status. Request URLs are
// built by concatenating the base URL with escaped path segments.
package messaging
