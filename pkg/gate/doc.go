// Package gate contains the core types and error taxonomy for toolgate,
// an outbound authentication gateway for downstream tool servers.
//
// The gateway never originates requests on its own; it only decides what
// authentication metadata accompanies a request. Two authentication inputs
// are composed per destination:
//  1. OAuth2 service credentials (client credentials flow), cached and
//     refreshed by the token manager in pkg/gate/tokens.
//  2. Caller session cookies, filtered by a per-destination allow-list
//     in pkg/gate/cookies.
//
// The header composer in pkg/gate/composer merges both into a HeaderSet
// that the forwarding layer attaches verbatim to outbound requests.
package gate
