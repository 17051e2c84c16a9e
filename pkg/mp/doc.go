// Package mp is the remote listing client for the official-account
// platform.
//
// Three calls make up a harvest: SearchAccount resolves a display name to
// a fakeid, ListPage walks the published-article list five items at a
// time, and FetchContent downloads one article page. All of them take the
// logged-in session (token and cookie) explicitly.
//
// Responses are decoded into wire structs and then mapped to models.
// Anything missing a required field is rejected as malformed rather than
// passed on half-filled. Remote status codes map to typed errors:
//
//	base_resp.ret 200003, 200040  -> auth_expired
//	base_resp.ret 200013          -> rate_limited
//	any other non-zero ret        -> malformed
//	HTTP 401/403, 404, 429, 5xx   -> auth_expired, not_found, rate_limited, server_error
//
// The client never retries or sleeps; pacing belongs to the caller.
package mp
