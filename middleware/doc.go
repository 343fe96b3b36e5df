// Package middleware adapts engine authentication to net/http.
//
// [Guard] reads the access token from the Authorization header or the
// access cookie, calls Authenticate and stores the result in the request
// context. [RequirePermission] layers a role check on top. Error responses
// use the same JSON body and status mapping as the HTTP API.
package middleware
