// Package transport signs requests to the hosted Git REST API with a bearer
// credential, sends the versioned API headers and maps every non-2xx
// response to a RemoteAPIError. Nothing else in gitdrop talks to the
// network directly.
package transport
