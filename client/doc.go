// Package client talks to a TA service exposed by httpserver. Client sends raw
// or typed Gatekeeper requests; AdminClient submits preshared key shares.
package client
