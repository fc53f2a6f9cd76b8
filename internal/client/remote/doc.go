// Package remote implements the HTTP/JSON client for the Daybook sync
// server: document CRUD and owner queries, a websocket snapshot stream, and
// the presigned-URL handshake for attachment blobs.
//
// All failures are classified into the sentinel errors in errors.go; the sync
// engine never inspects transport details.
package remote
