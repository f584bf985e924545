// Package api implements the HTTP surface of the task engine: request
// decoding and validation, the route table, and the mapping from engine error
// kinds to status codes.
package api
