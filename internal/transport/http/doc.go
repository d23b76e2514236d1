// Package http exposes the processing service over a JSON API.
//
// Handlers only parse and validate requests, call the service and shape
// responses. Every failure goes through errors.ErrorHandler and is written
// as RFC 7807 problem details; the error kind decides the status code.
//
// Routes, all under /api/v1:
//
//	GET    /health, /health/ready, /health/live, /health/detailed
//	GET    /version, /stats
//	GET    /methods
//	GET    /files                        ?pattern=<glob> inside the data dir
//	DELETE /files/{name}
//	POST   /inspect                      {"path": "..."}
//	GET    /datasets                     ?limit=<n>, 0 for all
//	POST   /datasets                     {"path": "..."} or {"paths": [...]}
//	POST   /datasets/upload              multipart "file"
//	GET    /datasets/{id}                ?values=true for the arrays
//	DELETE /datasets/{id}
//	GET    /datasets/{id}/lineage
//	POST   /datasets/{id}/prune
//	POST   /datasets/{id}/{operation}    interpolate, resample, derivative,
//	                                     integral, area, smooth, convert
//	POST   /datasets/{id}/export         {"file": "out.csv"}
//	POST   /synchronize
//
// Non-finite floats are encoded as null.
package http
