// Package web serves the bridge HTTP API and advertises it over mDNS.
//
// Routes:
//
//	GET    /api/v1/health
//	GET    /api/v1/entries
//	DELETE /api/v1/entries/{id}
//	POST   /api/v1/entries/{id}/reload
//	GET    /api/v1/devices
//	DELETE /api/v1/devices/{id}
//	GET    /api/v1/entities
//	POST   /api/v1/flows
//	GET    /auth/external/callback?state=...&code=...
//
// API responses carry an API-Version header. A request may send
// Accept-Version: major.minor and is refused with 406 when the major
// version differs.
package web
