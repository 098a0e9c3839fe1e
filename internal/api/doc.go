// Package api hosts the HTTP server, middleware, and REST handlers.
// Notable routes:
//   - POST /scrape schedules one product page.
//   - POST /v1/listings returns product links found on a category page.
//   - GET /healthz and /readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
package api
