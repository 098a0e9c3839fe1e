// Package scraper holds the shared job types, collaborator interfaces,
// failure taxonomy, and backoff policy used by the queue, worker, and API
// layers of the product scraper.
package scraper
