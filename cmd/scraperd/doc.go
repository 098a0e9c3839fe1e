// Command scraperd is the product scraper service.
//
// Architecture overview:
//   - HTTP API: internal/api.Server accepts POST /scrape, validates the payload, resolves the retailer from the
//     URL and hands a job to the dispatcher, answering 202 before any browser work starts.
//   - Dispatcher & queue: jobs flow through the in-memory queue (or a Redis list when several replicas share
//     work) and are fanned out to a fixed worker pool sized by worker.concurrency.
//   - Execution: each job checks the dedup gate, waits on the per-site rate limiter, opens a fresh browser
//     session (chromedp by default, playwright optionally), extracts with a bounded in-session retry and
//     persists the site row plus catalog upsert in one transaction. Retries back off exponentially and
//     exhausted jobs are archived as dead letters (local disk, GCS or Redis).
//   - Notifications: in production, persisted records are POSTed to the webhook and/or published to Pub/Sub.
//
// Quick checklist:
//   - Configure env vars: SCRAPER_DB_DSN, SCRAPER_ENVIRONMENT, SCRAPER_WEBHOOK_URL, SCRAPER_AUTH_API_KEY,
//     SCRAPER_QUEUE_BACKEND and friends, or pass --config config.yaml.
//   - Create tables: scraperd migrate.
//   - Run locally: scraperd serve.
package main
