// Package crawler implements the multi-site crawling engine: the site
// adapter boundary, the pagination driver, the retry wrapper, and the
// session-scoped crawl service consumed by the HTTP layer.
package crawler
