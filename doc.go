// Package nsapi is a rate-governed client for the NationStates API.
// It serializes outgoing API calls, enforces the server's published rate
// budget from the response headers, retries transient failures with
// backoff, and paces telegram dispatches through their own, independent
// budget.
//
// # Key Concepts
//
//   - [ResetLock] serializes API calls with FIFO fairness and can defer
//     its own release until the server-side quota resets.
//   - [Limiter] wraps an http.RoundTripper with the full governing
//     protocol: User-Agent injection, header-driven deferral, 429 and
//     5xx retries, and telegram escalation.
//   - [TelegramLimiter] enforces the minimum interval between telegram
//     dispatches, which the API budgets separately from ordinary calls.
//   - [credstore.Store] persists nation login credentials captured from
//     authenticated responses.
//
// # Quick Start
//
//	if err := nsapi.SetAgent("Testlandia example@example.org"); err != nil {
//		log.Fatal(err)
//	}
//
//	limiter := nsapi.New()
//	client := limiter.Client()
//
//	resp, err := client.Do(nsapi.Nation("testlandia", "fullname", "population"))
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer resp.Body.Close()
//
//	root, err := xmltree.Parse(resp.Body)
//
// All limiters created with [New] share one process-wide lock, so a
// process with many workers still respects the single remote budget.
//
// See the [Limiter] documentation for the full API.
package nsapi
