// Package cloudflare stores product records in Workers KV and product
// images in R2 through the Cloudflare v4 REST API.
//
// Every request passes through a token bucket limiter. A 429 response
// pauses all requests for the Retry-After period and the request is
// retried. Transport errors and 5xx responses surface as
// domain.ErrTransientStore so the writer can treat them as retryable.
package cloudflare
