// SPDX-License-Identifier: MIT

package pipeline

// Observation is one network response the browser extension saw on a page.
// URL arrives exactly as requested; normalization into the registry key
// happens here, not in the extension.
type Observation struct {
	ContextID       string `json:"contextId"`
	URL             string `json:"url"`
	MIME            string `json:"mime,omitempty"`
	ContentLength   int64  `json:"contentLength,omitempty"`
	ContentRange    string `json:"contentRange,omitempty"`
	DiscoverySource string `json:"discoverySource,omitempty"`

	// Headers are the request headers needed to replay the fetch from the
	// daemon (cookies, referer, origin). They may carry credentials and
	// must never be echoed back out.
	Headers map[string]string `json:"headers,omitempty"`
}
