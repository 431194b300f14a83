package flux

import "time"

// SetBaseURL overrides the API base URL for tests.
func (c *Client) SetBaseURL(u string) {
	c.baseURL = u
}

// SetPolling overrides the polling cadence for tests.
func (c *Client) SetPolling(interval, timeout time.Duration) {
	c.pollInterval = interval
	c.pollTimeout = timeout
}
