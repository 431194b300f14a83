package nanobanana

// SetEndpoint overrides the runsync endpoint for tests.
func (c *Client) SetEndpoint(u string) {
	c.endpoint = u
}
