package credentials

// Credentials represents the stored OAuth2 client credentials in
// credentials.toml.
type Credentials struct {
	Version      int    `toml:"version"`
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
}

// Configured returns true when both halves of the client credential
// pair are present.
func (c *Credentials) Configured() bool {
	return c != nil && c.ClientID != "" && c.ClientSecret != ""
}
