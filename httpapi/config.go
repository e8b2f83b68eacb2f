package httpapi

// Config defines control API settings.
type Config struct {
	Addr     string
	BasePath string
	// APIToken, when set, requires a matching bearer token on every request.
	APIToken string
}
