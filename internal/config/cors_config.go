package config

type CorsConfig interface {
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

type Cors struct{}

var _ CorsConfig = Cors{}

func (Cors) GetAllowedMethods() string {
	return GetEnv("CORS_ALLOWED_METHODS", "GET, POST, OPTIONS")
}

func (Cors) GetAllowedHeaders() string {
	return GetEnv("CORS_ALLOWED_HEADERS", "Content-Type, Authorization, X-App-ID, X-App-Secret")
}
