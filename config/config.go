package config

import (
	"os"
)

// GetGeminiModel returns the Gemini model to use from environment variable
// Defaults to "gemini-2.5-flash" if not set
func GetGeminiModel() string {
	model := os.Getenv("GEMINI_MODEL")
	if model == "" {
		return "gemini-2.5-flash"
	}
	return model
}

// GetGeminiAPIKey returns the Gemini API key from environment variable
func GetGeminiAPIKey() string {
	return os.Getenv("GEMINI_API_KEY")
}

// GetMongoDBURI returns the MongoDB connection URI from environment variable
func GetMongoDBURI() string {
	return os.Getenv("MONGODB_URI")
}

// GetMongoDBDatabase returns the database name, defaulting to "storybot"
func GetMongoDBDatabase() string {
	name := os.Getenv("MONGODB_DATABASE")
	if name == "" {
		return "storybot"
	}
	return name
}

// GetGoogleCredentialsJSON returns the service-account JSON for the Docs
// exporter. Empty means export is disabled.
func GetGoogleCredentialsJSON() string {
	return os.Getenv("GOOGLE_CREDENTIALS_JSON")
}

// GetListenAddr returns the HTTP listen address, defaulting to ":8080"
func GetListenAddr() string {
	addr := os.Getenv("LISTEN_ADDR")
	if addr == "" {
		return ":8080"
	}
	return addr
}

// GetAllowedOrigins returns the allowed CORS origins from environment variable
func GetAllowedOrigins() string {
	return os.Getenv("ALLOWED_ORIGINS")
}
