package llm

import "log/slog"

// NewLLMClient returns a MockClient when mock is set, otherwise a real Client.
func NewLLMClient(mock bool, baseURL, apiKey string, logger *slog.Logger) LLMClient {
	if mock {
		logger.Info("CHATBOT_MODE=MOCK detected, using mock LLM client")
		return NewMockClient()
	}
	if apiKey == "" {
		logger.Warn("no API key configured for the completion API")
	}
	return NewClient(baseURL, apiKey)
}
