package agents

import (
	"stock-forecaster/services"
)

// Type aliases for service interfaces - defined in services package
// These aliases let agents depend on behaviour without importing concrete providers
type LLMService = services.LLMService
type PriceHistoryProvider = services.PriceHistoryProvider
type NewsSearcher = services.NewsSearcher
