package agents

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"stock-forecaster/models"
	"stock-forecaster/observability"
)

const (
	// MacroQuery is the fixed search for the economic backdrop shared by every ticker
	MacroQuery = "US economic macro data inflation Fed interest rates latest"

	newsResults  = 5
	macroResults = 3

	// MaxSnippetRunes caps the length of a single snippet
	MaxSnippetRunes = 500
)

// NewsQuery returns the search used for a ticker's own news
func NewsQuery(ticker string) string {
	return fmt.Sprintf("latest news %s stock earnings revenue", models.NormalizeTicker(ticker))
}

// NewsMacroFetcher collects short text snippets about a ticker and the macro environment
type NewsMacroFetcher struct {
	searcher NewsSearcher
}

// NewNewsMacroFetcher creates a fetcher backed by a web or news search provider
func NewNewsMacroFetcher(searcher NewsSearcher) *NewsMacroFetcher {
	return &NewsMacroFetcher{searcher: searcher}
}

// Fetch runs the news and macro searches for a ticker. Each list starts with
// the provider's synthesized answer when one is given. Empty lists are valid.
func (f *NewsMacroFetcher) Fetch(ctx context.Context, ticker string) (news, macro []string, err error) {
	news, err = f.search(ctx, NewsQuery(ticker), newsResults)
	if err != nil {
		return nil, nil, &DataUnavailableError{Ticker: ticker, Reason: "news search failed", Err: err}
	}

	macro, err = f.search(ctx, MacroQuery, macroResults)
	if err != nil {
		return nil, nil, &DataUnavailableError{Ticker: ticker, Reason: "macro search failed", Err: err}
	}

	observability.Debug("gathered snippets", "ticker", ticker, "news", len(news), "macro", len(macro))
	return news, macro, nil
}

func (f *NewsMacroFetcher) search(ctx context.Context, query string, maxResults int) ([]string, error) {
	result, err := f.searcher.Search(ctx, query, maxResults)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return []string{}, nil
	}

	snippets := make([]string, 0, maxResults+1)
	if s := cleanSnippet(result.Answer); s != "" {
		snippets = append(snippets, s)
	}
	for i, hit := range result.Results {
		if i >= maxResults {
			break
		}
		if s := cleanSnippet(hit.Content); s != "" {
			snippets = append(snippets, s)
		}
	}
	return snippets, nil
}

// cleanSnippet trims whitespace and caps the snippet at MaxSnippetRunes
func cleanSnippet(s string) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= MaxSnippetRunes {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:MaxSnippetRunes]))
}
