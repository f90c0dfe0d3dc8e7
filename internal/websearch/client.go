package websearch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

var (
	// ErrSearchFailed segnala che la ricerca web non ha prodotto una risposta valida
	ErrSearchFailed = errors.New("web search failed")
)

const defaultBaseURL = "https://html.duckduckgo.com"

// Result rappresenta un risultato di ricerca web
type Result struct {
	Title   string
	URL     string
	Snippet string
	// Score euristico basato sulla sovrapposizione dei termini della query
	// con il titolo; zero se non calcolabile
	Score float64
}

// Searcher è l'interfaccia consumata dal sottosistema di retrieval
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]Result, error)
}

// Config configurazione del client di ricerca
type Config struct {
	BaseURL string
	Timeout time.Duration
	// RatePerMinute limita le richieste verso il motore di ricerca
	RatePerMinute int
}

// DefaultConfig restituisce una configurazione di default
func DefaultConfig() Config {
	return Config{
		BaseURL:       defaultBaseURL,
		Timeout:       20 * time.Second,
		RatePerMinute: 20,
	}
}

// Client esegue ricerche sull'endpoint HTML di DuckDuckGo.
// Le richieste sono rate-limited per non abusare del servizio.
type Client struct {
	httpClient *resty.Client
	limiter    *rate.Limiter
}

// NewClient crea un nuovo client di ricerca web
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if cfg.RatePerMinute <= 0 {
		cfg.RatePerMinute = DefaultConfig().RatePerMinute
	}

	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("User-Agent", "Mozilla/5.0 (compatible; vettriage/1.0)")

	return &Client{
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RatePerMinute)), 1),
	}
}

// Search esegue una ricerca e restituisce al più maxResults risultati
func (c *Client) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSearchFailed, err)
	}

	enriched := enrichQuery(query)

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetQueryParam("q", enriched).
		Get("/html/")

	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSearchFailed, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: HTTP %d", ErrSearchFailed, resp.StatusCode())
	}

	results, err := parseResults(string(resp.Body()), enriched, maxResults)
	if err != nil {
		return nil, err
	}

	log.Debug().
		Str("query", enriched).
		Int("results", len(results)).
		Msg("Web search completed")

	return results, nil
}

// enrichQuery aggiunge termini veterinari se la query non ne contiene
func enrichQuery(query string) string {
	vetTerms := []string{"veterinary", "vet", "animal", "canine", "feline", "dog", "cat", "diagnosis", "treatment"}
	lower := strings.ToLower(query)
	for _, term := range vetTerms {
		if strings.Contains(lower, term) {
			return query
		}
	}
	return "veterinary " + query + " symptoms treatment"
}

// parseResults estrae i risultati dalla pagina HTML
func parseResults(html, query string, maxResults int) ([]Result, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSearchFailed, err)
	}

	results := make([]Result, 0, maxResults)
	doc.Find(".result").EachWithBreak(func(i int, sel *goquery.Selection) bool {
		link := sel.Find(".result__a")
		title := strings.TrimSpace(link.Text())
		href, _ := link.Attr("href")
		snippet := strings.TrimSpace(sel.Find(".result__snippet").Text())

		if title == "" || href == "" {
			return true
		}

		results = append(results, Result{
			Title:   title,
			URL:     href,
			Snippet: snippet,
			Score:   titleOverlapScore(query, title),
		})
		return len(results) < maxResults
	})

	return results, nil
}

// titleOverlapScore calcola la frazione di termini della query presenti nel titolo
func titleOverlapScore(query, title string) float64 {
	queryTerms := strings.Fields(strings.ToLower(query))
	if len(queryTerms) == 0 {
		return 0
	}

	titleLower := strings.ToLower(title)
	matched := 0
	for _, term := range queryTerms {
		if len(term) > 2 && strings.Contains(titleLower, term) {
			matched++
		}
	}
	return float64(matched) / float64(len(queryTerms))
}
