// deck/deck.go
package deck

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/wfunc/blackjackserver/logger"
)

var ErrProvider = errors.New("deck provider error")

// Card is a single playing card as the provider returns it.
type Card struct {
	Code  string `json:"code"`
	Suit  string `json:"suit"`
	Value string `json:"value"`
	Image string `json:"image"`
}

// Client is the contract the engine depends on. The provider is
// unreliable I/O: every call can fail and the caller must not assume
// success.
type Client interface {
	ShuffleDeck(ctx context.Context) (string, error)
	DrawCards(ctx context.Context, deckID, pileID string, count int) ([]Card, error)
	ListPile(ctx context.Context, deckID, pileID string) ([]Card, error)
}

// HTTPClient talks to a deckofcards-style shuffle/draw service.
type HTTPClient struct {
	baseURL string
	client  *http.Client
	retries int
}

func NewHTTPClient(baseURL string, timeout time.Duration, retries int) *HTTPClient {
	if retries < 0 {
		retries = 0
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		retries: retries,
	}
}

type shuffleResponse struct {
	DeckID    string `json:"deck_id"`
	Remaining int    `json:"remaining"`
	Shuffled  bool   `json:"shuffled"`
}

type drawResponse struct {
	DeckID    string `json:"deck_id"`
	Cards     []Card `json:"cards"`
	Remaining int    `json:"remaining"`
}

type pileListResponse struct {
	DeckID string `json:"deck_id"`
	Piles  map[string]struct {
		Cards []Card `json:"cards"`
	} `json:"piles"`
}

// ShuffleDeck allocates a fresh shuffled six-deck shoe.
func (c *HTTPClient) ShuffleDeck(ctx context.Context) (string, error) {
	var resp shuffleResponse
	path := "/api/deck/new/shuffle/?deck_count=6"
	if err := c.get(ctx, path, &resp); err != nil {
		return "", err
	}
	if resp.DeckID == "" {
		return "", fmt.Errorf("%w: shuffle returned no deck id", ErrProvider)
	}
	return resp.DeckID, nil
}

// DrawCards draws count cards from the shoe and files them into the
// named pile so they can be listed again later.
func (c *HTTPClient) DrawCards(ctx context.Context, deckID, pileID string, count int) ([]Card, error) {
	var drawn drawResponse
	path := fmt.Sprintf("/api/deck/%s/draw/?count=%d", url.PathEscape(deckID), count)
	if err := c.get(ctx, path, &drawn); err != nil {
		return nil, err
	}
	if len(drawn.Cards) != count {
		return nil, fmt.Errorf("%w: drew %d cards, wanted %d", ErrProvider, len(drawn.Cards), count)
	}

	codes := make([]string, len(drawn.Cards))
	for i, card := range drawn.Cards {
		codes[i] = card.Code
	}
	addPath := fmt.Sprintf("/api/deck/%s/pile/%s/add/?cards=%s",
		url.PathEscape(deckID), url.PathEscape(pileID), strings.Join(codes, ","))
	var addResp drawResponse
	if err := c.get(ctx, addPath, &addResp); err != nil {
		return nil, err
	}

	return drawn.Cards, nil
}

// ListPile returns the cards previously filed into a pile.
func (c *HTTPClient) ListPile(ctx context.Context, deckID, pileID string) ([]Card, error) {
	var resp pileListResponse
	path := fmt.Sprintf("/api/deck/%s/pile/%s/list/", url.PathEscape(deckID), url.PathEscape(pileID))
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	pile, ok := resp.Piles[pileID]
	if !ok {
		return nil, fmt.Errorf("%w: pile %s not found", ErrProvider, pileID)
	}
	return pile.Cards, nil
}

// get performs a GET with the configured bounded retry. Network errors
// and 5xx responses are retried, 4xx are not.
func (c *HTTPClient) get(ctx context.Context, path string, out interface{}) error {
	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * 100 * time.Millisecond):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return err
		}

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("%w: %v", ErrProvider, err)
			logger.Log.Warnf("Deck provider request failed (attempt %d): %v", attempt+1, err)
			continue
		}

		if resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = fmt.Errorf("%w: status %d", ErrProvider, resp.StatusCode)
			logger.Log.Warnf("Deck provider returned %d (attempt %d)", resp.StatusCode, attempt+1)
			continue
		}
		if resp.StatusCode >= 400 {
			resp.Body.Close()
			return fmt.Errorf("%w: status %d", ErrProvider, resp.StatusCode)
		}

		err = json.NewDecoder(resp.Body).Decode(out)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("%w: decode: %v", ErrProvider, err)
		}
		return nil
	}
	return lastErr
}
