package deck

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/wfunc/blackjackserver/logger"
)

func TestMain(m *testing.M) {
	logger.Init()
	m.Run()
}

func newClient(server *httptest.Server, retries int) *HTTPClient {
	return NewHTTPClient(server.URL, 2*time.Second, retries)
}

func TestShuffleDeck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/deck/new/shuffle/" {
			t.Errorf("Unexpected path: %s", r.URL.Path)
		}
		if r.URL.Query().Get("deck_count") != "6" {
			t.Errorf("Expected a six-deck shoe, got deck_count=%s", r.URL.Query().Get("deck_count"))
		}
		fmt.Fprint(w, `{"success":true,"deck_id":"abc123","remaining":312,"shuffled":true}`)
	}))
	defer server.Close()

	deckID, err := newClient(server, 0).ShuffleDeck(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if deckID != "abc123" {
		t.Errorf("Expected deck id abc123, got %s", deckID)
	}
}

func TestDrawCardsFilesThePile(t *testing.T) {
	var addCalled bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/draw/"):
			fmt.Fprint(w, `{"deck_id":"abc123","cards":[{"code":"KH","suit":"HEARTS","value":"KING"},{"code":"9S","suit":"SPADES","value":"9"}],"remaining":310}`)
		case strings.Contains(r.URL.Path, "/pile/hand1/add/"):
			addCalled = true
			if got := r.URL.Query().Get("cards"); got != "KH,9S" {
				t.Errorf("Expected cards=KH,9S, got %s", got)
			}
			fmt.Fprint(w, `{"success":true}`)
		default:
			t.Errorf("Unexpected path: %s", r.URL.Path)
		}
	}))
	defer server.Close()

	cards, err := newClient(server, 0).DrawCards(context.Background(), "abc123", "hand1", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(cards) != 2 || cards[0].Value != "KING" || cards[1].Value != "9" {
		t.Errorf("Unexpected cards: %+v", cards)
	}
	if !addCalled {
		t.Error("Drawn cards should be filed into the pile")
	}
}

func TestDrawCardsShortDraw(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"deck_id":"abc123","cards":[{"code":"KH","value":"KING"}],"remaining":0}`)
	}))
	defer server.Close()

	_, err := newClient(server, 0).DrawCards(context.Background(), "abc123", "hand1", 2)
	if !errors.Is(err, ErrProvider) {
		t.Errorf("Short draw should be ErrProvider, got %v", err)
	}
}

func TestRetryOn5xxThenSuccess(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts <= 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{"deck_id":"abc123","shuffled":true}`)
	}))
	defer server.Close()

	deckID, err := newClient(server, 2).ShuffleDeck(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if deckID != "abc123" {
		t.Errorf("Expected recovery after retries, got %s", deckID)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
}

func TestRetriesAreBounded(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := newClient(server, 2).ShuffleDeck(context.Background())
	if !errors.Is(err, ErrProvider) {
		t.Fatalf("Expected ErrProvider after exhausting retries, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("Expected exactly 3 attempts for retries=2, got %d", attempts)
	}
}

func TestNoRetryOn4xx(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	_, err := newClient(server, 3).ShuffleDeck(context.Background())
	if !errors.Is(err, ErrProvider) {
		t.Fatalf("Expected ErrProvider, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("4xx must not be retried, got %d attempts", attempts)
	}
}

func TestListPile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"deck_id":"abc123","piles":{"hand1":{"cards":[{"code":"KH","value":"KING"}]}}}`)
	}))
	defer server.Close()

	cards, err := newClient(server, 0).ListPile(context.Background(), "abc123", "hand1")
	if err != nil {
		t.Fatal(err)
	}
	if len(cards) != 1 || cards[0].Code != "KH" {
		t.Errorf("Unexpected pile contents: %+v", cards)
	}
}
