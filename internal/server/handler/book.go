package handler

import (
	"net/http"
	"time"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// BookHandler serves the current live book views.
type BookHandler struct {
	feeds FeedSource
}

// NewBookHandler creates a BookHandler reading from the given feed source.
func NewBookHandler(feeds FeedSource) *BookHandler {
	return &BookHandler{feeds: feeds}
}

type bookLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

type bookView struct {
	Symbol     string      `json:"symbol"`
	Venue      string      `json:"venue"`
	Bids       []bookLevel `json:"bids"`
	Asks       []bookLevel `json:"asks"`
	UpdateID   int64       `json:"update_id"`
	CapturedAt string      `json:"captured_at"`
	AgeMs      int64       `json:"age_ms"`
}

func levels(in []domain.PriceLevel) []bookLevel {
	out := make([]bookLevel, len(in))
	for i, l := range in {
		out[i] = bookLevel{Price: l.Price.String(), Size: l.Size.String()}
	}
	return out
}

// GetBooks responds with the latest snapshot per venue.
// GET /api/v1/books
func (h *BookHandler) GetBooks(w http.ResponseWriter, r *http.Request) {
	books := map[string]any{}
	for _, v := range []domain.Venue{domain.VenueMEXC, domain.VenueBingX} {
		snap, ok := h.feeds.Snapshot(v)
		if !ok {
			books[string(v)] = nil
			continue
		}
		books[string(v)] = bookView{
			Symbol:     snap.Symbol,
			Venue:      string(snap.Venue),
			Bids:       levels(snap.Bids),
			Asks:       levels(snap.Asks),
			UpdateID:   snap.UpdateID,
			CapturedAt: snap.CapturedAt.UTC().Format(time.RFC3339Nano),
			AgeMs:      h.feeds.Age(v).Milliseconds(),
		}
	}
	writeJSON(w, http.StatusOK, books)
}
