package service

import (
	"context"
	"errors"
	"fmt"

	"sophosia/internal/domain"
)

// ─────────────────────────────────────────────────────────────
// Window Size Persistence
// ─────────────────────────────────────────────────────────────
//
// Saves and restores the main Wails window size between sessions.
// Stored in the record store as a single appSettings record.

// WindowSize holds the saved window dimensions.
type WindowSize struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// WindowSettingsService persists window size between sessions.
type WindowSettingsService struct {
	docs domain.DocStore
}

// NewWindowSettingsService creates a WindowSettingsService.
func NewWindowSettingsService(docs domain.DocStore) *WindowSettingsService {
	return &WindowSettingsService{docs: docs}
}

const (
	dataTypeAppSettings = "appSettings"
	windowSettingsID    = "appSettings:window"
	defaultWindowWidth  = 1280
	defaultWindowHeight = 800
)

// LoadWindowSize returns the saved window dimensions, or sensible defaults.
func (s *WindowSettingsService) LoadWindowSize(ctx context.Context) WindowSize {
	w, h := defaultWindowWidth, defaultWindowHeight
	if s.docs != nil {
		if doc, err := s.docs.Get(ctx, windowSettingsID); err == nil {
			if saved, err := decodeDoc[WindowSize](doc); err == nil {
				w, h = saved.Width, saved.Height
			}
		}
	}

	if w < 800 {
		w = defaultWindowWidth
	}
	if h < 600 {
		h = defaultWindowHeight
	}
	return WindowSize{Width: w, Height: h}
}

// SaveWindowSize persists the current window dimensions.
func (s *WindowSettingsService) SaveWindowSize(ctx context.Context, width, height int) error {
	if s.docs == nil {
		return fmt.Errorf("window settings: no store")
	}
	rev := ""
	if cur, err := s.docs.Get(ctx, windowSettingsID); err == nil {
		rev = cur.Rev
	} else if !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("window settings: %w", err)
	}
	doc, err := encodeDoc(windowSettingsID, rev, dataTypeAppSettings, "", WindowSize{Width: width, Height: height})
	if err != nil {
		return err
	}
	if _, err := s.docs.Put(ctx, doc); err != nil {
		return fmt.Errorf("window settings: %w", err)
	}
	return nil
}
