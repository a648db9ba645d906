// Package config resolves the effective widget configuration from host
// overrides, documented defaults and environment variables. Precedence:
// defaults <- host overrides <- environment.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
)

// ErrMissingCodeID is returned when no embed code id is supplied.
// The widget must not mount without one.
var ErrMissingCodeID = errors.New("config: embed code id is required")

// Position is the corner of the host page the widget anchors to.
type Position string

const (
	PositionBottomRight Position = "bottom-right"
	PositionBottomLeft  Position = "bottom-left"
	PositionTopRight    Position = "top-right"
	PositionTopLeft     Position = "top-left"
)

func validPosition(p Position) bool {
	switch p {
	case PositionBottomRight, PositionBottomLeft, PositionTopRight, PositionTopLeft:
		return true
	}
	return false
}

// Config is the fully resolved widget configuration. It is built once by
// Resolve and never mutated afterwards.
type Config struct {
	CodeID          string        `json:"code_id" env:"CCGPT_WIDGET_CODE_ID"`
	APIBase         string        `json:"api_base" env:"CCGPT_WIDGET_API_BASE"`
	WSBase          string        `json:"ws_base" env:"CCGPT_WIDGET_WS_BASE"`
	Title           string        `json:"title" env:"CCGPT_WIDGET_TITLE"`
	Placeholder     string        `json:"placeholder" env:"CCGPT_WIDGET_PLACEHOLDER"`
	PrimaryColor    string        `json:"primary_color" env:"CCGPT_WIDGET_PRIMARY_COLOR"`
	Position        Position      `json:"position" env:"CCGPT_WIDGET_POSITION"`
	ShowAvatar      bool          `json:"show_avatar" env:"CCGPT_WIDGET_SHOW_AVATAR"`
	AvatarURL       string        `json:"avatar_url" env:"CCGPT_WIDGET_AVATAR_URL"`
	WelcomeMessage  string        `json:"welcome_message" env:"CCGPT_WIDGET_WELCOME_MESSAGE"`
	WelcomeMessages []string      `json:"welcome_messages" env:"CCGPT_WIDGET_WELCOME_MESSAGES"`
	MaxMessages     int           `json:"max_messages" env:"CCGPT_WIDGET_MAX_MESSAGES"`
	SoundEnabled    bool          `json:"sound_enabled" env:"CCGPT_WIDGET_SOUND_ENABLED"`
	TypingIndicator bool          `json:"typing_indicator" env:"CCGPT_WIDGET_TYPING_INDICATOR"`
	ZIndex          int           `json:"z_index" env:"CCGPT_WIDGET_Z_INDEX"`
	RequestTimeout  time.Duration `json:"request_timeout" env:"CCGPT_WIDGET_REQUEST_TIMEOUT"`
}

// Overrides is the partial configuration a host supplies. Every field is
// optional except CodeID. Pointer fields distinguish "unset" from an
// explicit false.
type Overrides struct {
	CodeID          string        `json:"code_id"`
	APIBase         string        `json:"api_base"`
	WSBase          string        `json:"ws_base"`
	Title           string        `json:"title"`
	Placeholder     string        `json:"placeholder"`
	PrimaryColor    string        `json:"primary_color"`
	Position        string        `json:"position"`
	ShowAvatar      *bool         `json:"show_avatar"`
	AvatarURL       string        `json:"avatar_url"`
	WelcomeMessage  string        `json:"welcome_message"`
	WelcomeMessages []string      `json:"welcome_messages"`
	MaxMessages     int           `json:"max_messages"`
	SoundEnabled    *bool         `json:"sound_enabled"`
	TypingIndicator *bool         `json:"typing_indicator"`
	ZIndex          int           `json:"z_index"`
	RequestTimeout  time.Duration `json:"request_timeout"`
}

// Default returns the documented defaults for every field except CodeID,
// which has no default.
func Default() Config {
	return Config{
		APIBase:         "http://localhost:18800",
		WSBase:          "ws://localhost:18800",
		Title:           "Customer Support",
		Placeholder:     "Type your message...",
		PrimaryColor:    "#6c5ce7",
		Position:        PositionBottomRight,
		ShowAvatar:      true,
		MaxMessages:     50,
		SoundEnabled:    true,
		TypingIndicator: true,
		ZIndex:          999999,
		RequestTimeout:  30 * time.Second,
	}
}

// Resolve merges host overrides over the defaults, applies environment
// overrides on top and validates the result. Host values win field-by-field;
// an invalid position or a MaxMessages below 1 falls back to the default
// rather than failing the mount.
func Resolve(o Overrides) (*Config, error) {
	cfg := Default()

	cfg.CodeID = o.CodeID
	if o.APIBase != "" {
		cfg.APIBase = o.APIBase
	}
	if o.WSBase != "" {
		cfg.WSBase = o.WSBase
	}
	if o.Title != "" {
		cfg.Title = o.Title
	}
	if o.Placeholder != "" {
		cfg.Placeholder = o.Placeholder
	}
	if o.PrimaryColor != "" {
		cfg.PrimaryColor = o.PrimaryColor
	}
	if o.Position != "" && validPosition(Position(o.Position)) {
		cfg.Position = Position(o.Position)
	}
	if o.ShowAvatar != nil {
		cfg.ShowAvatar = *o.ShowAvatar
	}
	if o.AvatarURL != "" {
		cfg.AvatarURL = o.AvatarURL
	}
	if o.WelcomeMessage != "" {
		cfg.WelcomeMessage = o.WelcomeMessage
	}
	if len(o.WelcomeMessages) > 0 {
		cfg.WelcomeMessages = append([]string(nil), o.WelcomeMessages...)
	}
	if o.MaxMessages >= 1 {
		cfg.MaxMessages = o.MaxMessages
	}
	if o.SoundEnabled != nil {
		cfg.SoundEnabled = *o.SoundEnabled
	}
	if o.TypingIndicator != nil {
		cfg.TypingIndicator = *o.TypingIndicator
	}
	if o.ZIndex > 0 {
		cfg.ZIndex = o.ZIndex
	}
	if o.RequestTimeout > 0 {
		cfg.RequestTimeout = o.RequestTimeout
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("config: parsing environment: %w", err)
	}

	if cfg.CodeID == "" {
		return nil, ErrMissingCodeID
	}
	if !validPosition(cfg.Position) {
		cfg.Position = PositionBottomRight
	}
	if cfg.MaxMessages < 1 {
		cfg.MaxMessages = Default().MaxMessages
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = Default().RequestTimeout
	}

	return &cfg, nil
}

// LoadFile reads host overrides from a JSON file. A missing file is not an
// error; it yields empty overrides, matching how a page without a config
// object behaves.
func LoadFile(path string) (Overrides, error) {
	var o Overrides

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return o, nil
		}
		return o, fmt.Errorf("config: reading %s: %w", path, err)
	}

	if err := json.Unmarshal(data, &o); err != nil {
		return o, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	return o, nil
}
