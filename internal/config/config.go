package config

import (
	"errors"
	"fmt"
	"image"
	"os"
	"strconv"
	"strings"
	"time"
)

// EngineOption is one Name=Value pair from ENGINE_OPTIONS.
type EngineOption struct {
	Name  string
	Value string
}

type AppConfig struct {
	EnginePath         string
	EngineArgs         []string
	EngineOptions      []EngineOption
	EngineReadyTimeout time.Duration

	SearchDepth      int
	SearchMoveTimeMS int
	SearchNodes      int
	SearchTimeout    time.Duration

	Detector           string
	DetectorURL        string
	DetectorConfidence float64
	DetectorTimeout    time.Duration

	InputBackend  string
	CaptureRegion image.Rectangle
	BoardBounds   image.Rectangle

	PickDelay      time.Duration
	LegDelay       time.Duration
	SettleDelay    time.Duration
	PromotionDelay time.Duration
	ClickJitterPx  int
	PromotionOrder string

	AutoPollInterval time.Duration
	AutoSettleDelay  time.Duration
	VerifyReads      int
	VerifyReadDelay  time.Duration

	FeedAddr      string
	RedisURL      string
	JournalTTLSec int
	DatabaseURL   string

	MessagesLang string
	MessagesDir  string

	PilotColor string
	PilotAuto  bool
}

const (
	DetectorRemote  = "remote"
	DetectorPalette = "palette"

	InputXdo = "xdo"
	InputSim = "sim"
)

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		EngineReadyTimeout: 4 * time.Second,
		SearchDepth:        15,
		Detector:           DetectorRemote,
		DetectorConfidence: 0.7,
		DetectorTimeout:    8 * time.Second,
		InputBackend:       InputXdo,
		PickDelay:          60 * time.Millisecond,
		LegDelay:           200 * time.Millisecond,
		SettleDelay:        400 * time.Millisecond,
		PromotionDelay:     300 * time.Millisecond,
		ClickJitterPx:      4,
		PromotionOrder:     "qnrb",
		AutoPollInterval:   250 * time.Millisecond,
		AutoSettleDelay:    500 * time.Millisecond,
		VerifyReads:        2,
		VerifyReadDelay:    300 * time.Millisecond,
		JournalTTLSec:      86400,
		MessagesLang:       "ko",
	}

	// Engine
	cfg.EnginePath = env("ENGINE_PATH")
	cfg.EngineArgs = strings.Fields(env("ENGINE_ARGS"))
	if v := env("ENGINE_OPTIONS"); v != "" {
		opts, err := parseEngineOptions(v)
		if err != nil {
			return nil, err
		}
		cfg.EngineOptions = opts
	}
	if d, ok := envMillis("ENGINE_READY_TIMEOUT_MS"); ok {
		cfg.EngineReadyTimeout = d
	}

	// Search budget; an explicit movetime or node cap alone replaces the default depth.
	moveTime, hasMoveTime := envInt("SEARCH_MOVETIME_MS")
	nodes, hasNodes := envInt("SEARCH_NODES")
	if hasMoveTime || hasNodes {
		cfg.SearchDepth = 0
	}
	if n, ok := envInt("SEARCH_DEPTH"); ok {
		cfg.SearchDepth = n
	}
	if hasMoveTime {
		cfg.SearchMoveTimeMS = moveTime
	}
	if hasNodes {
		cfg.SearchNodes = nodes
	}
	if d, ok := envMillis("SEARCH_TIMEOUT_MS"); ok {
		cfg.SearchTimeout = d
	}

	// Detector
	if v := strings.ToLower(env("DETECTOR")); v != "" {
		cfg.Detector = v
	}
	cfg.DetectorURL = env("DETECTOR_URL")
	if v := env("DETECTOR_CONFIDENCE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 && f <= 1 {
			cfg.DetectorConfidence = f
		}
	}
	if d, ok := envMillis("DETECTOR_TIMEOUT_MS"); ok {
		cfg.DetectorTimeout = d
	}

	// Input
	if v := strings.ToLower(env("INPUT_BACKEND")); v != "" {
		cfg.InputBackend = v
	}
	if v := env("CAPTURE_REGION"); v != "" {
		r, err := ParseRect(v)
		if err != nil {
			return nil, fmt.Errorf("CAPTURE_REGION: %w", err)
		}
		cfg.CaptureRegion = r
	}
	if v := env("BOARD_BOUNDS"); v != "" {
		r, err := ParseRect(v)
		if err != nil {
			return nil, fmt.Errorf("BOARD_BOUNDS: %w", err)
		}
		cfg.BoardBounds = r
	}

	// Executor
	if d, ok := envMillis("PICK_DELAY_MS"); ok {
		cfg.PickDelay = d
	}
	if d, ok := envMillis("LEG_DELAY_MS"); ok {
		cfg.LegDelay = d
	}
	if d, ok := envMillis("SETTLE_DELAY_MS"); ok {
		cfg.SettleDelay = d
	}
	if d, ok := envMillis("PROMOTION_DELAY_MS"); ok {
		cfg.PromotionDelay = d
	}
	if n, ok := envInt("CLICK_JITTER_PX"); ok {
		cfg.ClickJitterPx = n
	}
	if v := env("PROMOTION_ORDER"); v != "" {
		cfg.PromotionOrder = strings.ToLower(v)
	}

	// Auto play and verification
	if d, ok := envMillis("AUTO_POLL_INTERVAL_MS"); ok && d > 0 {
		cfg.AutoPollInterval = d
	}
	if d, ok := envMillis("AUTO_SETTLE_DELAY_MS"); ok {
		cfg.AutoSettleDelay = d
	}
	if n, ok := envInt("VERIFY_READS"); ok && n > 0 {
		cfg.VerifyReads = n
	}
	if d, ok := envMillis("VERIFY_READ_DELAY_MS"); ok {
		cfg.VerifyReadDelay = d
	}

	// Feed and storage
	cfg.FeedAddr = env("FEED_ADDR")
	cfg.RedisURL = env("REDIS_URL")
	cfg.DatabaseURL = env("DATABASE_URL")
	if n, ok := envInt("JOURNAL_TTL_SEC"); ok && n > 0 {
		cfg.JournalTTLSec = n
	}

	if v := strings.ToLower(env("MESSAGES_LANG")); v != "" {
		cfg.MessagesLang = v
	}
	cfg.MessagesDir = env("MESSAGES_DIR")

	cfg.PilotColor = strings.ToLower(env("PILOT_COLOR"))
	if v := env("PILOT_AUTO"); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			cfg.PilotAuto = b
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AppConfig) validate() error {
	if c.EnginePath == "" {
		return errors.New("ENGINE_PATH is required")
	}
	if c.SearchDepth <= 0 && c.SearchMoveTimeMS <= 0 && c.SearchNodes <= 0 {
		return errors.New("one of SEARCH_DEPTH, SEARCH_MOVETIME_MS, SEARCH_NODES must be positive")
	}
	switch c.Detector {
	case DetectorRemote:
		if c.DetectorURL == "" {
			return errors.New("DETECTOR_URL is required for the remote detector")
		}
	case DetectorPalette:
		if c.BoardBounds.Empty() {
			return errors.New("BOARD_BOUNDS is required for the palette detector")
		}
	default:
		return fmt.Errorf("DETECTOR %q is not supported", c.Detector)
	}
	switch c.InputBackend {
	case InputXdo:
		if c.CaptureRegion.Empty() {
			return errors.New("CAPTURE_REGION is required for the xdo backend")
		}
	case InputSim:
	default:
		return fmt.Errorf("INPUT_BACKEND %q is not supported", c.InputBackend)
	}
	if c.PilotColor != "" && c.PilotColor != "white" && c.PilotColor != "black" {
		return fmt.Errorf("PILOT_COLOR %q must be white or black", c.PilotColor)
	}
	return nil
}

// ParseRect reads "x,y,w,h" into a rectangle.
func ParseRect(s string) (image.Rectangle, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return image.Rectangle{}, fmt.Errorf("want x,y,w,h, got %q", s)
	}
	var n [4]int
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return image.Rectangle{}, fmt.Errorf("bad number %q", p)
		}
		n[i] = v
	}
	if n[2] <= 0 || n[3] <= 0 {
		return image.Rectangle{}, fmt.Errorf("empty rectangle %q", s)
	}
	return image.Rect(n[0], n[1], n[0]+n[2], n[1]+n[3]), nil
}

func parseEngineOptions(s string) ([]EngineOption, error) {
	var out []EngineOption
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, value, ok := strings.Cut(part, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("ENGINE_OPTIONS: bad entry %q", part)
		}
		out = append(out, EngineOption{Name: name, Value: strings.TrimSpace(value)})
	}
	return out, nil
}

func env(k string) string { return strings.TrimSpace(os.Getenv(k)) }

func envInt(k string) (int, bool) {
	v := env(k)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func envMillis(k string) (time.Duration, bool) {
	n, ok := envInt(k)
	if !ok {
		return 0, false
	}
	return time.Duration(n) * time.Millisecond, true
}
