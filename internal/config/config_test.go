package config

import (
	"image"
	"strings"
	"testing"
	"time"
)

func setBase(t *testing.T) {
	t.Helper()
	t.Setenv("ENGINE_PATH", "/usr/bin/stockfish")
	t.Setenv("DETECTOR_URL", "http://127.0.0.1:8000/predict")
	t.Setenv("CAPTURE_REGION", "0,0,1920,1080")
}

func TestLoadDefaults(t *testing.T) {
	setBase(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.SearchDepth != 15 || cfg.SearchMoveTimeMS != 0 {
		t.Fatalf("search defaults: depth=%d movetime=%d", cfg.SearchDepth, cfg.SearchMoveTimeMS)
	}
	if cfg.EngineReadyTimeout != 4*time.Second {
		t.Fatalf("ready timeout = %s", cfg.EngineReadyTimeout)
	}
	if cfg.Detector != DetectorRemote || cfg.InputBackend != InputXdo {
		t.Fatalf("backends = %s/%s", cfg.Detector, cfg.InputBackend)
	}
	if cfg.CaptureRegion != image.Rect(0, 0, 1920, 1080) {
		t.Fatalf("capture region = %v", cfg.CaptureRegion)
	}
	if cfg.VerifyReads != 2 || cfg.PromotionOrder != "qnrb" || cfg.MessagesLang != "ko" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.JournalTTLSec != 86400 {
		t.Fatalf("journal ttl = %d", cfg.JournalTTLSec)
	}
}

func TestLoadOverrides(t *testing.T) {
	setBase(t)
	t.Setenv("ENGINE_ARGS", "--threads 2")
	t.Setenv("ENGINE_OPTIONS", "Hash=64; Skill Level=10")
	t.Setenv("SEARCH_MOVETIME_MS", "500")
	t.Setenv("DETECTOR", "palette")
	t.Setenv("BOARD_BOUNDS", "100,120,400,400")
	t.Setenv("INPUT_BACKEND", "SIM")
	t.Setenv("PICK_DELAY_MS", "0")
	t.Setenv("PILOT_COLOR", "Black")
	t.Setenv("PILOT_AUTO", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if strings.Join(cfg.EngineArgs, "|") != "--threads|2" {
		t.Fatalf("engine args = %q", cfg.EngineArgs)
	}
	want := []EngineOption{{Name: "Hash", Value: "64"}, {Name: "Skill Level", Value: "10"}}
	if len(cfg.EngineOptions) != len(want) {
		t.Fatalf("engine options = %+v", cfg.EngineOptions)
	}
	for i := range want {
		if cfg.EngineOptions[i] != want[i] {
			t.Fatalf("option %d = %+v, want %+v", i, cfg.EngineOptions[i], want[i])
		}
	}
	if cfg.SearchDepth != 0 || cfg.SearchMoveTimeMS != 500 {
		t.Fatalf("movetime alone should replace depth: depth=%d movetime=%d", cfg.SearchDepth, cfg.SearchMoveTimeMS)
	}
	if cfg.BoardBounds != image.Rect(100, 120, 500, 520) {
		t.Fatalf("board bounds = %v", cfg.BoardBounds)
	}
	if cfg.InputBackend != InputSim || cfg.PickDelay != 0 {
		t.Fatalf("input = %s pick = %s", cfg.InputBackend, cfg.PickDelay)
	}
	if cfg.PilotColor != "black" || !cfg.PilotAuto {
		t.Fatalf("pilot = %s auto=%v", cfg.PilotColor, cfg.PilotAuto)
	}
}

func TestLoadRequiredFields(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"engine", map[string]string{"ENGINE_PATH": ""}, "ENGINE_PATH"},
		{"detector url", map[string]string{"DETECTOR_URL": ""}, "DETECTOR_URL"},
		{"capture region", map[string]string{"CAPTURE_REGION": ""}, "CAPTURE_REGION"},
		{"palette bounds", map[string]string{"DETECTOR": "palette"}, "BOARD_BOUNDS"},
		{"bad detector", map[string]string{"DETECTOR": "ocr"}, "DETECTOR"},
		{"bad region", map[string]string{"CAPTURE_REGION": "1,2,3"}, "CAPTURE_REGION"},
		{"bad color", map[string]string{"PILOT_COLOR": "red"}, "PILOT_COLOR"},
		{"bad option", map[string]string{"ENGINE_OPTIONS": "Hash"}, "ENGINE_OPTIONS"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			setBase(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %v, want mention of %s", err, tc.want)
			}
		})
	}
}

func TestParseRect(t *testing.T) {
	r, err := ParseRect(" 10, 20 ,30,40")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if r != image.Rect(10, 20, 40, 60) {
		t.Fatalf("rect = %v", r)
	}
	for _, bad := range []string{"", "1,2,3,x", "1,2,0,5"} {
		if _, err := ParseRect(bad); err == nil {
			t.Fatalf("ParseRect(%q) should fail", bad)
		}
	}
}
