package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigCreatesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	config, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if config.Server == nil || config.Renderer == nil {
		t.Fatal("default config missing sections")
	}
	if config.Server.ApiAddr != ":7279" {
		t.Errorf("got api addr %q", config.Server.ApiAddr)
	}
	if config.Renderer.ErrorMode != "lenient" {
		t.Errorf("got error mode %q", config.Renderer.ErrorMode)
	}

	// The default config should have been written to disk.
	if _, err := os.Stat(path); err != nil {
		t.Errorf("default config file not written: %v", err)
	}
}

func TestConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	defaultText := "???"
	config := &Config{
		Server: &ServerConfig{
			ApiAddr:      ":9999",
			LogLevel:     "debug",
			DataDir:      "./testdata",
			DatabasePath: ":memory:",
		},
		Renderer: &RendererConfig{
			ErrorMode:       "strict",
			DefaultText:     &defaultText,
			KeepIndentation: true,
		},
	}
	if err := SaveConfig(path, config); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if loaded.Server.ApiAddr != ":9999" {
		t.Errorf("got api addr %q", loaded.Server.ApiAddr)
	}
	if loaded.Renderer.ErrorMode != "strict" {
		t.Errorf("got error mode %q", loaded.Renderer.ErrorMode)
	}
	if loaded.Renderer.DefaultText == nil || *loaded.Renderer.DefaultText != "???" {
		t.Errorf("got default text %v", loaded.Renderer.DefaultText)
	}
	if !loaded.Renderer.KeepIndentation {
		t.Error("keep_indentation not preserved")
	}
}

func TestRendererConfigOptions(t *testing.T) {
	if n := len(DefaultRendererConfig().Options()); n != 0 {
		t.Errorf("default config produced %d options, want 0", n)
	}

	defaultText := "-"
	full := &RendererConfig{
		ErrorMode:       "strict",
		DefaultText:     &defaultText,
		KeepIndentation: true,
	}
	if n := len(full.Options()); n != 3 {
		t.Errorf("got %d options, want 3", n)
	}
}
