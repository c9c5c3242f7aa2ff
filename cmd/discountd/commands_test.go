package main

import (
	"strings"
	"testing"

	"github.com/Baldasarre/DiscountNotifier-sub000/internal/catalog"
)

func TestNoColorFlag(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()

	noColor = true
	result := colorize(colorGreen, "test message")
	if strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=true should not contain ANSI codes, got %q", result)
	}
	if result != "test message" {
		t.Errorf("result = %q, want %q", result, "test message")
	}

	noColor = false
	result = colorize(colorGreen, "test message")
	if !strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=false should contain ANSI codes, got %q", result)
	}
}

func TestScrapeCommand_MissingArgs(t *testing.T) {
	defer rootCmd.SetArgs(nil)

	rootCmd.SetArgs([]string{"scrape"})
	err := rootCmd.Execute()
	if err == nil {
		t.Fatal("expected error for missing args")
	}
	if !strings.Contains(err.Error(), "arg") {
		t.Errorf("error = %q, want it to mention args", err.Error())
	}
}

func TestDefaultRegistryCoversScrapeTargets(t *testing.T) {
	sources := catalog.DefaultRegistry().Sources()
	if len(sources) != 7 {
		t.Fatalf("sources = %d, want 7", len(sources))
	}
	for _, src := range sources {
		if src.ID == "all" {
			t.Fatal(`"all" is reserved as the scrape-everything target`)
		}
	}
}
