package catalog

import (
	"strings"
	"testing"
	"time"

	"github.com/ryanKinoti/LCS-v1/internal/account"
)

func TestLoad(t *testing.T) {
	c, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cats, services := c.Count()
	if cats != 4 || services != 7 {
		t.Errorf("Count() = %d, %d, want 4, 7", cats, services)
	}
	if c.Currency != "KES" {
		t.Errorf("Currency = %q, want KES", c.Currency)
	}
}

func TestFind(t *testing.T) {
	c, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		service string
		device  account.DeviceType
		want    int
		found   bool
	}{
		{"Screen Replacement", account.DeviceLaptop, 15000, true},
		{"screen replacement", account.DeviceDesktop, 20000, true},
		{"Deep Cleaning", account.DevicePrinter, 2500, true},
		{"Battery Replacement", account.DeviceDesktop, 0, false},
		{"Teleportation", account.DeviceLaptop, 0, false},
	}
	for _, tt := range tests {
		p, ok := c.Find(tt.service, tt.device)
		if ok != tt.found || p.Amount != tt.want {
			t.Errorf("Find(%q, %s) = %d, %v, want %d, %v", tt.service, tt.device, p.Amount, ok, tt.want, tt.found)
		}
	}
}

func TestMarkdown(t *testing.T) {
	c, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	md := c.Markdown()
	for _, want := range []string{"## Hardware Repairs", "| Laptop | KES 15,000 |", "about 1h 30m", account.BusinessHours} {
		if !strings.Contains(md, want) {
			t.Errorf("Markdown missing %q", want)
		}
	}
}

func TestHelpers(t *testing.T) {
	if got := thousands(1500000); got != "1,500,000" {
		t.Errorf("thousands = %q", got)
	}
	if got := thousands(950); got != "950" {
		t.Errorf("thousands = %q", got)
	}
	if got := humanDuration(45 * time.Minute); got != "45m" {
		t.Errorf("humanDuration = %q", got)
	}
	if got := humanDuration(2 * time.Hour); got != "2h" {
		t.Errorf("humanDuration = %q", got)
	}
}
