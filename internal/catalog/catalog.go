package catalog

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ryanKinoti/LCS-v1/internal/account"
)

//go:embed services.json
var servicesJSON []byte

// Catalog is the shop's public price list.
type Catalog struct {
	Currency   string     `json:"currency"`
	Categories []Category `json:"categories"`
}

type Category struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Services    []Service `json:"services"`
}

type Service struct {
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	EstimatedTime Duration `json:"estimatedTime"`
	Prices        []Price  `json:"prices"`
}

// Price is what one service costs for one kind of device.
type Price struct {
	Device account.DeviceType `json:"device"`
	Amount int                `json:"price"`
	Work   string             `json:"work"`
}

// Duration decodes Go duration strings such as "1h30m".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Duration.String())
}

// Load decodes the embedded price list.
func Load() (*Catalog, error) {
	var c Catalog
	if err := json.Unmarshal(servicesJSON, &c); err != nil {
		return nil, fmt.Errorf("decode services catalog: %w", err)
	}
	for _, cat := range c.Categories {
		for _, s := range cat.Services {
			for _, p := range s.Prices {
				if !p.Device.Valid() {
					return nil, fmt.Errorf("service %q: unknown device %q", s.Name, p.Device)
				}
			}
		}
	}
	return &c, nil
}

// Find returns the price of service for device, matching names
// case-insensitively.
func (c *Catalog) Find(service string, device account.DeviceType) (Price, bool) {
	for _, cat := range c.Categories {
		for _, s := range cat.Services {
			if !strings.EqualFold(s.Name, service) {
				continue
			}
			for _, p := range s.Prices {
				if p.Device == device {
					return p, true
				}
			}
		}
	}
	return Price{}, false
}

// Count returns the number of categories and services.
func (c *Catalog) Count() (categories, services int) {
	for _, cat := range c.Categories {
		services += len(cat.Services)
	}
	return len(c.Categories), services
}

// Markdown renders the catalog as a Markdown document.
func (c *Catalog) Markdown() string {
	var b strings.Builder
	b.WriteString("# Services & Pricing\n\n")
	fmt.Fprintf(&b, "Open %s. Prices in %s.\n\n", account.BusinessHours, c.Currency)
	for _, cat := range c.Categories {
		fmt.Fprintf(&b, "## %s\n\n%s\n\n", cat.Name, cat.Description)
		for _, s := range cat.Services {
			fmt.Fprintf(&b, "### %s\n\n%s (about %s)\n\n", s.Name, s.Description, humanDuration(s.EstimatedTime.Duration))
			b.WriteString("| Device | Price | Work |\n|---|---:|---|\n")
			for _, p := range s.Prices {
				fmt.Fprintf(&b, "| %s | %s %s | %s |\n", account.Label(string(p.Device)), c.Currency, thousands(p.Amount), p.Work)
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}

func humanDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	switch {
	case h > 0 && m > 0:
		return fmt.Sprintf("%dh %dm", h, m)
	case h > 0:
		return fmt.Sprintf("%dh", h)
	}
	return fmt.Sprintf("%dm", m)
}

func thousands(n int) string {
	s := fmt.Sprintf("%d", n)
	var out []byte
	for i := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, s[i])
	}
	return string(out)
}
