package composer

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Placeholder is replaced by the upper-cased situation in template text.
const Placeholder = "<situation>"

// TemplateCount is the number of meme templates.
const TemplateCount = 5

// Template is one meme layout: a background image and two text slots.
type Template struct {
	Image  string `yaml:"image" json:"image"`
	Top    string `yaml:"top" json:"topText"`
	Bottom string `yaml:"bottom" json:"bottomText"`
}

//go:embed templates.yaml
var templatesYAML []byte

var templates = mustParseTemplates(templatesYAML)

func mustParseTemplates(data []byte) []Template {
	t, err := parseTemplates(data)
	if err != nil {
		panic(err)
	}
	return t
}

func parseTemplates(data []byte) ([]Template, error) {
	var t []Template
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse meme templates: %w", err)
	}
	if len(t) != TemplateCount {
		return nil, fmt.Errorf("expected %d meme templates, got %d", TemplateCount, len(t))
	}
	for i, tpl := range t {
		if tpl.Image == "" {
			return nil, fmt.Errorf("meme template %d has no image", i)
		}
		if !strings.Contains(tpl.Top, Placeholder) && !strings.Contains(tpl.Bottom, Placeholder) {
			return nil, fmt.Errorf("meme template %d (%s) has no %s slot", i, tpl.Image, Placeholder)
		}
	}
	return t, nil
}

// Templates returns the template catalog in remix order.
func Templates() []Template {
	out := make([]Template, len(templates))
	copy(out, templates)
	return out
}

// Fill substitutes the situation into both text slots. Only the first
// placeholder in each slot is replaced.
func (t Template) Fill(situation string) (top, bottom string) {
	upper := strings.ToUpper(situation)
	return strings.Replace(t.Top, Placeholder, upper, 1), strings.Replace(t.Bottom, Placeholder, upper, 1)
}
