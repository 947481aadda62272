package storage

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/Masterminds/sprig/v3"
)

// KeyRenderer renders output object keys with Sprig functions
type KeyRenderer struct {
	tmpl      *template.Template
	outputDir string
}

// KeyVariables are exposed to the key template
type KeyVariables struct {
	OutputDir string
	Name      string
	Date      time.Time
	// Stamp is Date formatted as YYYYMMDD
	Stamp string
}

// NewKeyRenderer parses the key template
func NewKeyRenderer(content, outputDir string) (*KeyRenderer, error) {
	tmpl, err := template.New("key").Funcs(sprig.TxtFuncMap()).Option("missingkey=error").Parse(content)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}

	return &KeyRenderer{
		tmpl:      tmpl,
		outputDir: strings.TrimSuffix(outputDir, "/"),
	}, nil
}

// Render returns the object key for the named table on the given date
func (k *KeyRenderer) Render(name string, date time.Time) (string, error) {
	var buf bytes.Buffer
	if err := k.tmpl.Execute(&buf, KeyVariables{
		OutputDir: k.outputDir,
		Name:      name,
		Date:      date,
		Stamp:     date.Format("20060102"),
	}); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}

	return strings.TrimPrefix(buf.String(), "/"), nil
}
