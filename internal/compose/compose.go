// Package compose builds the outbound message for each inbound kind.
package compose

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"mediarelay/internal/domain"
)

//go:embed templates.yaml
var defaultCatalog []byte

// Catalog holds the kind templates, the fallback phrases and the map link base.
type Catalog struct {
	Templates map[domain.Kind]string `yaml:"templates"`
	Fallbacks map[domain.Kind]string `yaml:"fallbacks"`
	MapsURL   string                 `yaml:"mapsUrl"`
}

// templatedKinds need a template entry; text is forwarded verbatim.
var templatedKinds = []domain.Kind{
	domain.KindAudio, domain.KindImage, domain.KindDocument, domain.KindVideo, domain.KindLocation,
}

// DefaultCatalog returns the embedded catalog.
func DefaultCatalog() *Catalog {
	var c Catalog
	if err := yaml.Unmarshal(defaultCatalog, &c); err != nil {
		panic(fmt.Sprintf("compose: embedded templates.yaml: %v", err))
	}
	return &c
}

// LoadCatalog overlays the YAML file at path on the embedded catalog.
// An empty path or a missing file yields the embedded catalog.
func LoadCatalog(path string, logger *slog.Logger) (*Catalog, error) {
	c := DefaultCatalog()
	if path == "" {
		return c, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Debug("templates file does not exist, using embedded catalog", "path", path)
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read templates file: %w", err)
	}

	var override Catalog
	if err := yaml.Unmarshal(data, &override); err != nil {
		return nil, fmt.Errorf("parse templates file %s: %w", path, err)
	}
	for k, v := range override.Templates {
		c.Templates[k] = v
	}
	for k, v := range override.Fallbacks {
		c.Fallbacks[k] = v
	}
	if override.MapsURL != "" {
		c.MapsURL = override.MapsURL
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("templates file %s: %w", path, err)
	}
	logger.Info("loaded message templates", "path", path, "overrides", len(override.Templates))
	return c, nil
}

// Validate reports kinds that are unknown or lack a template.
func (c *Catalog) Validate() error {
	var errs []string
	for _, k := range templatedKinds {
		if _, ok := c.Templates[k]; !ok {
			errs = append(errs, fmt.Sprintf("missing template for %s", k))
		}
	}
	for k := range c.Templates {
		if !lo.Contains(domain.Kinds, k) {
			errs = append(errs, fmt.Sprintf("unknown kind %q", k))
		}
	}
	if c.MapsURL == "" {
		errs = append(errs, "mapsUrl is required")
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// Composer is pure: no I/O after construction.
type Composer struct {
	catalog *Catalog
}

func New(c *Catalog) *Composer {
	if c == nil {
		c = DefaultCatalog()
	}
	return &Composer{catalog: c}
}

// Compose builds the message for kind. lat and lng are used only for location.
func (c *Composer) Compose(kind domain.Kind, text, lat, lng string) (domain.ComposedMessage, error) {
	switch kind {
	case domain.KindText:
		if strings.TrimSpace(text) == "" {
			return domain.ComposedMessage{}, domain.Validationf(`Campo "text_content" é obrigatório para mensagens de texto`)
		}
		return domain.ComposedMessage{Kind: kind, Content: text}, nil

	case domain.KindLocation:
		lat, lng = strings.TrimSpace(lat), strings.TrimSpace(lng)
		if lat == "" || lng == "" {
			return domain.ComposedMessage{}, domain.Validationf(`Campos "latitude" e "longitude" são obrigatórios para localização`)
		}
		return domain.ComposedMessage{
			Kind:    kind,
			Content: c.catalog.Templates[kind] + c.MapLink(lat, lng),
		}, nil

	case domain.KindAudio, domain.KindImage, domain.KindDocument, domain.KindVideo:
		return domain.ComposedMessage{Kind: kind, Content: c.catalog.Templates[kind] + text}, nil
	}
	return domain.ComposedMessage{}, domain.Unsupportedf("Tipo de mensagem não suportado: %s", kind)
}

// MapLink returns the map URL for a coordinate pair, kept exactly as given.
func (c *Composer) MapLink(lat, lng string) string {
	return c.catalog.MapsURL + lat + "," + lng
}

// Fallback returns the phrase used when classification of kind fails.
func (c *Composer) Fallback(kind domain.Kind) string {
	if s, ok := c.catalog.Fallbacks[kind]; ok {
		return s
	}
	return "[Conteúdo indisponível]"
}

// Template exposes the prefix for kind, mainly for previews.
func (c *Composer) Template(kind domain.Kind) string {
	return c.catalog.Templates[kind]
}
