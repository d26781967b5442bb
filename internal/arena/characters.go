package arena

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed characters.yaml
var defaultCharactersYAML []byte

var ErrEmptyCatalog = errors.New("character catalog is empty")

type Stats struct {
	HP              float64 `yaml:"hp" json:"hp"`
	Speed           float64 `yaml:"speed" json:"speed"`
	Damage          float64 `yaml:"damage" json:"damage"`
	KnockbackResist float64 `yaml:"knockback_resist" json:"knockback_resist"`
	HitboxScale     float64 `yaml:"hitbox_scale" json:"hitbox_scale"`
}

type MoveNames struct {
	Basic   string `yaml:"basic" json:"basic"`
	Special string `yaml:"special" json:"special"`
	Ult     string `yaml:"ult" json:"ult"`
}

type Character struct {
	ID          string    `yaml:"id" json:"id"`
	DisplayName string    `yaml:"display_name" json:"display_name"`
	Color       string    `yaml:"color" json:"color"`
	Archetype   string    `yaml:"archetype" json:"archetype,omitempty"`
	Stats       Stats     `yaml:"stats" json:"stats"`
	MoveNames   MoveNames `yaml:"move_names" json:"move_names"`
}

// Catalog is the static character list, read once at startup and shared
// read-only by every arena room.
type Catalog struct {
	order []string
	byID  map[string]Character
}

func ParseCatalog(data []byte) (*Catalog, error) {
	var list []Character
	if err := yaml.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("parse characters: %w", err)
	}
	c := &Catalog{byID: make(map[string]Character, len(list))}
	for _, ch := range list {
		ch.ID = strings.ToLower(strings.TrimSpace(ch.ID))
		if ch.ID == "" {
			continue
		}
		if _, dup := c.byID[ch.ID]; dup {
			return nil, fmt.Errorf("parse characters: duplicate id %q", ch.ID)
		}
		c.byID[ch.ID] = withStatDefaults(ch)
		c.order = append(c.order, ch.ID)
	}
	if len(c.order) == 0 {
		return nil, ErrEmptyCatalog
	}
	return c, nil
}

// LoadCatalog reads a YAML catalog from path, or the built-in one when path
// is empty.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read characters: %w", err)
	}
	return ParseCatalog(data)
}

func DefaultCatalog() *Catalog {
	c, err := ParseCatalog(defaultCharactersYAML)
	if err != nil {
		panic(err)
	}
	return c
}

func withStatDefaults(ch Character) Character {
	if ch.DisplayName == "" {
		ch.DisplayName = ch.ID
	}
	s := &ch.Stats
	if s.HP <= 0 {
		s.HP = 100
	}
	if s.Speed <= 0 {
		s.Speed = 180
	}
	if s.Damage <= 0 {
		s.Damage = 1
	}
	if s.KnockbackResist <= 0 {
		s.KnockbackResist = 1
	}
	if s.HitboxScale <= 0 {
		s.HitboxScale = 1
	}
	return ch
}

func (c *Catalog) Get(id string) (Character, bool) {
	ch, ok := c.byID[id]
	return ch, ok
}

// Lookup falls back to the default character for unknown ids.
func (c *Catalog) Lookup(id string) Character {
	if ch, ok := c.byID[id]; ok {
		return ch
	}
	return c.Default()
}

func (c *Catalog) Default() Character { return c.byID[c.order[0]] }

func (c *Catalog) All() []Character {
	out := make([]Character, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.byID[id])
	}
	return out
}
