package config

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/kjannette/dolarbot/internal/models"
)

//go:embed pairs.yaml
var defaultPairs []byte

type pairsFile struct {
	Pairs []models.Pair `yaml:"pairs" validate:"required,min=1,dive"`
}

// LoadPairs reads the tracked pair descriptors from path, or the embedded
// defaults when path is empty.
func LoadPairs(path string) ([]models.Pair, error) {
	data := defaultPairs
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read pairs: %w", err)
		}
		data = b
	}
	return ParsePairs(data)
}

func ParsePairs(data []byte) ([]models.Pair, error) {
	var f pairsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse pairs: %w", err)
	}
	if err := validator.New().Struct(f); err != nil {
		return nil, fmt.Errorf("validate pairs: %w", err)
	}

	seen := make(map[string]bool, len(f.Pairs))
	for _, p := range f.Pairs {
		if seen[p.Quote] {
			return nil, fmt.Errorf("validate pairs: duplicate quote currency %s", p.Quote)
		}
		seen[p.Quote] = true
	}
	return f.Pairs, nil
}
