package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"open-dio/models"
)

// ModelConfig is the immutable model configuration supplied at build time:
// categories, the flow classification table, tolerances and comparison
// constants. It is loaded once and shared read-only.
type ModelConfig struct {
	ModelVersion            string                          `yaml:"model_version" validate:"required"`
	ImpactCategories        []models.ImpactCategory         `yaml:"impact_categories" validate:"required,min=1,dive"`
	FlowCategories          []models.FlowCategory           `yaml:"flow_categories" validate:"required,min=1,dive"`
	CharacterizationFactors []models.CharacterizationFactor `yaml:"characterization_factors" validate:"dive"`
	UnitConversions         []models.UnitConversion         `yaml:"unit_conversions" validate:"dive"`
	Classification          ClassificationConfig            `yaml:"classification"`
	Leontief                LeontiefConfig                  `yaml:"leontief"`
	Crosswalk               CrosswalkConfig                 `yaml:"crosswalk"`
	Comparisons             []ComparisonConfig              `yaml:"comparisons" validate:"dive"`
	PriorityKeywords        []string                        `yaml:"priority_keywords"`
}

// ClassificationConfig is the versioned flow → flow category table.
type ClassificationConfig struct {
	Version         string                      `yaml:"version" validate:"required"`
	KeywordFallback bool                        `yaml:"keyword_fallback"`
	Rules           []models.ClassificationRule `yaml:"rules" validate:"dive"`
}

// LeontiefConfig bounds the inversion and its round-trip validation.
type LeontiefConfig struct {
	MaxConditionNumber float64 `yaml:"max_condition_number" validate:"gt=1"`
	OutputTolerance    float64 `yaml:"output_tolerance" validate:"gt=0,lt=1"`
	MinPassShare       float64 `yaml:"min_pass_share" validate:"gt=0,lte=1"`
	BlockSize          int     `yaml:"block_size" validate:"gte=1"`
	DiagnosticSectors  int     `yaml:"diagnostic_sectors" validate:"gte=1"`
	ClampTolerance     float64 `yaml:"clamp_tolerance" validate:"gte=0"`
}

// CrosswalkConfig lists the prefix lengths tried in order.
type CrosswalkConfig struct {
	Levels             []int   `yaml:"levels" validate:"required,min=1,dive,gt=0"`
	WeightTolerance    float64 `yaml:"weight_tolerance" validate:"gt=0"`
	MatchInternalCodes bool    `yaml:"match_internal_codes"`
}

// ComparisonConfig is one lay equivalent: how many kg CO2e one unit stands for.
type ComparisonConfig struct {
	Key         string  `yaml:"key" validate:"required"`
	Label       string  `yaml:"label" validate:"required"`
	KgPerUnit   float64 `yaml:"kg_per_unit" validate:"gt=0"`
	Description string  `yaml:"description"`
}

var modelValidate = validator.New()

// DefaultModelConfig returns the built-in model configuration: GWP100
// weights for the common greenhouse gases and EPA equivalency factors.
func DefaultModelConfig() *ModelConfig {
	return &ModelConfig{
		ModelVersion: "DIO v2.0",
		ImpactCategories: []models.ImpactCategory{
			{Code: "GHG", Key: "GHG", Name: "Greenhouse Gas Emissions", Unit: "kg CO2 eq",
				Description: "Total CO2 equivalent emissions",
				ClassificationKeywords: []string{"carbon dioxide", "co2"}, KeywordFlowCategory: "CO2"},
			{Code: "ENERGY", Key: "Energy", Name: "Energy Use", Unit: "MJ",
				Description: "Total energy consumption",
				ClassificationKeywords: []string{"energy"}, KeywordFlowCategory: "ENERGY"},
			{Code: "WATER", Key: "Water", Name: "Water Consumption", Unit: "gallons",
				Description: "Total freshwater use",
				ClassificationKeywords: []string{"water"}, KeywordFlowCategory: "WATER"},
			{Code: "LAND", Key: "Land", Name: "Land Use", Unit: "m2-year",
				Description: "Total land occupation",
				ClassificationKeywords: []string{"occupation"}, KeywordFlowCategory: "LAND"},
		},
		FlowCategories: []models.FlowCategory{
			{Code: "CO2", Unit: "kg"},
			{Code: "CH4", Unit: "kg"},
			{Code: "N2O", Unit: "kg"},
			{Code: "ENERGY", Unit: "MJ"},
			{Code: "WATER", Unit: "gal"},
			{Code: "LAND", Unit: "m2*a"},
		},
		CharacterizationFactors: []models.CharacterizationFactor{
			{FlowCategory: "CO2", ImpactCategory: "GHG", Factor: 1},
			{FlowCategory: "CH4", ImpactCategory: "GHG", Factor: 28},
			{FlowCategory: "N2O", ImpactCategory: "GHG", Factor: 265},
			{FlowCategory: "ENERGY", ImpactCategory: "ENERGY", Factor: 1},
			{FlowCategory: "WATER", ImpactCategory: "WATER", Factor: 1},
			{FlowCategory: "LAND", ImpactCategory: "LAND", Factor: 1},
		},
		UnitConversions: []models.UnitConversion{
			{From: "m3", To: "gal", Factor: 264.172},
			{From: "l", To: "gal", Factor: 0.264172},
			{From: "g", To: "kg", Factor: 0.001},
			{From: "t", To: "kg", Factor: 1000},
			{From: "GJ", To: "MJ", Factor: 1000},
			{From: "kWh", To: "MJ", Factor: 3.6},
			{From: "ha*a", To: "m2*a", Factor: 10000},
		},
		Classification: ClassificationConfig{
			Version: "2024.1",
			Rules: []models.ClassificationRule{
				{FlowName: "Carbon dioxide", FlowCategory: "CO2"},
				{FlowName: "Carbon dioxide, fossil", FlowCategory: "CO2"},
				{FlowName: "Methane", FlowCategory: "CH4"},
				{FlowName: "Methane, fossil", FlowCategory: "CH4"},
				{FlowName: "Nitrous oxide", FlowCategory: "N2O"},
				{FlowName: "Energy, primary", FlowCategory: "ENERGY"},
				{FlowName: "Water, fresh", FlowCategory: "WATER"},
				{FlowName: "Occupation, land", FlowCategory: "LAND"},
			},
		},
		Leontief: LeontiefConfig{
			MaxConditionNumber: 1e12,
			OutputTolerance:    0.01,
			MinPassShare:       0.99,
			BlockSize:          64,
			DiagnosticSectors:  10,
			ClampTolerance:     1e-9,
		},
		Crosswalk: CrosswalkConfig{
			Levels:          []int{6, 5, 4, 3},
			WeightTolerance: 1e-6,
		},
		Comparisons: []ComparisonConfig{
			{Key: "vehicle_years", Label: "passenger vehicles driven for one year", KgPerUnit: 4600,
				Description: "EPA: typical passenger vehicle, 4.6 t CO2e per year"},
			{Key: "household_years", Label: "homes' electricity use for one year", KgPerUnit: 7400,
				Description: "EPA: U.S. home annual electricity use, 7.4 t CO2e"},
			{Key: "one_way_flights", Label: "one-way passenger flights New York to Los Angeles", KgPerUnit: 100,
				Description: "Half of the 0.2 t CO2e round-trip passenger factor"},
		},
		PriorityKeywords: []string{
			"aircraft", "ship", "missile", "weapon", "military", "defense",
			"ordnance", "armored", "guided", "aerospace", "ammunition",
		},
	}
}

// LoadModelConfig reads a YAML model config over the defaults. An empty path
// returns the defaults.
func LoadModelConfig(path string) (*ModelConfig, error) {
	cfg := DefaultModelConfig()
	if path == "" {
		return cfg, cfg.Validate()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse model config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks field constraints and code uniqueness.
func (c *ModelConfig) Validate() error {
	if err := modelValidate.Struct(c); err != nil {
		return fmt.Errorf("model config: %w", err)
	}

	seen := make(map[string]struct{})
	for _, ic := range c.ImpactCategories {
		if _, dup := seen[ic.Code]; dup {
			return fmt.Errorf("model config: duplicate impact category %q", ic.Code)
		}
		seen[ic.Code] = struct{}{}
	}

	keys := make(map[string]struct{})
	for _, ic := range c.ImpactCategories {
		if ic.Key == "name" || ic.Key == "lowConfidence" {
			return fmt.Errorf("model config: impact category %q uses reserved key %q", ic.Code, ic.Key)
		}
		if _, dup := keys[ic.Key]; dup {
			return fmt.Errorf("model config: duplicate impact category key %q", ic.Key)
		}
		keys[ic.Key] = struct{}{}
	}

	flows := make(map[string]struct{})
	for _, fc := range c.FlowCategories {
		if _, dup := flows[fc.Code]; dup {
			return fmt.Errorf("model config: duplicate flow category %q", fc.Code)
		}
		flows[fc.Code] = struct{}{}
	}

	prev := 0
	for i, lvl := range c.Crosswalk.Levels {
		if i > 0 && lvl >= prev {
			return fmt.Errorf("model config: crosswalk levels must be strictly decreasing, got %v", c.Crosswalk.Levels)
		}
		prev = lvl
	}
	return nil
}

// ImpactCategory returns the category with the given code.
func (c *ModelConfig) ImpactCategory(code string) (models.ImpactCategory, bool) {
	for _, ic := range c.ImpactCategories {
		if ic.Code == code {
			return ic, true
		}
	}
	return models.ImpactCategory{}, false
}
