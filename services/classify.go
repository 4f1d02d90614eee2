package services

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"open-dio/models"
)

// Classification is the outcome of classifying one environmental flow.
type Classification struct {
	FlowCategory string
	// Amount is converted into the flow category's unit.
	Amount float64
	Source models.ClassificationSource
	Reason models.UnclassifiedReason
	OK     bool
}

type ruleKey struct {
	name    string
	context string
}

type keywordRule struct {
	keyword      string
	flowCategory string
}

// FlowClassifier assigns raw environmental flows to flow categories from an
// explicit rule table, optionally falling back to impact category keywords.
type FlowClassifier struct {
	version     string
	exact       map[ruleKey]string
	wildcard    map[string]string
	keywords    []keywordRule
	units       map[string]string
	conversions map[[2]string]float64
}

// ClassifierOptions configures NewFlowClassifier.
type ClassifierOptions struct {
	Version          string
	Rules            []models.ClassificationRule
	FlowCategories   []models.FlowCategory
	ImpactCategories []models.ImpactCategory
	UnitConversions  []models.UnitConversion
	KeywordFallback  bool
}

// NewFlowClassifier validates the classification table and indexes it.
// Rules naming unknown flow categories and conflicting duplicate rules are
// reported together.
func NewFlowClassifier(opts ClassifierOptions) (*FlowClassifier, error) {
	fc := &FlowClassifier{
		version:     opts.Version,
		exact:       make(map[ruleKey]string),
		wildcard:    make(map[string]string),
		units:       make(map[string]string, len(opts.FlowCategories)),
		conversions: make(map[[2]string]float64, len(opts.UnitConversions)),
	}
	for _, c := range opts.FlowCategories {
		fc.units[c.Code] = c.Unit
	}

	var errs []error
	for i, r := range opts.Rules {
		if _, ok := fc.units[r.FlowCategory]; !ok {
			errs = append(errs, fmt.Errorf("rule %d (%q): unknown flow category %q", i+1, r.FlowName, r.FlowCategory))
			continue
		}
		name, ctx := flowKey(r.FlowName), flowKey(r.Context)
		if name == "" {
			errs = append(errs, fmt.Errorf("rule %d: empty flow name", i+1))
			continue
		}
		if ctx == "" {
			if prev, dup := fc.wildcard[name]; dup && prev != r.FlowCategory {
				errs = append(errs, fmt.Errorf("rule %d: %q maps to both %s and %s", i+1, r.FlowName, prev, r.FlowCategory))
				continue
			}
			fc.wildcard[name] = r.FlowCategory
			continue
		}
		k := ruleKey{name: name, context: ctx}
		if prev, dup := fc.exact[k]; dup && prev != r.FlowCategory {
			errs = append(errs, fmt.Errorf("rule %d: %q in %q maps to both %s and %s", i+1, r.FlowName, r.Context, prev, r.FlowCategory))
			continue
		}
		fc.exact[k] = r.FlowCategory
	}

	if opts.KeywordFallback {
		for _, ic := range opts.ImpactCategories {
			if len(ic.ClassificationKeywords) == 0 {
				continue
			}
			if _, ok := fc.units[ic.KeywordFlowCategory]; !ok {
				errs = append(errs, fmt.Errorf("impact category %s: keyword flow category %q is unknown", ic.Code, ic.KeywordFlowCategory))
				continue
			}
			for _, kw := range ic.ClassificationKeywords {
				if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
					fc.keywords = append(fc.keywords, keywordRule{keyword: kw, flowCategory: ic.KeywordFlowCategory})
				}
			}
		}
	}

	for _, uc := range opts.UnitConversions {
		fc.conversions[[2]string{unitKey(uc.From), unitKey(uc.To)}] = uc.Factor
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("classification table %s: %w", opts.Version, errors.Join(errs...))
	}
	return fc, nil
}

// Version returns the classification table version.
func (fc *FlowClassifier) Version() string { return fc.version }

// Classify assigns a flow to a category and converts its amount. A flow
// without a rule, with an unconvertible unit or with a non-finite amount is
// returned with OK false and the reason.
func (fc *FlowClassifier) Classify(r models.EnvironmentalFlowRecord) Classification {
	if math.IsNaN(r.Amount) || math.IsInf(r.Amount, 0) {
		return Classification{Reason: models.ReasonInvalidAmount}
	}

	name, ctx := flowKey(r.FlowName), flowKey(r.Context)
	category, source := "", models.ClassifiedByTable
	if c, ok := fc.exact[ruleKey{name: name, context: ctx}]; ok {
		category = c
	} else if c, ok := fc.wildcard[name]; ok {
		category = c
	} else {
		for _, kw := range fc.keywords {
			if strings.Contains(name, kw.keyword) {
				category, source = kw.flowCategory, models.ClassifiedByKeyword
				break
			}
		}
	}
	if category == "" {
		return Classification{Reason: models.ReasonNoRule}
	}

	factor, ok := fc.conversionFactor(r.Unit, fc.units[category])
	if !ok {
		return Classification{FlowCategory: category, Source: source, Reason: models.ReasonUnit}
	}
	return Classification{
		FlowCategory: category,
		Amount:       r.Amount * factor,
		Source:       source,
		OK:           true,
	}
}

func (fc *FlowClassifier) conversionFactor(from, to string) (float64, bool) {
	from, to = unitKey(from), unitKey(to)
	if from == to {
		return 1, true
	}
	if f, ok := fc.conversions[[2]string{from, to}]; ok {
		return f, true
	}
	if f, ok := fc.conversions[[2]string{to, from}]; ok {
		return 1 / f, true
	}
	return 0, false
}

func unitKey(u string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(u), " ", ""))
}
