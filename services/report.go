package services

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"open-dio/models"
)

// ReportPrinter renders build and calculation summaries for a terminal.
type ReportPrinter struct {
	w io.Writer
}

// NewReportPrinter creates a printer writing to w.
func NewReportPrinter(w io.Writer) *ReportPrinter {
	return &ReportPrinter{w: w}
}

const topSectors = 5

// PrintBuild summarizes a build and lists the sectors with the largest
// intensity in the first impact category.
func (p *ReportPrinter) PrintBuild(r *models.BuildReport, e *Engine) {
	sep := strings.Repeat("═", 60)
	thin := strings.Repeat("─", 60)

	fmt.Fprintf(p.w, "\n\033[1;35m%s\033[0m\n", sep)
	fmt.Fprintf(p.w, "\033[1;35m  EEIO BUILD %s\033[0m\n", r.BuildID)
	fmt.Fprintf(p.w, "\033[1;35m%s\033[0m\n\n", sep)

	// Overview
	fmt.Fprintf(p.w, "\033[1;33m  Overview\033[0m\n")
	fmt.Fprintf(p.w, "  %s\n", thin)
	fmt.Fprintf(p.w, "  Sectors                : \033[1m%d\033[0m\n", r.Sectors)
	fmt.Fprintf(p.w, "  Economic records       : \033[1m%d\033[0m (%d skipped)\n", r.EconomicRecords, r.Malformed.Total)
	fmt.Fprintf(p.w, "  Condition number       : \033[1m%.4g\033[0m\n", r.ConditionNumber)
	fmt.Fprintf(p.w, "  Round-trip pass share  : \033[1m%.2f%%\033[0m\n", r.PassShare*100)
	if r.DemandDerived {
		fmt.Fprintf(p.w, "  Reference demand       : derived as x - Ax\n")
	}
	fmt.Fprintf(p.w, "  Duration               : %s\n", r.Duration)
	fmt.Fprintln(p.w)

	if r.Malformed.Total > 0 {
		fmt.Fprintf(p.w, "\033[1;33m  Skipped Economic Records\033[0m\n")
		fmt.Fprintf(p.w, "  %s\n", thin)
		for _, reason := range sortedKeys(r.Malformed.ByReason) {
			fmt.Fprintf(p.w, "  %-28s %d\n", reason, r.Malformed.ByReason[reason])
		}
		fmt.Fprintln(p.w)
	}

	// Satellite
	fmt.Fprintf(p.w, "\033[1;33m  Environmental Flows\033[0m\n")
	fmt.Fprintf(p.w, "  %s\n", thin)
	fmt.Fprintf(p.w, "  Records                : %d\n", r.FlowRecords)
	fmt.Fprintf(p.w, "  Classified by table    : %d\n", r.ClassifiedByRule)
	fmt.Fprintf(p.w, "  Classified by keyword  : %d\n", r.ClassifiedByKW)
	fmt.Fprintf(p.w, "  Unclassified           : \033[1;31m%d\033[0m\n", r.Unclassified)
	fmt.Fprintf(p.w, "  Unlinked to a sector   : %d\n", r.UnlinkedFlows)
	fmt.Fprintf(p.w, "  Low-confidence sectors : %d\n", len(r.LowConfidence))
	fmt.Fprintln(p.w)

	if len(r.Outliers) > 0 {
		fmt.Fprintf(p.w, "\033[1;33m  Round-trip Outliers\033[0m\n")
		fmt.Fprintf(p.w, "  %s\n", thin)
		for i, o := range r.Outliers {
			if i == topSectors {
				fmt.Fprintf(p.w, "  ... and %d more\n", len(r.Outliers)-topSectors)
				break
			}
			fmt.Fprintf(p.w, "  %-8s %-34s \033[1;31m%+.2f%%\033[0m\n", o.Code, truncate(o.Name, 34), o.Relative*100)
		}
		fmt.Fprintln(p.w)
	}

	if e != nil && len(e.Categories) > 0 {
		cat := e.Categories[0]
		fmt.Fprintf(p.w, "\033[1;33m  Top %d Sectors by %s (%s per $1000)\033[0m\n", topSectors, cat.Name, cat.Unit)
		fmt.Fprintf(p.w, "  %s\n", thin)
		codes := e.Multipliers.Codes()
		sort.SliceStable(codes, func(i, j int) bool {
			return e.Multipliers[codes[i]].Values[cat.Code] > e.Multipliers[codes[j]].Values[cat.Code]
		})
		if len(codes) > topSectors {
			codes = codes[:topSectors]
		}
		for i, code := range codes {
			m := e.Multipliers[code]
			total, direct := m.Values[cat.Code], m.Direct[cat.Code]
			ratio := "  n/a"
			if direct > 0 {
				ratio = fmt.Sprintf("%5.1fx", total/direct)
			}
			fmt.Fprintf(p.w, "  \033[1m%d.\033[0m %-8s %-30s \033[1;32m%10.2f\033[0m %s\n",
				i+1, code, truncate(m.Name, 30), total, ratio)
		}
	}

	fmt.Fprintf(p.w, "\n\033[1;35m%s\033[0m\n\n", sep)
}

// PrintCalculation summarizes a calculation and its lay equivalents.
func (p *ReportPrinter) PrintCalculation(res *models.CalculationResult, equivalents []models.Equivalent) {
	sep := strings.Repeat("═", 60)
	thin := strings.Repeat("─", 60)

	fmt.Fprintf(p.w, "\n\033[1;35m%s\033[0m\n", sep)
	fmt.Fprintf(p.w, "\033[1;35m  IMPACT CALCULATION\033[0m\n")
	fmt.Fprintf(p.w, "\033[1;35m%s\033[0m\n\n", sep)

	fmt.Fprintf(p.w, "\033[1;33m  Spending\033[0m\n")
	fmt.Fprintf(p.w, "  %s\n", thin)
	fmt.Fprintf(p.w, "  Total    : \033[1m$%.2f\033[0m\n", res.TotalSpending)
	fmt.Fprintf(p.w, "  Unmapped : \033[1;31m$%.2f\033[0m\n", res.UnmappedAmount)
	if len(res.Rejected) > 0 {
		fmt.Fprintf(p.w, "  Rejected : %d entr%s\n", len(res.Rejected), plural(len(res.Rejected), "y", "ies"))
	}
	fmt.Fprintln(p.w)

	fmt.Fprintf(p.w, "\033[1;33m  Impacts\033[0m\n")
	fmt.Fprintf(p.w, "  %s\n", thin)
	for _, iv := range res.Impacts {
		fmt.Fprintf(p.w, "  %-28s \033[1;32m%14.2f\033[0m %s\n", iv.Name, iv.Value, iv.Unit)
	}
	fmt.Fprintln(p.w)

	if len(res.SectorBreakdown) > 0 {
		fmt.Fprintf(p.w, "\033[1;33m  Sector Breakdown\033[0m\n")
		fmt.Fprintf(p.w, "  %s\n", thin)
		for _, code := range sortedKeys(res.SectorBreakdown) {
			s := res.SectorBreakdown[code]
			flag := ""
			if s.LowConfidence {
				flag = " \033[1;31m(low confidence)\033[0m"
			}
			fmt.Fprintf(p.w, "  %-8s %-30s $%.2f%s\n", code, truncate(s.Name, 30), s.Spending, flag)
		}
		fmt.Fprintln(p.w)
	}

	if len(res.UnmappedCodes) > 0 {
		fmt.Fprintf(p.w, "\033[1;33m  Unmapped Codes\033[0m\n")
		fmt.Fprintf(p.w, "  %s\n", thin)
		for _, u := range res.UnmappedCodes {
			fmt.Fprintf(p.w, "  %-10s %-20s $%.2f\n", u.Code, u.Reason, u.Amount)
		}
		fmt.Fprintln(p.w)
	}

	if len(equivalents) > 0 {
		fmt.Fprintf(p.w, "\033[1;33m  Equivalent To\033[0m\n")
		fmt.Fprintf(p.w, "  %s\n", thin)
		for _, eq := range equivalents {
			fmt.Fprintf(p.w, "  \033[1m%12.1f\033[0m %s\n", eq.Count, eq.Label)
		}
	}

	fmt.Fprintf(p.w, "\n\033[1;35m%s\033[0m\n\n", sep)
}

// PrintSectors lists sectors, marking priority-relevant ones.
func (p *ReportPrinter) PrintSectors(sectors []models.Sector) {
	if len(sectors) == 0 {
		fmt.Fprintf(p.w, "  No sectors found\n")
		return
	}
	for _, s := range sectors {
		mark := " "
		if s.IsPriorityRelevant {
			mark = "\033[1;33m★\033[0m"
		}
		fmt.Fprintf(p.w, "  %s %-8s %-44s %s\n", mark, s.Code, truncate(s.Name, 44), s.Category)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
