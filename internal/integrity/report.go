package integrity

// Report aggregates a full-collection scan for diagnostic output.
type Report struct {
	TotalItems    int
	IssuesByKind  map[Kind]int
	CriticalCount int
	WarningCount  int
}

// Summarize folds per-item scan results into a report.
func Summarize(results []ItemIssues, totalItems int) Report {
	report := Report{
		TotalItems:   totalItems,
		IssuesByKind: make(map[Kind]int),
	}
	for _, res := range results {
		for _, issue := range res.Issues {
			report.IssuesByKind[issue.Kind]++
			switch issue.Severity {
			case SeverityCritical:
				report.CriticalCount++
			case SeverityWarning:
				report.WarningCount++
			}
		}
	}
	return report
}

// Clean reports whether the scan found no issues at all.
func (r Report) Clean() bool {
	return r.CriticalCount == 0 && r.WarningCount == 0
}
