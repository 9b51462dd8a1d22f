package domain

// UnresolvedCount is the derived issuesCount: issues neither Resolved nor Closed.
func UnresolvedCount(issues []Issue) int {
	n := 0
	for _, issue := range issues {
		if issue.Status.Unresolved() {
			n++
		}
	}
	return n
}

// LatestAgreedDate is the derived eotDate: the latest agreed date across all
// extensions, or "" when there are none.
func LatestAgreedDate(extensions []ExtensionOfTime) string {
	latest := ""
	for _, ext := range extensions {
		if ext.AgreedDate == "" {
			continue
		}
		if latest == "" || CompareDates(ext.AgreedDate, latest) > 0 {
			latest = ext.AgreedDate
		}
	}
	return latest
}
