package reports

import (
	"fmt"
)

// NewReportGenerator creates a report generator based on the report type.
func NewReportGenerator(reportType ReportType, s ReportStore) (Generator, error) {
	switch reportType {
	case ReportTypeDocuments:
		return NewDocumentsReport(s), nil
	case ReportTypeUsers:
		return NewUsersReport(s), nil
	case ReportTypePurposes:
		return NewPurposesReport(s), nil
	case ReportTypeTimeline:
		return NewTimelineReport(s), nil
	default:
		return nil, fmt.Errorf("unknown report type: %s", reportType)
	}
}
