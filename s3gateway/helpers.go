package s3gateway

import "time"

func stringValue(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func strPtr(s string) *string {
	return &s
}

func int64Value(p *int64) int64 {
	if p == nil {
		return 0
	}
	return *p
}

func timeValue(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}
