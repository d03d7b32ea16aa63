package s3gateway

import "testing"

func TestGuessContentType(t *testing.T) {
	cases := map[string]string{
		"photo.JPG":       "image/jpeg",
		"archive/data.csv": "text/csv",
		"noext":           "application/octet-stream",
		"folder/":         "application/octet-stream",
		"report.docx":     "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	}
	for key, want := range cases {
		if got := guessContentType(key); got != want {
			t.Errorf("guessContentType(%q) = %q, want %q", key, got, want)
		}
	}
}
