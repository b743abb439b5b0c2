package ftps

import (
	"bufio"
	"strings"
	"testing"
)

func FuzzParseFeatures(f *testing.F) {
	f.Add("211-Features:\n SIZE\n UTF8\n211 End")
	f.Add("211-Features\n211-MDTM\n211-REST STREAM\n211 End")
	f.Add("UTF8\nTVFS")

	f.Fuzz(func(t *testing.T, s string) {
		_ = parseFeatureLines(strings.Split(s, "\n"))
	})
}

func FuzzReadResponse(f *testing.F) {
	f.Add("220 Welcome\r\n")
	f.Add("220-Welcome\r\n220 Ready\r\n")
	f.Add("211-Features:\r\n SIZE\r\n211 End\r\n")

	f.Fuzz(func(t *testing.T, s string) {
		resp, err := readResponse(bufio.NewReader(strings.NewReader(s)))
		if err == nil && (resp.Code < 0 || resp.Code > 999) {
			t.Fatalf("code out of range: %d", resp.Code)
		}
	})
}
