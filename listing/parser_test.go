package listing

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/japanese"
)

func TestParse_ReportExample(t *testing.T) {
	t.Parallel()

	entries := Parse([]byte("-rw-r--r--   1 alice  staff      1024 Jan  5 09:30 report.txt\n"))

	require.Len(t, entries, 1)
	assert.Equal(t, Entry{
		Kind:      KindFile,
		UserPerm:  "rw-",
		GroupPerm: "r--",
		OtherPerm: "r--",
		Owner:     "alice",
		Group:     "staff",
		Size:      1024,
		Date:      "Jan 5 09:30",
		Name:      "report.txt",
	}, entries[0])
}

func TestParse_Grammars(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		line string
		want Entry
	}{
		{
			name: "unix directory with time",
			line: "drwxr-xr-x   2 bob    users     4096 Dec 20 10:30 mydir",
			want: Entry{Kind: KindDirectory, UserPerm: "rwx", GroupPerm: "r-x", OtherPerm: "r-x",
				Owner: "bob", Group: "users", Size: 0, Date: "Dec 20 10:30", Name: "mydir"},
		},
		{
			name: "unix file with year",
			line: "-rw-rw-r--   1 root   root    616300 Oct 25  2019 archive-data.zip",
			want: Entry{Kind: KindFile, UserPerm: "rw-", GroupPerm: "rw-", OtherPerm: "r--",
				Owner: "root", Group: "root", Size: 616300, Date: "Oct 25 2019", Name: "archive-data.zip"},
		},
		{
			name: "unix symlink keeps arrow in name",
			line: "lrwxrwxrwx   1 root   root        11 Dec 20 10:30 link -> target.txt",
			want: Entry{Kind: KindOther, UserPerm: "rwx", GroupPerm: "rwx", OtherPerm: "rwx",
				Owner: "root", Group: "root", Size: 11, Date: "Dec 20 10:30", Name: "link -> target.txt"},
		},
		{
			name: "unix setuid and sticky letters",
			line: "-rwsr-sr-T   1 root   wheel      512 Mar  1 01:02 tool",
			want: Entry{Kind: KindFile, UserPerm: "rws", GroupPerm: "r-s", OtherPerm: "r-T",
				Owner: "root", Group: "wheel", Size: 512, Date: "Mar 1 01:02", Name: "tool"},
		},
		{
			name: "unix name with spaces",
			line: "-rw-r--r--   1 carol  staff        16 Dec 15 04:51 my document.txt",
			want: Entry{Kind: KindFile, UserPerm: "rw-", GroupPerm: "r--", OtherPerm: "r--",
				Owner: "carol", Group: "staff", Size: 16, Date: "Dec 15 04:51", Name: "my document.txt"},
		},
		{
			name: "dos file",
			line: "12-14-23  12:22PM           1037794 large-document.pdf",
			want: Entry{Kind: KindFile, Size: 1037794, Date: "12-14-23 12:22PM", Name: "large-document.pdf"},
		},
		{
			name: "dos directory",
			line: "09-24-24  10:30AM       <DIR>          My Folder",
			want: Entry{Kind: KindDirectory, Date: "09-24-24 10:30AM", Name: "My Folder"},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			entries := Parse([]byte(tt.line))
			require.Len(t, entries, 1)
			assert.Equal(t, tt.want, entries[0])
		})
	}
}

func TestParse_GrammarPriority(t *testing.T) {
	t.Parallel()

	// Both UNIX grammars share a prefix; a time-of-day line must never be
	// read as a year line and vice versa.
	_, ok := UnixYearGrammar{}.ParseLine("-rw-r--r--   1 a  b  1 Jan  5 09:30 x")
	assert.False(t, ok)
	_, ok = UnixTimeGrammar{}.ParseLine("-rw-r--r--   1 a  b  1 Jan  5  2019 x")
	assert.False(t, ok)
	_, ok = DOSFileGrammar{}.ParseLine("09-24-24  10:30AM       <DIR>          logger")
	assert.False(t, ok)
}

func TestParse_UnparseableLinesAreDropped(t *testing.T) {
	t.Parallel()

	raw := "total 12\r\n" +
		"-rw-r--r--   1 alice  staff      1024 Jan  5 09:30 a.txt\r\n" +
		"this is not a listing line\r\n" +
		"-rw-r--r--+  1 alice  staff      1024 Jan  5 09:30 acl.txt\r\n" +
		"09-24-24  10:30 <DIR> nomeridiem\r\n" +
		"drwxr-xr-x   2 alice  staff      4096 Feb  1  2020 b\r\n"

	entries := Parse([]byte(raw))

	require.Len(t, entries, 2)
	assert.Equal(t, "a.txt", entries[0].Name)
	assert.Equal(t, "b", entries[1].Name)
	assert.Equal(t, KindDirectory, entries[1].Kind)
}

func TestParse_Exclusions(t *testing.T) {
	t.Parallel()

	raw := []byte("drwxr-xr-x   2 u g 4096 Jan  1 00:00 .\n" +
		"drwxr-xr-x   9 u g 4096 Jan  1 00:00 ..\n" +
		"-rw-r--r--   1 u g   10 Jan  1 00:00 .hidden\n" +
		"-rw-r--r--   1 u g   10 Jan  1 00:00 keep\n")

	entries := Parse(raw)
	require.Len(t, entries, 2)
	assert.Equal(t, ".hidden", entries[0].Name)

	p, err := NewParser(WithExclusions(".", "..", ".hidden"))
	require.NoError(t, err)
	entries = p.Parse(raw)
	require.Len(t, entries, 1)
	assert.Equal(t, "keep", entries[0].Name)
}

func TestParse_DirectorySizeIsZero(t *testing.T) {
	t.Parallel()

	entries := Parse([]byte("drwxr-xr-x   2 u g 4096 Jan  1 00:00 dir\n"))
	require.Len(t, entries, 1)
	assert.Zero(t, entries[0].Size)
}

func TestParse_OverflowingSizeIsZero(t *testing.T) {
	t.Parallel()

	entries := Parse([]byte("-rw-r--r--   1 u g 99999999999999999999999 Jan  1 00:00 huge\n"))
	require.Len(t, entries, 1)
	assert.Zero(t, entries[0].Size)
	assert.Equal(t, "huge", entries[0].Name)
}

func TestParse_EmptyAndBlankInput(t *testing.T) {
	t.Parallel()

	assert.Empty(t, Parse(nil))
	assert.NotNil(t, Parse(nil))
	assert.Empty(t, Parse([]byte("\r\n\n\r\n")))
}

func TestParse_ShiftJISFallback(t *testing.T) {
	t.Parallel()

	line := "-rw-r--r--   1 taro   staff        10 Jan  5 09:30 日本語.txt\n"
	raw, err := japanese.ShiftJIS.NewEncoder().Bytes([]byte(line))
	require.NoError(t, err)

	entries := Parse(raw)
	require.Len(t, entries, 1)
	assert.Equal(t, "日本語.txt", entries[0].Name)
}

func TestParse_UndecodableInput(t *testing.T) {
	t.Parallel()

	raw := []byte{0xff, 0xfe, 0xff, '\n'}
	assert.Empty(t, Parse(raw))

	p, err := NewParser(WithLegacyEncoding(nil))
	require.NoError(t, err)
	sjis, err := japanese.ShiftJIS.NewEncoder().Bytes([]byte("-rw-r--r--   1 u g 1 Jan  5 09:30 日本\n"))
	require.NoError(t, err)
	assert.Empty(t, p.Parse(sjis))
}

func TestWithEncodingName(t *testing.T) {
	t.Parallel()

	_, err := NewParser(WithEncodingName("euc-jp"))
	require.NoError(t, err)

	_, err = NewParser(WithEncodingName("no-such-encoding"))
	require.Error(t, err)
}

func FuzzParse(f *testing.F) {
	f.Add([]byte("-rw-r--r--   1 user  group     1024 Dec 20 10:30 file.txt"))
	f.Add([]byte("drwxr-xr-x   2 user  group     4096 Dec 20  2020 mydir"))
	f.Add([]byte("09-24-24  10:30AM       <DIR>          logger"))
	f.Add([]byte("12-14-23  12:22PM           1037794 large-document.pdf"))
	f.Add([]byte{0x93, 0xfa, 0x96, 0x7b})

	f.Fuzz(func(t *testing.T, raw []byte) {
		for _, e := range Parse(raw) {
			if e.Kind == KindDirectory && e.Size != 0 {
				t.Fatalf("directory with size %d", e.Size)
			}
		}
	})
}

// Not parallel: it swaps the global logger.
func TestDefaultParser_LogsThroughCurrentGlobalLogger(t *testing.T) {
	var buf bytes.Buffer
	saved := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = saved })

	entries := newDefaultParser().Parse([]byte("not a listing line\r\n"))

	assert.Empty(t, entries)
	assert.Contains(t, buf.String(), `"component":"listing"`)
	assert.Contains(t, buf.String(), "could not parse listing line")
	assert.Same(t, defaultParser(), defaultParser())
}
