// Package listing turns raw FTP LIST output into structured entries.
//
// Four line grammars are recognized, tried in this order:
//
//	-rw-r--r--   1 alice  staff   1024 Jan  5 09:30 report.txt   (UNIX, time of day)
//	-rw-r--r--   1 alice  staff   1024 Jan  5  2019 old.txt      (UNIX, year)
//	01-05-24  09:30AM           1024 report.txt                 (DOS file)
//	01-05-24  09:30AM       <DIR>          docs                 (DOS directory)
//
// Parsing is lossy on purpose: a line matching none of the grammars is logged
// and dropped, and never aborts the rest of the listing.
package listing

// Kind classifies a listing entry.
type Kind int

const (
	KindFile Kind = iota
	KindDirectory
	KindOther
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDirectory:
		return "dir"
	default:
		return "other"
	}
}

// kindOf maps the leading type character of a UNIX listing line.
func kindOf(c string) Kind {
	switch c {
	case "-":
		return KindFile
	case "d":
		return KindDirectory
	default:
		return KindOther
	}
}

// Entry is a single file or directory from a LIST response.
//
// Entry is comparable; two listings are diffed by plain equality.
type Entry struct {
	Kind Kind

	// UserPerm, GroupPerm and OtherPerm are the three-character permission
	// triplets as printed by the server (e.g. "rw-", "r-x", "rws"). They are
	// empty for DOS-style listings.
	UserPerm  string
	GroupPerm string
	OtherPerm string

	Owner string
	Group string

	// Size is always 0 for directories.
	Size int64

	// Date is kept verbatim in the shape the server used: "Jan 5 09:30",
	// "Jan 5 2019" or "01-05-24 09:30AM".
	Date string

	Name string
}

// IsDir reports whether the entry is a directory.
func (e Entry) IsDir() bool {
	return e.Kind == KindDirectory
}

// Mode packs the entry's permission triplets into a CHMOD value.
func (e Entry) Mode() Mode {
	return ModeFromTriplets(e.UserPerm, e.GroupPerm, e.OtherPerm)
}
