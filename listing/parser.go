package listing

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/japanese"

	"github.com/gonzalop/ftps/internal/logging"
)

// DefaultExclusions are the names dropped from every listing unless the
// caller supplies its own set.
var DefaultExclusions = []string{".", ".."}

// Grammar parses one listing line in a single fixed format.
type Grammar interface {
	// ParseLine returns the entry and true if the line is in this format.
	ParseLine(line string) (Entry, bool)
}

const (
	unixPrefix = `^([-dbclps])([-r][-w][-xstST])([-r][-w][-xstST])([-r][-w][-xstST])\s+` +
		`(\d+)\s+(\S+)\s+(\S+)\s+(\d+)\s+([\pL\pN_]{3})\s+(\d{1,2})\s+`
	dosPrefix = `^(\d{2})-(\d{2})-(\d{2})\s+(\d{2}):(\d{2})(AM|PM)\s+`
)

var (
	unixTimeRegex = regexp.MustCompile(unixPrefix + `(\d{1,2}):(\d{2})\s+(.+)$`)
	unixYearRegex = regexp.MustCompile(unixPrefix + `(\d{4})\s+(.+)$`)
	dosFileRegex  = regexp.MustCompile(dosPrefix + `(\d+)\s+(.+)$`)
	dosDirRegex   = regexp.MustCompile(dosPrefix + `<DIR>\s+(.+)$`)
)

// UnixTimeGrammar matches UNIX lines that carry a time of day.
type UnixTimeGrammar struct{}

func (UnixTimeGrammar) ParseLine(line string) (Entry, bool) {
	m := unixTimeRegex.FindStringSubmatch(line)
	if m == nil {
		return Entry{}, false
	}
	e := unixEntry(m)
	e.Date = fmt.Sprintf("%s %s %s:%s", m[9], m[10], m[11], m[12])
	e.Name = m[13]
	return e, true
}

// UnixYearGrammar matches UNIX lines that carry a year instead of a time,
// which servers use for files older than about six months.
type UnixYearGrammar struct{}

func (UnixYearGrammar) ParseLine(line string) (Entry, bool) {
	m := unixYearRegex.FindStringSubmatch(line)
	if m == nil {
		return Entry{}, false
	}
	e := unixEntry(m)
	e.Date = fmt.Sprintf("%s %s %s", m[9], m[10], m[11])
	e.Name = m[12]
	return e, true
}

// DOSFileGrammar matches "MM-DD-YY HH:MMAM size name" lines.
type DOSFileGrammar struct{}

func (DOSFileGrammar) ParseLine(line string) (Entry, bool) {
	m := dosFileRegex.FindStringSubmatch(line)
	if m == nil {
		return Entry{}, false
	}
	return Entry{
		Kind: KindFile,
		Date: dosDate(m),
		Size: parseSize(m[7]),
		Name: m[8],
	}, true
}

// DOSDirGrammar matches "MM-DD-YY HH:MMAM <DIR> name" lines.
type DOSDirGrammar struct{}

func (DOSDirGrammar) ParseLine(line string) (Entry, bool) {
	m := dosDirRegex.FindStringSubmatch(line)
	if m == nil {
		return Entry{}, false
	}
	return Entry{
		Kind: KindDirectory,
		Date: dosDate(m),
		Name: m[7],
	}, true
}

// unixEntry fills the fields shared by both UNIX grammars.
// Submatches: 1 type, 2-4 permissions, 5 links, 6 owner, 7 group, 8 size.
func unixEntry(m []string) Entry {
	e := Entry{
		Kind:      kindOf(m[1]),
		UserPerm:  m[2],
		GroupPerm: m[3],
		OtherPerm: m[4],
		Owner:     m[6],
		Group:     m[7],
	}
	if e.Kind != KindDirectory {
		e.Size = parseSize(m[8])
	}
	return e
}

func dosDate(m []string) string {
	return fmt.Sprintf("%s-%s-%s %s:%s%s", m[1], m[2], m[3], m[4], m[5], m[6])
}

// parseSize never fails: digits that overflow int64 yield 0.
func parseSize(s string) int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// Parser decodes and parses complete LIST responses.
type Parser struct {
	grammars   []Grammar
	exclusions map[string]struct{}
	legacy     encoding.Encoding
	logger     zerolog.Logger
}

// Option configures a Parser.
type Option func(*Parser) error

// WithExclusions replaces the set of names that are never returned.
func WithExclusions(names ...string) Option {
	return func(p *Parser) error {
		p.exclusions = make(map[string]struct{}, len(names))
		for _, n := range names {
			p.exclusions[n] = struct{}{}
		}
		return nil
	}
}

// WithLegacyEncoding sets the fallback used when a listing is not valid
// UTF-8. A nil encoding disables the fallback.
func WithLegacyEncoding(enc encoding.Encoding) Option {
	return func(p *Parser) error {
		p.legacy = enc
		return nil
	}
}

// WithEncodingName looks the fallback encoding up by its WHATWG label
// (e.g. "shift_jis", "euc-jp", "windows-1252").
func WithEncodingName(name string) Option {
	return func(p *Parser) error {
		if name == "" {
			p.legacy = nil
			return nil
		}
		enc, err := htmlindex.Get(name)
		if err != nil {
			return fmt.Errorf("unknown listing encoding %q: %w", name, err)
		}
		p.legacy = enc
		return nil
	}
}

// WithLogger sets the logger used for unparseable-line warnings.
func WithLogger(logger zerolog.Logger) Option {
	return func(p *Parser) error {
		p.logger = logger
		return nil
	}
}

// NewParser returns a parser with the four standard grammars, the default
// exclusions and a Shift-JIS fallback.
func NewParser(options ...Option) (*Parser, error) {
	p := &Parser{
		grammars: []Grammar{
			UnixTimeGrammar{},
			UnixYearGrammar{},
			DOSFileGrammar{},
			DOSDirGrammar{},
		},
		legacy: japanese.ShiftJIS,
		logger: logging.Component("listing"),
	}
	if err := WithExclusions(DefaultExclusions...)(p); err != nil {
		return nil, err
	}
	for _, opt := range options {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// defaultParser is built on first use so it logs through the global logger
// as configured by then, not as it was at package initialization.
var defaultParser = sync.OnceValue(newDefaultParser)

func newDefaultParser() *Parser {
	p, _ := NewParser()
	return p
}

// Parse parses raw listing bytes with the default parser.
func Parse(raw []byte) []Entry {
	return defaultParser().Parse(raw)
}

// Parse turns a raw LIST response into entries. It never fails: undecodable
// input yields no entries and unparseable lines are skipped.
func (p *Parser) Parse(raw []byte) []Entry {
	text, ok := p.decode(raw)
	if !ok {
		p.logger.Warn().Int("bytes", len(raw)).Msg("listing is neither UTF-8 nor the legacy encoding")
		return []Entry{}
	}

	entries := []Entry{}
	for _, line := range strings.FieldsFunc(text, isNewline) {
		entry, ok := p.parseLine(line)
		if !ok {
			p.logger.Warn().Str("raw", line).Msg("could not parse listing line")
			continue
		}
		if _, excluded := p.exclusions[entry.Name]; excluded {
			continue
		}
		entries = append(entries, entry)
	}
	return entries
}

func (p *Parser) parseLine(line string) (Entry, bool) {
	for _, g := range p.grammars {
		if e, ok := g.ParseLine(line); ok {
			return e, true
		}
	}
	return Entry{}, false
}

func (p *Parser) decode(raw []byte) (string, bool) {
	if utf8.Valid(raw) {
		return string(raw), true
	}
	if p.legacy == nil {
		return "", false
	}
	out, err := p.legacy.NewDecoder().Bytes(raw)
	if err != nil || bytes.ContainsRune(out, utf8.RuneError) {
		return "", false
	}
	return string(out), true
}

func isNewline(r rune) bool {
	switch r {
	case '\n', '\r', '\v', '\f', '\u0085', '\u2028', '\u2029':
		return true
	}
	return false
}
