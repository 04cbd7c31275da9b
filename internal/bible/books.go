package bible

import "strings"

// Book holds canonical metadata for a single book of the Bible.
type Book struct {
	ID        int
	Name      string
	Abbrev    string
	Testament string
	Chapters  int
	Aliases   []string
}

// Books lists all 66 canonical books in canonical order. Aliases cover common
// printed abbreviations; spoken variants of numbered books ("First", "I") are
// generated in buildLookup.
var Books = []Book{
	{1, "Genesis", "Gen", "OT", 50, []string{"Gen", "Ge"}},
	{2, "Exodus", "Exod", "OT", 40, []string{"Exod", "Ex"}},
	{3, "Leviticus", "Lev", "OT", 27, []string{"Lev", "Le"}},
	{4, "Numbers", "Num", "OT", 36, []string{"Num", "Nu"}},
	{5, "Deuteronomy", "Deut", "OT", 34, []string{"Deut", "De"}},
	{6, "Joshua", "Josh", "OT", 24, []string{"Josh", "Jos"}},
	{7, "Judges", "Judg", "OT", 21, []string{"Judg", "Jdg"}},
	{8, "Ruth", "Ruth", "OT", 4, []string{"Ru"}},
	{9, "1 Samuel", "1Sam", "OT", 31, []string{"1Sam", "1Sa"}},
	{10, "2 Samuel", "2Sam", "OT", 24, []string{"2Sam", "2Sa"}},
	{11, "1 Kings", "1Kgs", "OT", 22, []string{"1Kgs", "1Ki"}},
	{12, "2 Kings", "2Kgs", "OT", 25, []string{"2Kgs", "2Ki"}},
	{13, "1 Chronicles", "1Chr", "OT", 29, []string{"1Chr", "1Ch"}},
	{14, "2 Chronicles", "2Chr", "OT", 36, []string{"2Chr", "2Ch"}},
	{15, "Ezra", "Ezra", "OT", 10, []string{"Ezr"}},
	{16, "Nehemiah", "Neh", "OT", 13, []string{"Neh", "Ne"}},
	{17, "Esther", "Esth", "OT", 10, []string{"Esth", "Es"}},
	{18, "Job", "Job", "OT", 42, []string{"Jb"}},
	{19, "Psalms", "Ps", "OT", 150, []string{"Ps", "Psa", "Psalm"}},
	{20, "Proverbs", "Prov", "OT", 31, []string{"Prov", "Pr", "Pro", "Proverb"}},
	{21, "Ecclesiastes", "Eccl", "OT", 12, []string{"Eccl", "Ec"}},
	{22, "Song of Solomon", "Song", "OT", 8, []string{"Song", "SoS", "Songs", "Song of Songs"}},
	{23, "Isaiah", "Isa", "OT", 66, []string{"Isa", "Is"}},
	{24, "Jeremiah", "Jer", "OT", 52, []string{"Jer", "Je"}},
	{25, "Lamentations", "Lam", "OT", 5, []string{"Lam", "La"}},
	{26, "Ezekiel", "Ezek", "OT", 48, []string{"Ezek", "Eze"}},
	{27, "Daniel", "Dan", "OT", 12, []string{"Dan", "Da"}},
	{28, "Hosea", "Hos", "OT", 14, []string{"Hos", "Ho"}},
	{29, "Joel", "Joel", "OT", 3, []string{"Joe", "Jl"}},
	{30, "Amos", "Amos", "OT", 9, []string{"Am"}},
	{31, "Obadiah", "Obad", "OT", 1, []string{"Obad", "Ob"}},
	{32, "Jonah", "Jonah", "OT", 4, []string{"Jon", "Jnh"}},
	{33, "Micah", "Mic", "OT", 7, []string{"Mic", "Mi"}},
	{34, "Nahum", "Nah", "OT", 3, []string{"Nah", "Na"}},
	{35, "Habakkuk", "Hab", "OT", 3, []string{"Hab"}},
	{36, "Zephaniah", "Zeph", "OT", 3, []string{"Zeph", "Zep"}},
	{37, "Haggai", "Hag", "OT", 2, []string{"Hag", "Hg"}},
	{38, "Zechariah", "Zech", "OT", 14, []string{"Zech", "Zec"}},
	{39, "Malachi", "Mal", "OT", 4, []string{"Mal"}},
	{40, "Matthew", "Matt", "NT", 28, []string{"Matt", "Mt"}},
	{41, "Mark", "Mark", "NT", 16, []string{"Mk", "Mr"}},
	{42, "Luke", "Luke", "NT", 24, []string{"Luk", "Lk"}},
	{43, "John", "John", "NT", 21, []string{"Jn", "Joh"}},
	{44, "Acts", "Acts", "NT", 28, []string{"Act", "Ac"}},
	{45, "Romans", "Rom", "NT", 16, []string{"Rom", "Ro"}},
	{46, "1 Corinthians", "1Cor", "NT", 16, []string{"1Cor", "1Co"}},
	{47, "2 Corinthians", "2Cor", "NT", 13, []string{"2Cor", "2Co"}},
	{48, "Galatians", "Gal", "NT", 6, []string{"Gal", "Ga"}},
	{49, "Ephesians", "Eph", "NT", 6, []string{"Eph", "Ep"}},
	{50, "Philippians", "Phil", "NT", 4, []string{"Phil", "Php"}},
	{51, "Colossians", "Col", "NT", 4, []string{"Col"}},
	{52, "1 Thessalonians", "1Thess", "NT", 5, []string{"1Thess", "1Th"}},
	{53, "2 Thessalonians", "2Thess", "NT", 3, []string{"2Thess", "2Th"}},
	{54, "1 Timothy", "1Tim", "NT", 6, []string{"1Tim", "1Ti"}},
	{55, "2 Timothy", "2Tim", "NT", 4, []string{"2Tim", "2Ti"}},
	{56, "Titus", "Titus", "NT", 3, []string{"Tit"}},
	{57, "Philemon", "Phlm", "NT", 1, []string{"Phlm", "Phm"}},
	{58, "Hebrews", "Heb", "NT", 13, []string{"Heb"}},
	{59, "James", "Jas", "NT", 5, []string{"Jas", "Jam"}},
	{60, "1 Peter", "1Pet", "NT", 5, []string{"1Pet", "1Pe"}},
	{61, "2 Peter", "2Pet", "NT", 3, []string{"2Pet", "2Pe"}},
	{62, "1 John", "1Jn", "NT", 5, []string{"1Jn", "1Jo"}},
	{63, "2 John", "2Jn", "NT", 1, []string{"2Jn", "2Jo"}},
	{64, "3 John", "3Jn", "NT", 1, []string{"3Jn", "3Jo"}},
	{65, "Jude", "Jude", "NT", 1, []string{"Jud"}},
	{66, "Revelation", "Rev", "NT", 22, []string{"Rev", "Re", "Revelations"}},
}

// numericPrefixes maps spoken ordinal forms to the digit used in canonical
// names, so "First Corinthians" and "I Corinthians" resolve like
// "1 Corinthians".
var numericPrefixes = map[string]string{
	"first":  "1",
	"second": "2",
	"third":  "3",
	"i":      "1",
	"ii":     "2",
	"iii":    "3",
	"1st":    "1",
	"2nd":    "2",
	"3rd":    "3",
}

var (
	byCanonical = buildCanonical()
	lookup      = buildLookup()
)

func buildCanonical() map[string]Book {
	m := make(map[string]Book, len(Books))
	for _, b := range Books {
		m[strings.ToLower(b.Name)] = b
	}
	return m
}

func buildLookup() map[string]string {
	m := make(map[string]string, len(Books)*4)
	for _, b := range Books {
		lower := strings.ToLower(b.Name)
		m[lower] = b.Name
		for _, alias := range b.Aliases {
			m[strings.ToLower(alias)] = b.Name
		}
		// Spoken and roman-numeral variants of numbered books.
		if digit, rest, ok := splitNumberedName(lower); ok {
			for spoken, d := range numericPrefixes {
				if d == digit {
					m[spoken+" "+rest] = b.Name
				}
			}
			m[digit+rest] = b.Name
		}
	}
	return m
}

func splitNumberedName(lower string) (digit, rest string, ok bool) {
	if len(lower) < 3 || lower[1] != ' ' {
		return "", "", false
	}
	switch lower[0] {
	case '1', '2', '3':
		return string(lower[0]), lower[2:], true
	}
	return "", "", false
}

// NormalizeBookName resolves a raw heard or typed book token to its canonical
// name. Exact (case-insensitive) lookup against canonical names and aliases is
// tried first, then a prefix-containment fallback. Returns false when the
// token is not recognizably a book.
func NormalizeBookName(raw string) (string, bool) {
	token := strings.ToLower(strings.TrimSpace(raw))
	token = strings.TrimSuffix(token, ".")
	token = strings.Join(strings.Fields(token), " ")
	if token == "" {
		return "", false
	}

	if name, ok := lookup[token]; ok {
		return name, true
	}

	// Prefix containment: the token is a prefix of a known name, or a known
	// name is a prefix of the token. Short tokens are too ambiguous.
	if len(token) < 3 {
		return "", false
	}
	for _, b := range Books {
		lower := strings.ToLower(b.Name)
		if strings.HasPrefix(lower, token) || strings.HasPrefix(token, lower) {
			return b.Name, true
		}
	}
	return "", false
}

// BookByName returns metadata for a canonical book name.
func BookByName(canonical string) (Book, bool) {
	b, ok := byCanonical[strings.ToLower(canonical)]
	return b, ok
}

// IsValidChapter reports whether the chapter exists for the canonical book.
func IsValidChapter(canonical string, chapter int) bool {
	b, ok := BookByName(canonical)
	if !ok {
		return false
	}
	return chapter >= 1 && chapter <= b.Chapters
}
