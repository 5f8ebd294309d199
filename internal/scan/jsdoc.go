package scan

import (
	"strings"

	"github.com/jward/trellis/internal/feature"
)

// JSDoc is a parsed /** ... */ block.
type JSDoc struct {
	Description string
	Tags        []Tag
}

// Tag is one @tag line with its optional {type}, name and trailing text.
type Tag struct {
	Title       string
	Type        string
	Name        string
	Description string
}

// tags whose first word after the type is a name.
var namedTags = map[string]bool{
	"param":    true,
	"property": true,
	"prop":     true,
	"arg":      true,
	"argument": true,
}

// ParseJSDoc parses a comment. Comments that do not start with /** yield an
// empty JSDoc.
func ParseJSDoc(comment string) JSDoc {
	var doc JSDoc
	if !strings.HasPrefix(comment, "/**") {
		return doc
	}
	body := strings.TrimSuffix(strings.TrimPrefix(comment, "/**"), "*/")

	var desc []string
	var cur *Tag
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimSpace(strings.TrimPrefix(line, "*"))
		if strings.HasPrefix(line, "@") {
			doc.Tags = append(doc.Tags, parseTag(line[1:]))
			cur = &doc.Tags[len(doc.Tags)-1]
			continue
		}
		if cur != nil {
			if line != "" {
				cur.Description = strings.TrimSpace(cur.Description + " " + line)
			}
			continue
		}
		desc = append(desc, line)
	}
	doc.Description = strings.TrimSpace(strings.Join(desc, "\n"))
	return doc
}

func parseTag(s string) Tag {
	title, rest, _ := strings.Cut(s, " ")
	t := Tag{Title: title}
	rest = strings.TrimSpace(rest)

	if strings.HasPrefix(rest, "{") {
		depth := 0
		for i, r := range rest {
			switch r {
			case '{':
				depth++
			case '}':
				depth--
			}
			if depth == 0 {
				t.Type = rest[1:i]
				rest = strings.TrimSpace(rest[i+1:])
				break
			}
		}
	}

	if namedTags[title] {
		name, desc, _ := strings.Cut(rest, " ")
		t.Name = strings.Trim(name, "[]")
		rest = desc
	}
	t.Description = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(rest), "- "))
	return t
}

// Has reports whether a tag with the given title is present.
func (d JSDoc) Has(title string) bool {
	_, ok := d.Tag(title)
	return ok
}

// Tag returns the first tag with the given title.
func (d JSDoc) Tag(title string) (Tag, bool) {
	for _, t := range d.Tags {
		if t.Title == title {
			return t, true
		}
	}
	return Tag{}, false
}

// Param returns the @param tag documenting name.
func (d JSDoc) Param(name string) (Tag, bool) {
	for _, t := range d.Tags {
		switch t.Title {
		case "param", "arg", "argument":
		default:
			continue
		}
		if t.Name == name {
			return t, true
		}
	}
	return Tag{}, false
}

// Return returns the @return or @returns tag.
func (d JSDoc) Return() (Tag, bool) {
	if t, ok := d.Tag("return"); ok {
		return t, true
	}
	return d.Tag("returns")
}

// Privacy returns the visibility set by @private, @protected or @public.
func (d JSDoc) Privacy() (feature.Privacy, bool) {
	switch {
	case d.Has("private"):
		return feature.Private, true
	case d.Has("protected"):
		return feature.Protected, true
	case d.Has("public"):
		return feature.Public, true
	}
	return "", false
}

// PrivacyForName applies the naming convention: #x and __x are private, _x
// is protected. An explicit JSDoc tag wins.
func PrivacyForName(name string, doc JSDoc) feature.Privacy {
	if p, ok := doc.Privacy(); ok {
		return p
	}
	switch {
	case strings.HasPrefix(name, "#"), strings.HasPrefix(name, "__"):
		return feature.Private
	case strings.HasPrefix(name, "_"):
		return feature.Protected
	}
	return feature.Public
}
