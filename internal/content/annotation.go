package content

import (
	"regexp"
	"strings"
	"time"
)

// AnnotationLayout is the M/d/yy, h:mm a timestamp used in legacy annotations.
const AnnotationLayout = "1/2/06, 3:04 PM"

// Annotation is the legacy "(Sent by <name> at <time>)" suffix.
type Annotation struct {
	Body   string
	Sender string
	Time   string
}

// Some platforms put a narrow no-break space before AM/PM.
var annotationRE = regexp.MustCompile(
	`(?s)^(.*?)\s*\(Sent by (.+?) at (\d{1,2}/\d{1,2}/\d{2}, \d{1,2}:\d{2}[\s\x{202F}\x{00A0}]?[AaPp][Mm])\)\s*$`,
)

var spaceNormalizer = strings.NewReplacer("\u202f", " ", "\u00a0", " ")

// ExtractAnnotation splits raw into body and legacy annotation.
func ExtractAnnotation(raw string) (Annotation, bool) {
	m := annotationRE.FindStringSubmatch(raw)
	if m == nil {
		return Annotation{Body: strings.TrimSpace(raw)}, false
	}
	return Annotation{
		Body:   strings.TrimSpace(m[1]),
		Sender: strings.TrimSpace(m[2]),
		Time:   m[3],
	}, true
}

// ParseAnnotationTime parses an annotation timestamp in loc.
func ParseAnnotationTime(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	s = strings.ToUpper(spaceNormalizer.Replace(strings.TrimSpace(s)))
	if len(s) > 2 && !strings.HasSuffix(s, " AM") && !strings.HasSuffix(s, " PM") {
		s = s[:len(s)-2] + " " + s[len(s)-2:]
	}
	return time.ParseInLocation(AnnotationLayout, s, loc)
}

// FormatAnnotationTime renders t the way legacy annotations expect.
func FormatAnnotationTime(t time.Time) string {
	return t.Format(AnnotationLayout)
}
