// Package parser holds the text normalisation helpers shared by the marketplace adapters.
package parser

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	numberPattern    = regexp.MustCompile(`[\d.]+`)
	digitsPattern    = regexp.MustCompile(`\d+`)
	yearPattern      = regexp.MustCompile(`\b(19\d{2}|20\d{2})\b`)
	kmPattern        = regexp.MustCompile(`([\d.]+)\s*km`)
	registrationDate = regexp.MustCompile(`(?:EZ|Erstzulassung)[:\s]*(\d{2})/(\d{4})`)
	whitespace       = regexp.MustCompile(`\s+`)
)

// Clean collapses internal whitespace and trims the result.
func Clean(text string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(text, " "))
}

// ParsePriceUSD reads "$10,000", "USD $10,000" or "10000".
func ParsePriceUSD(text string) (float64, bool) {
	text = strings.NewReplacer(",", "", "$", "", "USD", "").Replace(text)
	return firstNumber(text)
}

// ParsePriceEUR reads German formatted prices such as "12.500 € VB" or "EUR 9.999,50".
// A dot is a thousands separator and a comma is the decimal separator.
func ParsePriceEUR(text string) (float64, bool) {
	text = strings.NewReplacer("€", "", "EUR", "", "VB", "").Replace(text)
	text = strings.ReplaceAll(text, ".", "")
	text = strings.ReplaceAll(text, ",", ".")
	return firstNumber(text)
}

func firstNumber(text string) (float64, bool) {
	match := numberPattern.FindString(text)
	if match == "" {
		return 0, false
	}
	value, err := strconv.ParseFloat(match, 64)
	if err != nil || value < 0 {
		return 0, false
	}
	return value, true
}

// ParseCount returns the first run of digits, ignoring thousands separators.
func ParseCount(text string) (int, bool) {
	text = strings.NewReplacer(",", "", ".", "").Replace(text)
	match := digitsPattern.FindString(text)
	if match == "" {
		return 0, false
	}
	n, err := strconv.Atoi(match)
	if err != nil {
		return 0, false
	}
	return n, true
}

// ParseKilometres finds "123.456 km" anywhere in text.
func ParseKilometres(text string) (int, bool) {
	match := kmPattern.FindStringSubmatch(text)
	if match == nil {
		return 0, false
	}
	return ParseCount(match[1])
}

// FindYear returns the first plausible model year anywhere in text.
func FindYear(text string) (int, bool) {
	match := yearPattern.FindString(text)
	if match == "" {
		return 0, false
	}
	year, _ := strconv.Atoi(match)
	return year, true
}

// FindRegistrationYear reads German first registration notes ("EZ 03/2018").
func FindRegistrationYear(text string) (int, bool) {
	match := registrationDate.FindStringSubmatch(text)
	if match == nil {
		return FindYear(text)
	}
	year, _ := strconv.Atoi(match[2])
	return year, true
}

// Title is the result of splitting a listing headline.
type Title struct {
	Year  int
	Make  string
	Model string
	Trim  string
}

// ParseTitle splits "2019 Porsche 911 Carrera S" into its parts.
// Headlines without a leading year are read as "Make Model Trim"; a year found
// elsewhere in the text is still picked up.
func ParseTitle(title string) Title {
	fields := strings.Fields(Clean(title))
	var t Title
	if len(fields) == 0 {
		return t
	}
	if year, ok := FindYear(fields[0]); ok && len(fields[0]) == 4 {
		t.Year = year
		fields = fields[1:]
	} else if year, ok := FindYear(title); ok {
		t.Year = year
		idx := indexOf(fields, strconv.Itoa(year))
		switch {
		case idx >= 0 && idx < len(fields)-1:
			fields = fields[idx+1:]
		case idx >= 0:
			fields = fields[:idx]
		}
	}
	if len(fields) > 0 {
		t.Make = fields[0]
	}
	if len(fields) > 1 {
		t.Model = fields[1]
	}
	if len(fields) > 2 {
		t.Trim = strings.Join(fields[2:], " ")
	}
	return t
}

func indexOf(fields []string, value string) int {
	for i, f := range fields {
		if f == value {
			return i
		}
	}
	return -1
}

// AbsoluteURL resolves relative links against the marketplace base URL.
func AbsoluteURL(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	if strings.HasPrefix(href, "//") {
		return "https:" + href
	}
	return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(href, "/")
}

// Slug lowercases and hyphenates a make or model for path segments.
func Slug(text string) string {
	return strings.ReplaceAll(strings.ToLower(Clean(text)), " ", "-")
}
