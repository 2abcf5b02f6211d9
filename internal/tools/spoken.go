package tools

import "strings"

// SpokenDigits renders an identifier so a voice front end reads it one
// character at a time: "9812345769" becomes "9 8 1 2 3 4 5 7 6 9".
// Separators in the input are dropped; letters are upper-cased so codes
// like "PC-089012" come out as "P C 0 8 9 0 1 2". Tools must use this for
// every identifier surfaced in a Message; a bare numeric literal would be
// read as a magnitude.
func SpokenDigits(id string) string {
	var units []string
	for _, r := range id {
		switch {
		case r >= '0' && r <= '9':
			units = append(units, string(r))
		case r >= 'a' && r <= 'z':
			units = append(units, strings.ToUpper(string(r)))
		case r >= 'A' && r <= 'Z':
			units = append(units, string(r))
		}
	}
	return strings.Join(units, " ")
}
