package filters

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"pagekit/lib/textutil"
)

// DecimalFormat interprets a raw numeric string under one locale
// convention.
type DecimalFormat struct {
	Name  string
	Parse func(s string) (float64, error)
}

var nonNumeric = regexp.MustCompile(`[^\d.,\-]`)

// DecimalDot parses "1,234.56" style numbers: comma groups, dot
// decimal point.
var DecimalDot = DecimalFormat{
	Name: "dot",
	Parse: func(s string) (float64, error) {
		s = strings.ReplaceAll(s, ",", "")
		return strconv.ParseFloat(s, 64)
	},
}

// DecimalComma parses "1.234,56" style numbers: dot groups, comma
// decimal point.
var DecimalComma = DecimalFormat{
	Name: "comma",
	Parse: func(s string) (float64, error) {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
		return strconv.ParseFloat(s, 64)
	},
}

// CleanDecimal strips everything non-numeric off the upstream text and
// parses it, trying each declared format in order; the first success
// wins. With no formats, DecimalDot is assumed.
func CleanDecimal(formats ...DecimalFormat) Filter {
	if len(formats) == 0 {
		formats = []DecimalFormat{DecimalDot}
	}
	return New("clean-decimal", func(ctx *Context, in any) (any, error) {
		raw, err := asString(in, "clean-decimal")
		if err != nil {
			return nil, err
		}
		s := nonNumeric.ReplaceAllString(textutil.CleanWhitespace(raw), "")
		if s == "" {
			return nil, failf(ParseError, "clean-decimal", "no numeric content in %q", raw)
		}
		var lastErr error
		for _, f := range formats {
			v, err := f.Parse(s)
			if err == nil {
				return v, nil
			}
			lastErr = err
		}
		return nil, failf(ParseError, "clean-decimal", "cannot parse %q: %w", raw, lastErr)
	})
}

// ToInt parses the upstream text as a base-10 integer.
func ToInt() Filter {
	return New("to-int", func(ctx *Context, in any) (any, error) {
		switch v := in.(type) {
		case int:
			return v, nil
		case int64:
			return int(v), nil
		case float64:
			return int(v), nil
		}
		s, err := asString(in, "to-int")
		if err != nil {
			return nil, err
		}
		v, err := strconv.Atoi(textutil.CleanWhitespace(s))
		if err != nil {
			return nil, failf(ParseError, "to-int", "%w", err)
		}
		return v, nil
	})
}

// Date parses the upstream text with each layout in order; the first
// success wins.
func Date(layouts ...string) Filter {
	stage := fmt.Sprintf("date(%s)", strings.Join(layouts, "|"))
	return New(stage, func(ctx *Context, in any) (any, error) {
		s, err := asString(in, stage)
		if err != nil {
			return nil, err
		}
		s = textutil.CleanWhitespace(s)
		var lastErr error
		for _, layout := range layouts {
			t, err := time.Parse(layout, s)
			if err == nil {
				return t, nil
			}
			lastErr = err
		}
		if lastErr == nil {
			lastErr = fmt.Errorf("no layouts declared")
		}
		return nil, failf(ParseError, stage, "cannot parse %q: %w", s, lastErr)
	})
}
