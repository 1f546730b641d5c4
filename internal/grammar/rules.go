package grammar

import "github.com/ghettovoice/abnf"

// Capture header line, as printed by ngrep with -t:
//
//	capture-header = dir SP date SP time SP src SP "->" SP dst
//	dir            = ALPHA
//	date           = 2DIGIT "/" 2DIGIT "/" 2DIGIT
//	time           = 2DIGIT ":" 2DIGIT ":" 2DIGIT "." 6DIGIT
//	src / dst      = 1*%x21-7E
//
// The host and the port of src and dst are split by the last colon,
// so IPv6 literals without brackets are accepted too.
var (
	sp    = abnf.Literal("SP", []byte(" "))
	digit = abnf.Range("DIGIT", []byte("0"), []byte("9"))
	alpha = abnf.Alt(
		"ALPHA",
		abnf.Range("ALPHA", []byte("A"), []byte("Z")),
		abnf.Range("ALPHA", []byte("a"), []byte("z")),
	)
	vchar = abnf.Range("VCHAR", []byte{0x21}, []byte{0x7E})
	slash = abnf.Literal("/", []byte("/"))
	colon = abnf.Literal(":", []byte(":"))

	captureDate = abnf.Concat(
		"date",
		abnf.RepeatN("day", 2, digit),
		slash,
		abnf.RepeatN("month", 2, digit),
		slash,
		abnf.RepeatN("year", 2, digit),
	)
	captureTime = abnf.Concat(
		"time",
		abnf.RepeatN("hour", 2, digit),
		colon,
		abnf.RepeatN("minute", 2, digit),
		colon,
		abnf.RepeatN("second", 2, digit),
		abnf.Literal(".", []byte(".")),
		abnf.RepeatN("usec", 6, digit),
	)

	captureHeader = abnf.Concat(
		"capture-header",
		abnf.Concat("dir", alpha),
		sp,
		captureDate,
		sp,
		captureTime,
		sp,
		abnf.Repeat1Inf("src", vchar),
		sp,
		abnf.Literal("arrow", []byte("->")),
		sp,
		abnf.Repeat1Inf("dst", vchar),
	)
)

func CaptureHeader(s []byte, ns *abnf.Nodes) error {
	return captureHeader(s, 0, ns) //errtrace:skip
}
