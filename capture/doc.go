// Package capture turns the text output of a packet capture tool into SIP message records.
//
// The capture tool (ngrep) is started with a fixed set of formatting flags, so every captured
// packet is printed as a block: a header line
//
//	U 07/03/14 12:01:02.123456 10.0.0.1:5060 -> 10.0.0.2:5060
//
// followed by the packet payload, one line per line, and terminated by an empty line.
// [StreamParser] yields one [Record] per block, [Pipeline] owns the capture process and
// feeds the parsed records into a [Sink].
package capture
