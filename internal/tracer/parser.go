package tracer

import (
	"fmt"
	"strconv"
)

// ParseBlock parses the lines preceding a control line into a Syscall
// (§4.H). lines[0] is always the header line; for an Entry block, lines[1:]
// are the per-argument lines (one per declared argument); for an Exit
// block, lines[1] is the single return-value line.
//
// The §8 test literal spells out argument lines as readable
// "<pos=0,type=1,size=0004,val=abcd>" glosses over the actual columnar
// encoding below — parseArgLine works on the real fixed-width bytes that
// gloss describes, not the gloss text itself.
func ParseBlock(lines []string) (*Syscall, error) {
	if len(lines) == 0 {
		return nil, fmt.Errorf("tracer: empty block")
	}
	header := lines[0]
	if len(header) < 2 {
		return nil, fmt.Errorf("tracer: malformed header %q", header)
	}

	sc := &Syscall{}
	switch header[0] {
	case 'E':
		sc.Direction = Entry
		argsAmount, err := strconv.Atoi(string(header[1]))
		if err != nil {
			return nil, fmt.Errorf("tracer: bad args count in %q: %w", header, err)
		}
		sc.ArgsAmount = argsAmount
		sc.Name = header[2:]

		argLines := lines[1:]
		if len(argLines) < argsAmount {
			return nil, fmt.Errorf("tracer: header declares %d args, got %d lines", argsAmount, len(argLines))
		}
		for _, line := range argLines[:argsAmount] {
			pos, arg, err := parseArgLine(line)
			if err != nil {
				return nil, err
			}
			if pos < 0 || pos > 5 {
				return nil, fmt.Errorf("tracer: arg position %d out of range", pos)
			}
			sc.Args[pos] = arg
		}
	case 'R':
		sc.Direction = Exit
		sc.Name = header[2:]
		if len(lines) < 2 {
			return nil, fmt.Errorf("tracer: exit block missing return-value line")
		}
		retLine := lines[1]
		if len(retLine) < 3 {
			return nil, fmt.Errorf("tracer: malformed return-value line %q", retLine)
		}
		sc.Ret = retLine[3:]
	default:
		return nil, fmt.Errorf("tracer: unknown direction byte %q in %q", header[0], header)
	}

	return sc, nil
}

// parseArgLine decodes one fixed-width argument line (§4.H): column 3 is
// position, column 4 is type (0=long, 1=string, else unknown), columns 5-8
// are a 4-digit size, and the remainder from column 9 is the value text.
func parseArgLine(line string) (pos int, arg Arg, err error) {
	if len(line) < 9 {
		return 0, Arg{}, fmt.Errorf("tracer: arg line too short %q", line)
	}
	pos, err = strconv.Atoi(string(line[3]))
	if err != nil {
		return 0, Arg{}, fmt.Errorf("tracer: bad arg position in %q: %w", line, err)
	}

	var argType ArgType
	switch line[4] {
	case '0':
		argType = Long
	case '1':
		argType = String
	default:
		argType = Unknown
	}

	size, err := strconv.Atoi(line[5:9])
	if err != nil {
		return 0, Arg{}, fmt.Errorf("tracer: bad arg size in %q: %w", line, err)
	}

	return pos, Arg{Type: argType, Size: size, Value: line[9:]}, nil
}
