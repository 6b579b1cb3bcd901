package cli

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// prompter reads answers line by line. An empty answer keeps the default.
type prompter struct {
	in  *bufio.Reader
	out io.Writer
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	return &prompter{in: bufio.NewReader(in), out: out}
}

func (p *prompter) readLine() (string, error) {
	input, err := p.in.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimSpace(input), nil
}

// String asks for free text.
func (p *prompter) String(label, def string) (string, error) {
	if def != "" {
		fmt.Fprintf(p.out, "%s [%s]: ", label, def)
	} else {
		fmt.Fprintf(p.out, "%s: ", label)
	}
	input, err := p.readLine()
	if err != nil {
		return def, err
	}
	if input == "" {
		return def, nil
	}
	return input, nil
}

// Int asks for a number in [lo, hi], asking again on invalid input.
func (p *prompter) Int(label string, def, lo, hi int) (int, error) {
	for {
		fmt.Fprintf(p.out, "%s [%d]: ", label, def)
		input, err := p.readLine()
		if err != nil {
			return def, err
		}
		if input == "" {
			return def, nil
		}
		v, err := strconv.Atoi(input)
		if err == nil && v >= lo && v <= hi {
			return v, nil
		}
		fmt.Fprintf(p.out, "  Enter a number between %d and %d.\n", lo, hi)
	}
}

// YesNo asks a yes/no question.
func (p *prompter) YesNo(label string, def bool) (bool, error) {
	hint := "y/N"
	if def {
		hint = "Y/n"
	}
	for {
		fmt.Fprintf(p.out, "%s [%s]: ", label, hint)
		input, err := p.readLine()
		if err != nil {
			return def, err
		}
		switch strings.ToLower(input) {
		case "":
			return def, nil
		case "y", "yes":
			return true, nil
		case "n", "no":
			return false, nil
		}
		fmt.Fprintln(p.out, "  Please answer y or n.")
	}
}
