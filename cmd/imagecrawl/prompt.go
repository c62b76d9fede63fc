package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// errNoInput is returned when standard input ends before an answer was given.
var errNoInput = errors.New("no input available")

// Interactive questions asked for settings missing from the command line.
const (
	siteURLQuestion   = "Please enter the website URL you want to crawl: "
	siteURLEmpty      = "URL cannot be empty."
	outputDirQuestion = "Please enter the directory to save the images (e.g., 'scrapes'): "
	outputDirEmpty    = "Output directory cannot be empty."
)

// prompter reads answers line by line.
type prompter struct {
	in  *bufio.Reader
	out io.Writer
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	return &prompter{in: bufio.NewReader(in), out: out}
}

// ask prints question and reads a line, repeating until the trimmed answer is
// non-empty. A final line without a newline is accepted; running out of input
// without an answer returns errNoInput.
func (p *prompter) ask(question, emptyMessage string) (string, error) {
	for {
		fmt.Fprint(p.out, question)
		line, err := p.in.ReadString('\n')
		answer := strings.TrimSpace(line)
		if answer != "" {
			return answer, nil
		}
		if err != nil {
			fmt.Fprintln(p.out)
			if errors.Is(err, io.EOF) {
				return "", errNoInput
			}
			return "", fmt.Errorf("failed to read input: %w", err)
		}
		fmt.Fprintln(p.out, emptyMessage)
	}
}

// prepareOutputDir creates dir when it is missing and reports what it did.
func prepareOutputDir(w io.Writer, dir string) error {
	info, err := os.Stat(dir)
	switch {
	case err == nil && info.IsDir():
		fmt.Fprintf(w, "Output directory '%s' already exists.\n", dir)
		return nil
	case err == nil:
		return fmt.Errorf("error creating directory %s: not a directory", dir)
	case !errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("error creating directory %s: %w", dir, err)
	}

	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("error creating directory %s: %w", dir, err)
	}
	fmt.Fprintf(w, "Created directory: %s\n", dir)
	return nil
}
