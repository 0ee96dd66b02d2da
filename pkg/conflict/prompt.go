package conflict

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Prompter asks on a terminal. An empty answer picks Copy.
type Prompter struct {
	mu  sync.Mutex
	in  *bufio.Reader
	out io.Writer
}

// NewPrompter reads answers from in and writes questions to out.
func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{in: bufio.NewReader(in), out: out}
}

func (p *Prompter) Resolve(ctx context.Context, c Conflict) (Decision, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for {
		fmt.Fprintf(p.out, "%s: %s already exists. [r]eplace, [c]opy, re[n]ame, [s]kip (default copy): ", c.Op, c.Target)
		answer, err := p.readLine(ctx)
		if err != nil {
			return 0, err
		}
		switch strings.ToLower(answer) {
		case "", "c", "copy":
			return Copy, nil
		case "r", "replace":
			return Replace, nil
		case "n", "rename":
			return Rename, nil
		case "s", "skip":
			return Skip, nil
		}
		fmt.Fprintf(p.out, "unrecognized answer %q\n", answer)
	}
}

func (p *Prompter) NewName(ctx context.Context, c Conflict) (string, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.out, "new name for %s (empty to skip): ", c.Name())
	answer, err := p.readLine(ctx)
	if err != nil {
		return "", false, err
	}
	return answer, answer != "", nil
}

// ConfirmReplace asks before a file is replaced by a folder of the same
// name. Only an explicit yes approves.
func (p *Prompter) ConfirmReplace(ctx context.Context, key string) (bool, error) {
	return p.Confirm(ctx, fmt.Sprintf("%s is a file. Delete it and create a folder instead?", key))
}

// Confirm asks a yes/no question. Only an explicit yes approves.
func (p *Prompter) Confirm(ctx context.Context, question string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.out, "%s [y/N]: ", question)
	answer, err := p.readLine(ctx)
	if err != nil {
		return false, err
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

// readLine returns one trimmed line. A final line without a newline is
// accepted; EOF with no input is io.ErrUnexpectedEOF.
func (p *Prompter) readLine(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	line, err := p.in.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	if err == io.EOF && line == "" {
		return "", io.ErrUnexpectedEOF
	}
	return strings.TrimSpace(line), nil
}
