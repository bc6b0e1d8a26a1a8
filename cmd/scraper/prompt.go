package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aluiziolira/go-scrape-parts/scraper"
)

// errNoInput is returned when the input stream ends before an answer is given.
var errNoInput = errors.New("no input")

// prompter asks the operator questions on a line-oriented terminal.
type prompter struct {
	lines chan string
	errs  chan error
	err   error
	out   io.Writer
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	p := &prompter{
		lines: make(chan string),
		errs:  make(chan error, 1),
		out:   out,
	}
	go func() {
		r := bufio.NewReader(in)
		for {
			line, err := r.ReadString('\n')
			if line != "" || err == nil {
				p.lines <- strings.TrimSpace(line)
			}
			if err != nil {
				if errors.Is(err, io.EOF) {
					err = errNoInput
				}
				p.errs <- err
				return
			}
		}
	}()
	return p
}

// ask prints label and returns the trimmed answer, or def when the answer is empty.
// An empty answer without a default repeats the question.
func (p *prompter) ask(ctx context.Context, label, def string) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	for {
		if def != "" {
			fmt.Fprintf(p.out, "%s [%s]: ", label, abbreviate(def))
		} else {
			fmt.Fprintf(p.out, "%s: ", label)
		}

		select {
		case <-ctx.Done():
			fmt.Fprintln(p.out)
			return "", ctx.Err()
		case err := <-p.errs:
			fmt.Fprintln(p.out)
			p.err = err
			return "", err
		case line := <-p.lines:
			if line != "" {
				return line, nil
			}
			if def != "" {
				return def, nil
			}
		}
	}
}

// askList collects answers until the operator enters "done".
func (p *prompter) askList(ctx context.Context, label string) ([]string, error) {
	var values []string
	for {
		v, err := p.ask(ctx, label+" (enter 'done' when finished)", "")
		if err != nil {
			return nil, err
		}
		if strings.EqualFold(v, "done") {
			return values, nil
		}
		values = append(values, v)
	}
}

// renewer asks for a fresh PerimeterX key and user agent after each block. The user agent
// defaults to the one in use.
func (p *prompter) renewer() scraper.CredentialProvider {
	return scraper.CredentialProviderFunc(func(ctx context.Context, event scraper.BlockEvent) (scraper.Credentials, error) {
		fmt.Fprintf(p.out, "\nAnti-bot challenge while crawling %s at %s (block %d).\n",
			event.Category, event.Position, event.Blocks)
		fmt.Fprintln(p.out, "Progress has been saved. Solve the challenge in a browser and paste the new _px cookie.")

		px, err := p.ask(ctx, "PerimeterX key", "")
		if err != nil {
			return scraper.Credentials{}, err
		}
		ua, err := p.ask(ctx, "User agent", event.Current.UserAgent)
		if err != nil {
			return scraper.Credentials{}, err
		}
		return scraper.Credentials{PerimeterXKey: px, UserAgent: ua}, nil
	})
}

func abbreviate(s string) string {
	const max = 40
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
