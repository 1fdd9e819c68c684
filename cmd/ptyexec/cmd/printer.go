package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/GriffinCanCode/ptyexec/internal/domain/executor"
	"github.com/GriffinCanCode/ptyexec/internal/domain/session"
)

const (
	ansiRed   = "\x1b[31m"
	ansiDim   = "\x1b[2m"
	ansiReset = "\x1b[0m"
)

// printer writes finalized output messages as responses arrive. Every message
// except the last is final once a later one exists.
type printer struct {
	out     io.Writer
	errOut  io.Writer
	color   bool
	printed int
}

func newPrinter(out, errOut io.Writer, color bool) *printer {
	return &printer{out: out, errOut: errOut, color: color}
}

func (p *printer) print(resp executor.CommandResponse) {
	ready := len(resp.Output)
	if !resp.Terminal() && ready > 0 && resp.Output[ready-1].Partial {
		ready--
	}
	if ready <= p.printed {
		return
	}
	for _, msg := range resp.Output[p.printed:ready] {
		p.message(msg)
	}
	p.printed = ready
}

func (p *printer) message(msg session.OutputMessage) {
	switch msg.Type {
	case session.MessageStdout:
		fmt.Fprintln(p.out, msg.Content)
	case session.MessageError:
		p.styled(ansiRed, msg.Content)
	case session.MessageSystem:
		p.styled(ansiDim, msg.Content)
	default:
		fmt.Fprintln(p.errOut, msg.Content)
	}
}

func (p *printer) styled(style, text string) {
	if p.color {
		fmt.Fprintln(p.errOut, style+text+ansiReset)
		return
	}
	fmt.Fprintln(p.errOut, text)
}

// summary reports the outcome on the error stream
func (p *printer) summary(resp executor.CommandResponse) {
	line := string(resp.Status)
	if resp.DurationMs != nil {
		line += " in " + (time.Duration(*resp.DurationMs) * time.Millisecond).String()
	}
	if resp.ExitCode != nil {
		line += fmt.Sprintf(" (exit %d)", *resp.ExitCode)
	}
	p.styled(ansiDim, line)
}
