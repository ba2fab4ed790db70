package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/banshee-data/sidescan/internal/session"
)

// Submitter is what ReadCommands drives; *Console implements it.
type Submitter interface {
	Do(ctx context.Context, ev session.Event) (Snapshot, error)
}

// ReadCommands reads operator commands from r, one per line, and submits
// them until r is exhausted or ctx is cancelled. Blank lines and lines
// starting with '#' are skipped. Each result is written to w as one line.
func ReadCommands(ctx context.Context, r io.Reader, c Submitter, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		ev, err := ParseCommand(line)
		if err != nil {
			fmt.Fprintf(w, "ERR %v\n", err)
			continue
		}
		snap, err := c.Do(ctx, ev)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Fprintf(w, "ERR %v\n", err)
			continue
		}
		fmt.Fprintf(w, "OK %s\n", Summary(snap))
	}
	return scanner.Err()
}

// Summary renders the fields an operator watches on one line.
func Summary(s Snapshot) string {
	st := s.State
	var b strings.Builder
	fmt.Fprintf(&b, "state=%s range=%gm signal=%d", st.Session.State, st.Params.Range, st.Params.Signal)
	if st.SignalLabel != "" {
		fmt.Fprintf(&b, "(%s)", st.SignalLabel)
	}
	fmt.Fprintf(&b, " brightness=%g%%", st.Display.Brightness)
	if st.Session.Name != "" {
		fmt.Fprintf(&b, " track=%s", st.Session.Name)
	}
	if st.OpenTrack != "" {
		fmt.Fprintf(&b, " open=%s", st.OpenTrack)
	}
	fmt.Fprintf(&b, " follow=%t tracks=%d", st.Follow, len(s.Catalog.Entries))
	return b.String()
}
