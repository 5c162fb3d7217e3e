package ibis

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
)

// SelftestStep is one phase of the power-on diagnostic cycle: push Text
// to every address, then hold for Hold before the next step.
type SelftestStep struct {
	Text func(address int) string
	Hold time.Duration
}

// RunSelftest pushes a diagnostic sequence to every address: blank, a
// banner, each address's own label, then blank again. Grounded on
// original_source/ibis/ibis_server.py's selftest(), which runs the same
// blank/banner/label/blank cycle at startup so an installer can confirm
// every physical display and its address wiring by eye.
func RunSelftest(ctx context.Context, master Transport, logger *log.Logger, steps []SelftestStep) {
	if steps == nil {
		steps = DefaultSelftestSteps()
	}
	for _, step := range steps {
		for address := 0; address < NumDisplays; address++ {
			if err := master.SendText(address, Transliterate(step.Text(address))); err != nil {
				logger.Error("selftest: send failed", "address", address, "err", err)
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(step.Hold):
		}
	}
}

// DefaultSelftestSteps is the standard blank/banner/label/blank cycle.
func DefaultSelftestSteps() []SelftestStep {
	const hold = 2 * time.Second
	return []SelftestStep{
		{Text: func(int) string { return "" }, Hold: hold},
		{Text: func(int) string { return "IBIS SELFTEST" }, Hold: hold},
		{Text: func(address int) string { return fmt.Sprintf("DISPLAY %d", address) }, Hold: hold},
		{Text: func(int) string { return "" }, Hold: hold},
	}
}
