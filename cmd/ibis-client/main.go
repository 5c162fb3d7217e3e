// Command ibis-client is a one-shot command-line client for the IBIS
// broker's control protocol: submit a message, flip an enable or
// stop-indicator flag, or run a read-only query.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/pflag"

	"github.com/mezgrman/ibisbroker/internal/ibis"
)

func main() {
	var (
		host          = pflag.StringP("host", "H", "localhost", "Broker hostname or IP")
		port          = pflag.IntP("port", "p", ibis.DefaultPort, "Broker control-protocol port")
		display       = pflag.IntP("display", "a", ibis.Broadcast, "Display address 0-3, or -1 for all")
		contentType   = pflag.StringP("type", "t", "text", "Message type: text, time, or sequence")
		value         = pflag.StringP("value", "V", "", "Text, strftime format, or |-separated sequence items (item~duration)")
		priority      = pflag.IntP("priority", "P", 0, "Arbitration priority")
		client        = pflag.StringP("client", "c", "ibis-client", "Client identity used for arbitration ownership")
		interval      = pflag.Float64P("interval", "i", 5, "Default per-item duration in seconds for a sequence")
		enable        = pflag.String("enable", "", "true, false, or toggle to enable/disable --display instead of setting a message")
		stopIndicator = pflag.String("stop-indicator", "", "true, false, or toggle to drive the stop indicator for --display")
		query         = pflag.String("query", "", "Run a read-only query instead of a mutation: current_text, buffer, enabled, stop_indicators, or all")
		help          = pflag.Bool("help", false, "Display help text")
	)

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s - command-line client for the IBIS broker.\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\n")
		fmt.Fprintf(os.Stderr, "Examples:\n")
		fmt.Fprintf(os.Stderr, "  %s --display 0 --value 'NEXT STOP: CENTRAL'\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --display 0 --type time --value '%%H:%%M'\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --display 0 --type sequence --value 'LINE 1|%%H:%%M~3'\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --display 1 --enable false\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --query buffer\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\n")
		pflag.PrintDefaults()
	}
	pflag.Parse()

	if *help {
		pflag.Usage()
		os.Exit(0)
	}

	c := ibis.NewClient(fmt.Sprintf("%s:%d", *host, *port))

	// Stop-indicator and message commands take one address on the wire,
	// so -1 is expanded here into all four.
	addresses := []int{*display}
	if *display == ibis.Broadcast {
		addresses = []int{0, 1, 2, 3}
	}

	switch {
	case *query != "":
		runQuery(c, *query)
	case *enable != "":
		if strings.EqualFold(*enable, "toggle") {
			runMutation(c.ToggleEnabled(*display))
			break
		}
		v, err := strconv.ParseBool(*enable)
		if err != nil {
			fatal("--enable must be true, false, or toggle: %v", err)
		}
		runMutation(c.SetEnabled(*display, v))
	case *stopIndicator != "":
		if strings.EqualFold(*stopIndicator, "toggle") {
			for _, a := range addresses {
				runMutation(c.ToggleStopIndicator(a))
			}
			break
		}
		v, err := strconv.ParseBool(*stopIndicator)
		if err != nil {
			fatal("--stop-indicator must be true, false, or toggle: %v", err)
		}
		for _, a := range addresses {
			runMutation(c.SetStopIndicator(a, v))
		}
	default:
		content, err := parseContent(*contentType, *value, *interval)
		if err != nil {
			fatal("%v", err)
		}
		for _, a := range addresses {
			runMutation(c.SetMessage(a, content, *priority, *client))
		}
	}
}

func parseContent(contentType, value string, interval float64) (*ibis.DisplayContent, error) {
	switch contentType {
	case "text":
		return ibis.MakeText(value), nil
	case "time":
		return ibis.MakeTime(value), nil
	case "sequence":
		items := strings.Split(value, "|")
		messages := make([]ibis.DisplayContent, 0, len(items))
		for _, item := range items {
			messages = append(messages, parseSequenceItem(item))
		}
		return ibis.MakeSequence(interval, messages...), nil
	default:
		return nil, fmt.Errorf("unknown --type %q, want text, time, or sequence", contentType)
	}
}

// parseSequenceItem parses one "|"-delimited sequence entry: an
// optional trailing "~<duration>" overrides the sequence's default
// interval, and an item containing a "%" is treated as a strftime
// format (a Time item) rather than literal text.
func parseSequenceItem(item string) ibis.DisplayContent {
	text := item
	var duration float64
	if idx := strings.LastIndex(item, "~"); idx >= 0 {
		if d, err := strconv.ParseFloat(item[idx+1:], 64); err == nil {
			text = item[:idx]
			duration = d
		}
	}
	if strings.Contains(text, "%") {
		return ibis.DisplayContent{Type: ibis.ContentTime, Format: text, Duration: duration}
	}
	return ibis.DisplayContent{Type: ibis.ContentText, Text: text, Duration: duration}
}

func runMutation(success bool, err error) {
	if err != nil {
		fatal("%v", err)
	}
	if !success {
		fmt.Fprintln(os.Stderr, "rejected")
		os.Exit(1)
	}
	fmt.Println("ok")
}

func runQuery(c *ibis.Client, kind string) {
	var (
		result any
		err    error
	)
	switch kind {
	case "current_text":
		result, err = c.GetCurrentText()
	case "buffer":
		result, err = c.GetBuffer()
	case "enabled":
		result, err = c.GetEnabled()
	case "stop_indicators":
		result, err = c.GetStopIndicators()
	case "all":
		result, err = c.GetAll()
	default:
		fatal("unknown --query %q, want current_text, buffer, enabled, stop_indicators, or all", kind)
	}
	if err != nil {
		fatal("%v", err)
	}

	encoded, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		fatal("encoding result: %v", err)
	}
	fmt.Println(string(encoded))
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
