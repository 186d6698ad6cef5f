package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"

	"github.com/bft-labs/spbatch/internal/domain"
)

func stateLabel(s domain.RecordState) string {
	label := strings.ToUpper(s.String())
	switch s {
	case domain.StateCompleted:
		return color.New(color.FgGreen).Sprint(label)
	case domain.StateFailed:
		return color.New(color.FgRed).Sprint(label)
	default:
		return color.New(color.FgYellow).Sprint(label)
	}
}

func protocolLabel(p domain.Protocol) string {
	label := strings.ToUpper(p.String())
	if p == domain.ProtocolGraph {
		return color.New(color.FgCyan).Sprint(label)
	}
	return color.New(color.FgBlue).Sprint(label)
}

// render prints the sub-batch plan, then one block per record with the
// operations it served.
func render(w io.Writer, rep *Report) {
	outcomes := rep.Batch.Outcomes()
	subs := rep.Batch.SubBatches()

	fmt.Fprintf(w, "batch %s: %d operations, %d records, %d sub-batches\n",
		rep.Batch.ID(), len(rep.Items), len(outcomes), len(subs))

	for _, sb := range subs {
		orders := make([]string, len(sb.Orders))
		for i, o := range sb.Orders {
			orders[i] = fmt.Sprint(o)
		}
		fmt.Fprintf(w, "  sub-batch %d  %s  records [%s]\n", sb.Index, protocolLabel(sb.Protocol), strings.Join(orders, " "))
		if sb.Err != nil {
			fmt.Fprintf(w, "    error: %v\n", sb.Err)
		}
	}

	byOrder := make(map[int][]Item)
	for _, it := range rep.Items {
		byOrder[it.Record.Order()] = append(byOrder[it.Record.Order()], it)
	}

	for _, o := range outcomes {
		call := o.Call
		if call.IsZero() {
			call = byOrder[o.Order][0].Record.Primary()
		}
		status := "-"
		if o.Status != 0 {
			status = fmt.Sprint(o.Status)
		}
		fmt.Fprintf(w, "record %d  %s  %s  %s\n", o.Order, stateLabel(o.State), status, call)

		for _, it := range byOrder[o.Order] {
			fmt.Fprintf(w, "    op %d: %s\n", it.Index, it.Op)
			if o.State == domain.StateCompleted && it.Kind == domain.OpGet {
				renderValues(w, it.Entity.Values())
			}
		}
		if o.Err != nil {
			fmt.Fprintf(w, "    error: %v\n", o.Err)
		}
	}
}

func renderValues(w io.Writer, values map[string]any) {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		raw, err := json.Marshal(values[k])
		if err != nil {
			raw = []byte(fmt.Sprint(values[k]))
		}
		fmt.Fprintf(w, "      %s = %s\n", k, raw)
	}
}
