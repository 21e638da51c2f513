package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
)

type statusView struct {
	Identity             string    `json:"identity"`
	DeviceOwner          bool      `json:"device_owner"`
	ProfileOwner         bool      `json:"profile_owner"`
	Authority            string    `json:"authority"`
	AdminActive          bool      `json:"admin_active"`
	AdminState           string    `json:"admin_state"`
	CanLock              bool      `json:"can_lock"`
	CanRequestActivation bool      `json:"can_request_activation"`
	AuditEntries         int       `json:"audit_entries"`
	CheckedAt            time.Time `json:"checked_at"`
	Healthy              bool      `json:"healthy"`
	Issues               []string  `json:"issues"`
}

type eventView struct {
	ID      string    `json:"id"`
	Kind    string    `json:"kind"`
	Package string    `json:"package"`
	At      time.Time `json:"at"`
}

type auditView struct {
	State  string      `json:"state"`
	Total  int         `json:"total"`
	Events []eventView `json:"events"`
}

type outcomeView struct {
	Op      string    `json:"op"`
	Outcome string    `json:"outcome"`
	Reason  string    `json:"reason"`
	Cause   string    `json:"cause"`
	At      time.Time `json:"at"`
}

type outcomesView struct {
	Total    int           `json:"total"`
	Outcomes []outcomeView `json:"outcomes"`
}

func yesNo(v bool) string {
	if v {
		return color.GreenString("Yes")
	}
	return color.RedString("No")
}

func renderStatus(w io.Writer, s statusView) {
	cyan := color.New(color.FgCyan)
	cyan.Fprintf(w, "Device Policy Controller\n")
	fmt.Fprintf(w, "========================\n\n")
	fmt.Fprintf(w, "Identity:        %s\n", s.Identity)
	fmt.Fprintf(w, "Device Owner:    %s\n", yesNo(s.DeviceOwner))
	fmt.Fprintf(w, "Profile Owner:   %s\n", yesNo(s.ProfileOwner))
	fmt.Fprintf(w, "Admin Active:    %s\n", yesNo(s.AdminActive))
	fmt.Fprintf(w, "Authority:       %s\n", s.Authority)
	fmt.Fprintf(w, "Tracked State:   %s\n", s.AdminState)
	fmt.Fprintf(w, "Can Lock:        %s\n", yesNo(s.CanLock))
	fmt.Fprintf(w, "Audit Entries:   %d\n", s.AuditEntries)
	yellow := color.New(color.FgYellow)
	if s.CanRequestActivation {
		yellow.Fprintf(w, "\nAdmin is not active; run `dpc activate` to request activation.\n")
	}
	if len(s.Issues) > 0 {
		yellow.Fprintf(w, "\nIssues:\n")
	}
	for _, issue := range s.Issues {
		fmt.Fprintf(w, "  - %s\n", issue)
	}
}

func renderAudit(w io.Writer, a auditView, since int) {
	fmt.Fprintf(w, "State: %s  (%d events total)\n\n", a.State, a.Total)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tKIND\tPACKAGE\tAT")
	for i, ev := range a.Events {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", since+i, ev.Kind, ev.Package, ev.At.Format(time.RFC3339))
	}
	tw.Flush()
}

func renderOutcomes(w io.Writer, o outcomesView) {
	fmt.Fprintf(w, "%d commands mediated, showing %d most recent\n\n", o.Total, len(o.Outcomes))
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "AT\tOP\tOUTCOME\tDETAIL")
	for _, out := range o.Outcomes {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", out.At.Format(time.RFC3339), out.Op, colorOutcome(out.Outcome), outcomeDetail(out.Reason, out.Cause))
	}
	tw.Flush()
}

func renderCommand(w io.Writer, resp *commandResponse) {
	out := resp.Outcome
	fmt.Fprintf(w, "%s: %s", out.Op, colorOutcome(out.Outcome))
	if detail := outcomeDetail(out.Reason, out.Cause); detail != "" {
		fmt.Fprintf(w, " (%s)", detail)
	}
	fmt.Fprintln(w)
}

func colorOutcome(kind string) string {
	switch kind {
	case "executed":
		return color.GreenString(kind)
	case "denied":
		return color.YellowString(kind)
	case "failed":
		return color.RedString(kind)
	}
	return kind
}

func outcomeDetail(reason, cause string) string {
	if reason != "" {
		return reason
	}
	return cause
}
